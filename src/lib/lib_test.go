package lib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1650000), MinorUnits(decimal.NewFromInt(16500)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), MinorUnits(decimal.RequireFromString("9.995")))
}

func TestCreateSweepJob(t *testing.T) {
	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	NewScheduler(sched)
	t.Cleanup(func() {
		_ = sched.Shutdown()
		NewScheduler(nil)
	})

	runs := make(chan struct{}, 4)
	id, err := CreateSweepJob("test-sweep", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		runs <- struct{}{}
		return 1, nil
	})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Len(t, sched.Jobs(), 1)
	assert.Equal(t, "test-sweep", sched.Jobs()[0].Name())

	sched.Start()
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}
}

func TestRunSweepSwallowsErrors(t *testing.T) {
	called := false
	RunSweep(context.Background(), "failing", func(ctx context.Context) (int, error) {
		called = true
		return 0, errors.New("db down")
	})
	assert.True(t, called)
}

func TestEmitIgnoresNilPublisherAndRecords(t *testing.T) {
	Emit(context.Background(), nil, NewEvent(EVENT_BOOKING_CREATED, "booking:1", nil))

	p := &MemoryPublisher{}
	Emit(context.Background(), p, NewEvent(EVENT_BOOKING_CREATED, "booking:1", nil))
	Emit(context.Background(), p, NewEvent(EVENT_BOOKING_CONFIRMED, "booking:1", nil))
	assert.Equal(t, []EventType{EVENT_BOOKING_CREATED, EVENT_BOOKING_CONFIRMED}, p.Types())
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), p.Events()[0]))
}

type fakeTrigger struct {
	channels []string
	names    []string
	err      error
}

func (f *fakeTrigger) Trigger(channel string, eventName string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.channels = append(f.channels, channel)
	f.names = append(f.names, eventName)
	return nil
}

func TestPusherPublisher(t *testing.T) {
	trigger := &fakeTrigger{}
	p := NewPusherPublisher(trigger)
	require.NoError(t, p.Publish(context.Background(), NewEvent(EVENT_PAYOUT_REQUESTED, "host:3", nil)))
	assert.Equal(t, []string{"host-3"}, trigger.channels)
	assert.Equal(t, []string{"payout.requested"}, trigger.names)

	boom := errors.New("unreachable")
	err := NewPusherPublisher(&fakeTrigger{err: boom}).Publish(context.Background(), NewEvent(EVENT_BOOKING_CREATED, "booking:1", nil))
	assert.ErrorIs(t, err, boom)
}
