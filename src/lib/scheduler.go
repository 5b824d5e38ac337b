package lib

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

func GetScheduler() (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	return sched, nil
}

// SweepFunc is a maintenance pass that reports how many records it changed.
type SweepFunc func(ctx context.Context) (int, error)

// CreateSweepJob runs sweep every interval. A run that is still going when the next one is due
// causes that tick to be rescheduled rather than overlap.
func CreateSweepJob(name string, interval time.Duration, sweep SweepFunc) (*string, error) {
	sched, err := GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return nil, err
	}
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			RunSweep(context.Background(), name, sweep)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Error creating job %s: %s\n", name, err.Error())
		return nil, err
	}
	id := j.ID().String()
	log.Printf("[sweep] %s scheduled every %s: %s\n", name, interval, id)
	return &id, nil
}

func RunSweep(ctx context.Context, name string, sweep SweepFunc) {
	n, err := sweep(ctx)
	if err != nil {
		log.Printf("[sweep] %s failed after %d changes: %s\n", name, n, err.Error())
		return
	}
	if n > 0 {
		log.Printf("[sweep] %s changed %d bookings\n", name, n)
	}
}
