package lib

import (
	"context"
	"os"
	"strings"

	"github.com/pusher/pusher-http-go/v5"
)

type pusherTrigger interface {
	Trigger(channel string, eventName string, data interface{}) error
}

var pusherClient *pusher.Client

func GetPusherClient() *pusher.Client {
	if pusherClient != nil {
		return pusherClient
	}
	pusherClient = &pusher.Client{
		AppID:   os.Getenv("PUSHER_APP_ID"),
		Key:     os.Getenv("PUSHER_KEY"),
		Secret:  os.Getenv("PUSHER_SECRET"),
		Cluster: os.Getenv("PUSHER_CLUSTER"),
		Secure:  true,
	}
	return pusherClient
}

// PusherPublisher pushes events to dashboards listening on the entity channel, e.g. booking-12
// or host-3.
type PusherPublisher struct {
	client pusherTrigger
}

func NewPusherPublisher(client pusherTrigger) *PusherPublisher {
	if client == nil {
		client = GetPusherClient()
	}
	return &PusherPublisher{client: client}
}

// PusherChannel turns an event key into a valid channel name.
func PusherChannel(key string) string {
	return strings.ReplaceAll(key, ":", "-")
}

func (p *PusherPublisher) Publish(ctx context.Context, e Event) error {
	return p.client.Trigger(PusherChannel(e.Key), string(e.Type), e)
}
