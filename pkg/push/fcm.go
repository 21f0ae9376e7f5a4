package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/noah-isme/dorm-gate-api/pkg/config"
)

// Message is the transport-agnostic payload handed to a Pusher.
type Message struct {
	DeviceToken string
	Title       string
	Body        string
	Data        map[string]string
}

// Pusher delivers a message to a single device. Implementations must
// respect the context deadline; the caller never waits past it.
type Pusher interface {
	Push(ctx context.Context, msg Message) error
}

// FCMPusher delivers messages through Firebase Cloud Messaging.
type FCMPusher struct {
	client *messaging.Client
}

// NewFCMPusher initialises the Firebase app and messaging client once at
// process start. Returns nil when push is disabled in config.
func NewFCMPusher(ctx context.Context, cfg config.PushConfig) (*FCMPusher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opt := option.WithCredentialsFile(cfg.CredentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm client: %w", err)
	}
	return &FCMPusher{client: client}, nil
}

// Push sends a single notification message to the device token.
func (p *FCMPusher) Push(ctx context.Context, msg Message) error {
	if p == nil || p.client == nil {
		return nil
	}
	_, err := p.client.Send(ctx, &messaging.Message{
		Token: msg.DeviceToken,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
