package notifications

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSender delivers push notifications through Firebase Cloud Messaging.
// The recipient is the device registration token.
type PushSender struct {
	client messagingClient
}

func NewPushSender(ctx context.Context, credentialsFile string) (*PushSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	return &PushSender{client: client}, nil
}

func (s *PushSender) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	payload := make(map[string]string, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[KeyTemplateID] = templateID

	msg := &messaging.Message{
		Token: recipient,
		Notification: &messaging.Notification{
			Title: data[KeyTitle],
			Body:  data[KeyBody],
		},
		Data: payload,
	}

	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}
