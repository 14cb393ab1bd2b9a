// Package notifications delivers templated messages to customers over email,
// SMS and push. Delivery is an upstream dependency: every failure surfaces as
// NOTIFICATION_DISPATCH_FAILED and never unwinds booking state.
package notifications

import (
	"context"
	"fmt"

	apperrors "consultbook/pkg/errors"
	"consultbook/pkg/logger"
	"consultbook/pkg/model"
)

const CodeNotificationDispatchFailed = "NOTIFICATION_DISPATCH_FAILED"

var NotificationDispatchFailed = apperrors.Upstream(CodeNotificationDispatchFailed, "notification dispatch failed", nil)

// Notifier is the outbound notification port.
type Notifier interface {
	SendEmail(ctx context.Context, templateID, recipient string, data map[string]string) error
	SendSMS(ctx context.Context, templateID, recipient string, data map[string]string) error
	SendPush(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// SendFunc is one channel method of a Notifier.
type SendFunc func(ctx context.Context, templateID, recipient string, data map[string]string) error

// ChannelSender picks the Notifier method for channel.
func ChannelSender(n Notifier, channel model.Channel) (SendFunc, bool) {
	switch channel {
	case model.ChannelEmail:
		return n.SendEmail, true
	case model.ChannelSMS:
		return n.SendSMS, true
	case model.ChannelPush:
		return n.SendPush, true
	}
	return nil, false
}

// Sender delivers one message over a single channel.
type Sender interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// Service routes each channel to its sender. A nil sender falls back to a
// LogSender so local environments run without gateways.
type Service struct {
	email Sender
	sms   Sender
	push  Sender
}

func NewService(email, sms, push Sender, log *logger.Logger) *Service {
	if email == nil {
		email = NewLogSender(model.ChannelEmail, log)
	}
	if sms == nil {
		sms = NewLogSender(model.ChannelSMS, log)
	}
	if push == nil {
		push = NewLogSender(model.ChannelPush, log)
	}
	return &Service{email: email, sms: sms, push: push}
}

func (s *Service) SendEmail(ctx context.Context, templateID, recipient string, data map[string]string) error {
	return send(ctx, s.email, model.ChannelEmail, templateID, recipient, data)
}

func (s *Service) SendSMS(ctx context.Context, templateID, recipient string, data map[string]string) error {
	return send(ctx, s.sms, model.ChannelSMS, templateID, recipient, data)
}

func (s *Service) SendPush(ctx context.Context, templateID, recipient string, data map[string]string) error {
	return send(ctx, s.push, model.ChannelPush, templateID, recipient, data)
}

func send(ctx context.Context, sender Sender, channel model.Channel, templateID, recipient string, data map[string]string) error {
	if recipient == "" {
		return NewDispatchFailed(channel, fmt.Errorf("no %s recipient", channel))
	}
	if err := sender.Send(ctx, templateID, recipient, data); err != nil {
		return NewDispatchFailed(channel, err)
	}
	return nil
}

func NewDispatchFailed(channel model.Channel, err error) *apperrors.AppError {
	return NotificationDispatchFailed.
		WithCause(err).
		WithDetails(map[string]any{"channel": channel})
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	channel model.Channel
	log     *logger.Logger
}

func NewLogSender(channel model.Channel, log *logger.Logger) *LogSender {
	return &LogSender{channel: channel, log: log}
}

func (s *LogSender) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	s.log.Info("Notification not delivered, channel has no gateway configured",
		"channel", s.channel,
		"template_id", templateID,
		"booking_id", data[KeyBookingID],
	)
	return nil
}
