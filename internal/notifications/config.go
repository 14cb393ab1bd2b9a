package notifications

import (
	"context"
	"time"

	"consultbook/pkg/client"
	"consultbook/pkg/config"
)

const gatewayTimeout = 10 * time.Second

// FromConfig builds the notification service for the gateways that are
// configured. Channels without a gateway log instead of delivering.
func FromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	var email, sms, push Sender

	if cfg.EmailGatewayURL != "" {
		email = NewEmailSender(client.NewHTTPClient(cfg.EmailGatewayURL, gatewayTimeout), cfg.EmailGatewayKey)
		cfg.Log.Info("Email gateway configured", "url", cfg.EmailGatewayURL)
	}
	if cfg.SMSGatewayURL != "" {
		sms = NewSMSSender(client.NewHTTPClient(cfg.SMSGatewayURL, gatewayTimeout), cfg.SMSGatewayKey, cfg.SMSSenderName)
		cfg.Log.Info("SMS gateway configured", "url", cfg.SMSGatewayURL)
	}
	if cfg.FirebaseCredentialsFile != "" {
		sender, err := NewPushSender(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		push = sender
		cfg.Log.Info("Push notifications configured")
	}

	return NewService(email, sms, push, cfg.Log), nil
}
