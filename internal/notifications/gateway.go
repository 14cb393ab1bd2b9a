package notifications

import (
	"context"
	"fmt"

	"consultbook/pkg/client"
)

type emailRequest struct {
	TemplateID string            `json:"template_id"`
	To         string            `json:"to"`
	Data       map[string]string `json:"data"`
}

// EmailSender posts templated messages to a transactional email gateway.
type EmailSender struct {
	http *client.HTTPClient
}

func NewEmailSender(httpClient *client.HTTPClient, apiKey string) *EmailSender {
	httpClient.WithBearer(apiKey).WithHeader("Accept", "application/json")
	return &EmailSender{http: httpClient}
}

func (s *EmailSender) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	resp, err := s.http.PostJSON(ctx, "/v1/messages", emailRequest{
		TemplateID: templateID,
		To:         recipient,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("email gateway: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("email gateway rejected message: %s", client.ErrorMessage(resp))
	}
	return nil
}

type smsRequest struct {
	Recipient  string            `json:"recipient"`
	SenderName string            `json:"sender_name"`
	TemplateID string            `json:"template_id"`
	Message    string            `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
}

type smsResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Msg       string `json:"msg"`
}

// SMSSender posts messages to an SMS gateway. The gateway reports failures
// either through the HTTP status or a non "success" status field.
type SMSSender struct {
	http       *client.HTTPClient
	senderName string
}

func NewSMSSender(httpClient *client.HTTPClient, apiKey, senderName string) *SMSSender {
	httpClient.WithBearer(apiKey).WithHeader("Accept", "application/json")
	return &SMSSender{http: httpClient, senderName: senderName}
}

func (s *SMSSender) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	resp, err := s.http.PostJSON(ctx, "/sms/send", smsRequest{
		Recipient:  recipient,
		SenderName: s.senderName,
		TemplateID: templateID,
		Message:    data[KeyBody],
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("sms gateway rejected message: %s", client.ErrorMessage(resp))
	}

	var out smsResponse
	if err := resp.DecodeJSON(&out); err == nil && out.Status != "" && out.Status != "success" {
		return fmt.Errorf("sms gateway status %s: %s", out.Status, out.Msg)
	}
	return nil
}
