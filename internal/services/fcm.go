package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const pushTimeout = 10 * time.Second

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushService delivers agent notices to the field worker's devices through
// Firebase Cloud Messaging
type PushService struct {
	client multicastSender
	tokens []string
}

// PushCredentials selects the service account. File wins over Base64; the
// base64 form suits deployments where files cannot be uploaded.
type PushCredentials struct {
	File   string
	Base64 string
}

func (c PushCredentials) Configured() bool {
	return c.File != "" || c.Base64 != ""
}

func NewPushService(ctx context.Context, creds PushCredentials, deviceTokens []string) (*PushService, error) {
	if len(deviceTokens) == 0 {
		return nil, errors.New("push: no device tokens configured")
	}

	var opt option.ClientOption
	switch {
	case creds.File != "":
		opt = option.WithCredentialsFile(creds.File)
	case creds.Base64 != "":
		credentialsJSON, err := base64.StdEncoding.DecodeString(creds.Base64)
		if err != nil {
			return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(credentialsJSON)
	default:
		return nil, errors.New("push: no credentials configured")
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return newPushService(client, deviceTokens), nil
}

func newPushService(client multicastSender, deviceTokens []string) *PushService {
	return &PushService{client: client, tokens: append([]string(nil), deviceTokens...)}
}

// Notify sends a user-visible notice. Delivery failures are logged only.
func (s *PushService) Notify(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := s.Send(ctx, title, body); err != nil {
		log.Printf("❌ [PUSH] %v", err)
	}
}

// Send delivers one notice to every device and fails when none received it
func (s *PushService) Send(ctx context.Context, title, body string) error {
	response, err := s.client.SendEachForMulticast(ctx, noticeMessage(s.tokens, title, body))
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	log.Printf("✅ [PUSH] %q sent: %d success, %d failures", title, response.SuccessCount, response.FailureCount)
	for i, r := range response.Responses {
		if r != nil && !r.Success && i < len(s.tokens) {
			log.Printf("⚠️  [PUSH] Device %s rejected the notice: %v", shortToken(s.tokens[i]), r.Error)
		}
	}
	if response.SuccessCount == 0 {
		return fmt.Errorf("no device accepted %q", title)
	}
	return nil
}

func noticeMessage(tokens []string, title, body string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type": "agent_notice",
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
