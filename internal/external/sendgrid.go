package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lovebirdz/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendInput describes one outbound email. Template rendering is out of scope
// for this engine; the welcome worker composes plain text and HTML bodies
// directly.
type SendInput struct {
	To          string
	ToName      string
	Subject     string
	TextBody    string
	HTMLBody    string
	ReferenceID string // correlation with the originating queue message
}

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to sendGridAPIBase
	Logger      *slog.Logger
}

// SendGridClient delivers email through SendGrid's v3 Mail Send API via
// BaseClient, inheriting the platform's retry and circuit breaker behavior.
type SendGridClient struct {
	base    *BaseClient
	cfg     SendGridClientConfig
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a new SendGridClient with a default BaseClient.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"LoveBirdz/1.0",
	)
	return NewSendGridClientWithBase(base, cfg)
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient, for tests that need to control retries.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Send transmits an email and returns the provider message ID (from the
// X-Message-Id response header) on success. SendGrid returns 202 Accepted
// for queued mail; anything else is mapped to an AppError.
func (s *SendGridClient) Send(ctx context.Context, input SendInput) (string, error) {
	body, err := json.Marshal(s.buildMailPayload(input))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.base.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok {
			return "", appErr.WithDetails(map[string]any{"operation": "Send"})
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SendGrid request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid returned unexpected status %d", resp.StatusCode),
		nil,
	)
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps a SendInput to the SendGrid v3 mail/send body.
// Content ordering matters to SendGrid: text/plain must precede text/html.
func (s *SendGridClient) buildMailPayload(input SendInput) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To, Name: input.ToName}}},
		},
		From:    sendGridAddress{Email: s.cfg.FromAddress, Name: s.cfg.FromName},
		Subject: input.Subject,
	}
	if input.TextBody != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/plain", Value: input.TextBody})
	}
	if input.HTMLBody != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: input.HTMLBody})
	}
	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return payload
}
