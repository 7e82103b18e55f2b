// Package notifications contains the welcome email pipeline consumed by the
// email worker: message composition, delivery through the email provider and
// CloudWatch telemetry for the outcomes.
package notifications

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"lovebirdz/internal/external"
	"lovebirdz/internal/types"
)

// EmailSender is the slice of the email provider the mailer needs.
type EmailSender interface {
	Send(ctx context.Context, input external.SendInput) (string, error)
}

// WelcomeMailer composes and delivers the welcome email for a freshly
// provisioned account. The raw credential travels only inside this one
// message; it is gone once the email is out.
type WelcomeMailer struct {
	sender EmailSender
	logger *slog.Logger
}

// NewWelcomeMailer creates a WelcomeMailer over the given provider.
func NewWelcomeMailer(sender EmailSender, logger *slog.Logger) *WelcomeMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WelcomeMailer{
		sender: sender,
		logger: logger,
	}
}

// Deliver sends the welcome email for msg and returns the provider message
// ID. Errors bubble up so the worker can decide between retry and drop.
func (m *WelcomeMailer) Deliver(ctx context.Context, msg types.WelcomeMessage) (string, error) {
	input := composeWelcome(msg)

	providerID, err := m.sender.Send(ctx, input)
	if err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "welcome email delivered",
		"account_id", msg.AccountID,
		"message_id", msg.MessageID,
		"provider_message_id", providerID,
	)
	return providerID, nil
}

// composeWelcome builds the welcome email content. The credential is
// included in the body once, matching the one-shot onboarding email the
// member expects right after registration.
func composeWelcome(msg types.WelcomeMessage) external.SendInput {
	text := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Welcome to LoveBirdz! Your account is ready.\n\n"+
			"Login email: %s\n"+
			"Password: %s\n\n"+
			"Please change your password after your first login.\n\n"+
			"Happy matching,\nThe LoveBirdz team\n",
		msg.Name, msg.Email, msg.Password.Unmask(),
	)

	// Name, email and credential are member-supplied; escape them so they
	// cannot inject markup into the HTML variant.
	htmlBody := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Welcome to <strong>LoveBirdz</strong>! Your account is ready.</p>"+
			"<p>Login email: %s<br>Password: %s</p>"+
			"<p>Please change your password after your first login.</p>"+
			"<p>Happy matching,<br>The LoveBirdz team</p>",
		html.EscapeString(msg.Name),
		html.EscapeString(msg.Email),
		html.EscapeString(msg.Password.Unmask()),
	)

	return external.SendInput{
		To:          msg.Email,
		ToName:      msg.Name,
		Subject:     "Welcome to LoveBirdz",
		TextBody:    text,
		HTMLBody:    htmlBody,
		ReferenceID: msg.MessageID,
	}
}
