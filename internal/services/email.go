package services

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/repteam/rep/internal/shared"
)

// DefaultFrom is the sender used when an [Email] leaves From empty.
const DefaultFrom = "Rep Client Portal <hello@repteam.com>"

// resendSender is the part of the Resend client used by [ResendMailer].
type resendSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer implements [Mailer] with Resend.
type ResendMailer struct {
	emails resendSender
	from   string
}

// NewResendMailer creates a mailer. A missing apiKey yields a mailer whose Send always fails
// with [shared.ErrMissingCredentials], so the server can still start without email configured.
func NewResendMailer(apiKey, from string) *ResendMailer {
	m := &ResendMailer{from: shared.FirstNonEmpty(from, DefaultFrom)}
	if apiKey != "" {
		m.emails = resend.NewClient(apiKey).Emails
	}
	return m
}

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	if m.emails == nil {
		return "", fmt.Errorf("%w: RESEND_API_KEY is not set", shared.ErrMissingCredentials)
	}
	if email.To == "" {
		return "", fmt.Errorf("%w: recipient", shared.ErrMissingField)
	}

	req := &resend.SendEmailRequest{
		From:    shared.FirstNonEmpty(email.From, m.from),
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		ReplyTo: email.ReplyTo,
		Bcc:     email.Bcc,
	}

	resp, err := m.emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrEmailSend, err)
	}
	return resp.Id, nil
}
