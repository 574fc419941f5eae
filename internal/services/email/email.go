// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/i18n"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"github.com/wneessen/go-mail"
)

// Sender delivers a rendered plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service renders localized emails and hands them to a Sender.
type Service struct {
	sender      Sender
	frontendURL string
}

// Invitation holds what the invitation email needs to render.
type Invitation struct { //nolint:govet // fieldalignment: readability over optimization
	OwnerName     string
	RecipientName string
	Token         string
	AccessLevel   models.AccessLevel
	ReportCount   int
	ExpiresAt     time.Time
}

// NewService creates an email service that delivers over SMTP.
func NewService(cfg *config.SMTPConfig, frontendURL string) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return New(&SMTPSender{cfg: cfg}, frontendURL), nil
}

// New creates an email service on top of an arbitrary sender.
func New(sender Sender, frontendURL string) *Service {
	return &Service{
		sender:      sender,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

// SendOTP sends a one-time code. The subject depends on the purpose.
func (s *Service) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error {
	subject := i18n.T(ctx, "otp_subject_"+string(purpose))
	body := i18n.TData(ctx, "otp_body", map[string]any{
		"Code":    code,
		"Minutes": int(validFor.Minutes()),
	})

	return s.sender.Send(ctx, to, subject, body)
}

// AcceptURL builds the link a recipient follows to accept an invitation.
func (s *Service) AcceptURL(token string) string {
	return fmt.Sprintf("%s/shared/accept?token=%s", s.frontendURL, token)
}

// SendInvitation sends a report sharing invitation with the accept link.
func (s *Service) SendInvitation(ctx context.Context, to string, inv Invitation) error {
	recipient := inv.RecipientName
	if recipient == "" {
		recipient = to
	}
	owner := inv.OwnerName
	if owner == "" {
		owner = i18n.T(ctx, "app_name")
	}

	data := map[string]any{
		"OwnerName":     owner,
		"RecipientName": recipient,
		"AccessLevel":   i18n.T(ctx, "access_"+string(inv.AccessLevel)),
		"AcceptURL":     s.AcceptURL(inv.Token),
		"ExpiresAt":     inv.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
	}

	subject := i18n.TData(ctx, "invitation_subject", data)
	body := i18n.TData(ctx, "invitation_body", data)
	if inv.ReportCount > 0 {
		body += "\n\n" + i18n.TPlural(ctx, "invitation_reports", inv.ReportCount)
	}

	return s.sender.Send(ctx, to, subject, body)
}

// SMTPSender sends email via SMTP using go-mail.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// in dev mode when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	slog.InfoContext(ctx, "email_logged",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
