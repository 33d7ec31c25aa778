// Package mailer delivers transactional email for account verification
// and password resets.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"
)

// SMTP sends mail through a plain SMTP relay such as Mailpit in
// development or a local postfix in production.
type SMTP struct {
	addr    string
	from    string
	baseURL string
}

// NewSMTP builds a mailer pointed at host:port.
func NewSMTP(host string, port int, from, baseURL string) *SMTP {
	return &SMTP{
		addr:    fmt.Sprintf("%s:%d", host, port),
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SendVerificationEmail mails the signed-up user a verification link.
func (m *SMTP) SendVerificationEmail(ctx context.Context, to, token, userID string) error {
	link := m.verificationLink(userID, token)
	body := fmt.Sprintf("Welcome!\r\n\r\nConfirm your email address by visiting:\r\n\r\n%s\r\n\r\nThe link expires in 24 hours.\r\n", link)
	return m.send(ctx, to, "Verify your email address", body)
}

// SendPasswordResetEmail mails a password reset link.
func (m *SMTP) SendPasswordResetEmail(ctx context.Context, to, token, userID string) error {
	link := m.resetLink(userID, token)
	body := fmt.Sprintf("A password reset was requested for your account.\r\n\r\nReset it here:\r\n\r\n%s\r\n\r\nIf you did not request this, ignore this message.\r\n", link)
	return m.send(ctx, to, "Reset your password", body)
}

func (m *SMTP) verificationLink(userID, token string) string {
	return fmt.Sprintf("%s/verify-email?userId=%s&token=%s",
		m.baseURL, url.QueryEscape(userID), url.QueryEscape(token))
}

func (m *SMTP) resetLink(userID, token string) string {
	return fmt.Sprintf("%s/reset-password?userId=%s&token=%s",
		m.baseURL, url.QueryEscape(userID), url.QueryEscape(token))
}

func (m *SMTP) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}
