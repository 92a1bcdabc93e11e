package mailer

import (
	"errors"
	"fmt"

	"github.com/prodcat/apiserver/config"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Sender delivers verification and password-reset email. It exists as
// an interface so services can be tested without an SMTP server.
type Sender interface {
	SendOTP(to, code string, validFor string) error
	SendVerificationLink(to, link string) error
	SendPasswordResetLink(to, link string) error
}

// Mailer sends email over SMTP using gomail.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
	logger zerolog.Logger
}

// NewMailer constructs a Mailer from SMTP config.
func NewMailer(cfg config.SMTPConfig, logger zerolog.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		return nil, errors.New("smtp port is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}

	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}, nil
}

// SendOTP emails the 6-digit one-time code.
func (m *Mailer) SendOTP(to, code string, validFor string) error {
	body := fmt.Sprintf(`
		<p>Hi,</p>
		<p>Your verification code is:</p>
		<p style="font-size:28px;letter-spacing:6px;font-family:monospace"><b>%s</b></p>
		<p>The code expires in %s. If you did not request it, you can ignore this email.</p>
	`, code, validFor)
	return m.send(to, "Your verification code", body)
}

// SendVerificationLink emails the single-use verification link.
func (m *Mailer) SendVerificationLink(to, link string) error {
	body := fmt.Sprintf(`
		<p>Hi,</p>
		<p>Click the link below to verify your email address:</p>
		<p><a href="%s">%s</a></p>
		<p>The link can be used only once. If you did not register, you can ignore this email.</p>
	`, link, link)
	return m.send(to, "Verify your email", body)
}

// SendPasswordResetLink emails the single-use password-reset link.
func (m *Mailer) SendPasswordResetLink(to, link string) error {
	body := fmt.Sprintf(`
		<p>Hi,</p>
		<p>We received a request to reset the password for your account.</p>
		<p>If you made this request, click the link below to choose a new password:</p>
		<p><a href="%s">%s</a></p>
		<p>If you did not request a password reset, you can safely ignore this email.</p>
	`, link, link)
	return m.send(to, "Password reset request", body)
}

func (m *Mailer) send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email send failed")
		return err
	}
	m.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
