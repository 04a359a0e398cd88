package siteauth

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SendEmail allows applications to provide their own email sending implementation
type SendEmail interface {
	SendVerificationEmail(to string, verificationLink string) error
	SendPasswordResetEmail(to string, resetLink string) error
	SendSignInLinkEmail(to string, signInLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails instead
// of sending them.
type ConsoleEmailSender struct {
	Logger *zap.Logger
}

func (c *ConsoleEmailSender) log(kind, to, subject, link string) error {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("link", link))
	return nil
}

func (c *ConsoleEmailSender) SendVerificationEmail(to, verificationLink string) error {
	return c.log("verification", to, "Verify your email address", verificationLink)
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to, resetLink string) error {
	return c.log("password_reset", to, "Reset your password", resetLink)
}

func (c *ConsoleEmailSender) SendSignInLinkEmail(to, signInLink string) error {
	return c.log("signin_link", to, "Your sign-in link", signInLink)
}

// SMTPEmailSender sends mail through a plain SMTP relay.
type SMTPEmailSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func (s *SMTPEmailSender) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	from := s.From
	if s.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.FromName, s.From)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPEmailSender) SendVerificationEmail(to, verificationLink string) error {
	return s.send(to, "Verify your email address",
		"Please verify your email by clicking: "+verificationLink)
}

func (s *SMTPEmailSender) SendPasswordResetEmail(to, resetLink string) error {
	return s.send(to, "Reset your password",
		"Reset your password by clicking: "+resetLink)
}

func (s *SMTPEmailSender) SendSignInLinkEmail(to, signInLink string) error {
	return s.send(to, "Your sign-in link",
		"Sign in to Loomline by clicking: "+signInLink)
}
