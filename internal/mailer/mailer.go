package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Feedback is a message a user sent to the maintainers
type Feedback struct {
	UserID   int64
	Username string
	Text     string
	SentAt   time.Time
}

// SMTPConfig holds the relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender hands feedback to an SMTP relay
type SMTPSender struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPSender creates a sender for the relay
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// SendFeedback delivers one feedback message
func (s *SMTPSender) SendFeedback(ctx context.Context, fb Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, s.cfg.To, buildMessage(s.cfg.From, s.cfg.To, fb)); err != nil {
		return fmt.Errorf("failed to send feedback: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, fb Feedback) []byte {
	author := fmt.Sprintf("%d", fb.UserID)
	if fb.Username != "" {
		author = fmt.Sprintf("@%s (%d)", fb.Username, fb.UserID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: Feedback from %s\r\n", author)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Sent at: %s\r\n\r\n", fb.SentAt.UTC().Format(time.RFC3339))
	b.WriteString(strings.ReplaceAll(fb.Text, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender only logs feedback; used when no relay is configured
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender that writes feedback to the log
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendFeedback logs the message
func (s *LogSender) SendFeedback(ctx context.Context, fb Feedback) error {
	s.logger.Info("Feedback received",
		zap.Int64("user_id", fb.UserID),
		zap.String("username", fb.Username),
		zap.String("text", fb.Text))
	return nil
}
