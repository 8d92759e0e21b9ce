package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildMessage(t *testing.T) {
	fb := Feedback{
		UserID:   42,
		Username: "volunteer",
		Text:     "line one\nline two",
		SentAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	msg := string(buildMessage("bot@example.com", []string{"team@example.com", "ops@example.com"}, fb))

	assert.Contains(t, msg, "From: bot@example.com\r\n")
	assert.Contains(t, msg, "To: team@example.com, ops@example.com\r\n")
	assert.Contains(t, msg, "Subject: Feedback from @volunteer (42)\r\n")
	assert.Contains(t, msg, "Sent at: 2024-06-01T12:00:00Z")
	assert.Contains(t, msg, "line one\r\nline two")
}

func TestBuildMessage_NoUsername(t *testing.T) {
	msg := string(buildMessage("a@b", []string{"c@d"}, Feedback{UserID: 7, Text: "hi"}))
	assert.Contains(t, msg, "Subject: Feedback from 7\r\n")
}

func TestSMTPSender_SendFeedback(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth smtp.Auth

	s := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "secret",
		From:     "bot@example.com",
		To:       []string{"team@example.com"},
	})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		return nil
	}

	err := s.SendFeedback(context.Background(), Feedback{UserID: 1, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"team@example.com"}, gotTo)
}

func TestSMTPSender_RelayFailure(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25, From: "a@b", To: []string{"c@d"}})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.SendFeedback(context.Background(), Feedback{UserID: 1, Text: "hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	called := false
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendFeedback(ctx, Feedback{UserID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(zap.NewNop())
	assert.NoError(t, s.SendFeedback(context.Background(), Feedback{UserID: 1, Text: "hi"}))
}
