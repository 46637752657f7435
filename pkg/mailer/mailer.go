package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message is a plain-text notification to one recipient.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers a message once. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of delivering them.
// Used when MAIL_SEND_ENABLED is false.
type LogSender struct {
	Logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender { return &LogSender{Logger: logger} }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("mail delivery disabled, message logged")
	s.Logger.Debug(msg.Text)
	return nil
}
