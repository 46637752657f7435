package mailer

import (
	"context"
	"errors"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

var ErrMailgunNotConfigured = errors.New("mailgun domain, api key and sender are required")

// Mailgun wraps Mailgun client configuration.
type Mailgun struct {
	Domain  string
	APIKey  string
	Sender  string
	Timeout time.Duration

	client *mg.MailgunImpl
}

func NewMailgun(domain, apiKey, sender string, timeout time.Duration) (*Mailgun, error) {
	if domain == "" || apiKey == "" || sender == "" {
		return nil, ErrMailgunNotConfigured
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mailgun{
		Domain:  domain,
		APIKey:  apiKey,
		Sender:  sender,
		Timeout: timeout,
		client:  mg.NewMailgun(domain, apiKey),
	}, nil
}

// Send sends a text email via Mailgun within the configured timeout.
func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	message := m.client.NewMessage(m.Sender, msg.Subject, msg.Text, msg.To)
	c, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	_, _, err := m.client.Send(c, message)
	return err
}
