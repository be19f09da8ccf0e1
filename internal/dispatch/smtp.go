package dispatch

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/rafaeljc/herald/internal/config"
)

// mailSender is the part of gomail.Dialer the channel needs.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPChannel delivers email through an SMTP relay.
type SMTPChannel struct {
	sender mailSender
	from   string
}

var _ EmailChannel = (*SMTPChannel)(nil)

// NewSMTPChannel creates an email channel from relay settings.
func NewSMTPChannel(cfg config.SMTPConfig) (*SMTPChannel, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("smtp from email is required")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPChannel{sender: dialer, from: cfg.FromEmail}, nil
}

// SendEmail sends msg as a plain-text email. The relay call cannot be
// interrupted; a cancelled ctx only stops the wait for it.
func (c *SMTPChannel) SendEmail(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("email recipient is empty")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", c.from, msg.SenderName)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() { done <- c.sender.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	}
}
