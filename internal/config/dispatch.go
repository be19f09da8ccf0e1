package config

import (
	"fmt"
	"time"
)

// DispatchConfig configures the outbound channels used when a matched rule asks for delivery.
// A channel with no configuration stays disabled; rules routed to it fail with a dispatch error.
type DispatchConfig struct {
	SMTP SMTPConfig `envconfig:"SMTP"`

	ChatWebhookURL      string        `envconfig:"CHAT_WEBHOOK_URL"`
	BroadcastWebhookURL string        `envconfig:"BROADCAST_WEBHOOK_URL"`
	WebhookTimeout      time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s" validate:"min=100ms"`
	WebhookRetries      int           `envconfig:"WEBHOOK_RETRIES" default:"3" validate:"min=0,max=10"`
	WebhookRetryDelay   time.Duration `envconfig:"WEBHOOK_RETRY_DELAY" default:"500ms"`
}

// SMTPConfig holds the mail relay settings for the email channel.
type SMTPConfig struct {
	Host      string `envconfig:"HOST"`
	Port      int    `envconfig:"PORT" default:"587" validate:"min=1,max=65535"`
	Username  string `envconfig:"USERNAME"`
	Password  string `envconfig:"PASSWORD"`
	FromEmail string `envconfig:"FROM_EMAIL" default:"noreply@herald.local"`
}

// IsConfigured reports whether an SMTP relay is available.
func (c *SMTPConfig) IsConfigured() bool {
	return c.Host != ""
}

// Validate checks the dispatch configuration.
func (c *DispatchConfig) Validate(environment string) error {
	if c.SMTP.IsConfigured() {
		if err := validateHost(c.SMTP.Host, "smtp"); err != nil {
			return err
		}
		if err := validateNoWhitespace(c.SMTP.FromEmail, "smtp from email"); err != nil {
			return err
		}
		if environment == EnvironmentProduction && c.SMTP.Password == "" {
			return fmt.Errorf("smtp password is required in production environment")
		}
	}

	for name, raw := range map[string]string{
		"chat webhook":      c.ChatWebhookURL,
		"broadcast webhook": c.BroadcastWebhookURL,
	} {
		if raw == "" {
			continue
		}
		schemes := []string{"http", "https"}
		if environment == EnvironmentProduction {
			schemes = []string{"https"}
		}
		if _, err := parseAndValidateURL(raw, schemes); err != nil {
			return fmt.Errorf("invalid %s URL: %w", name, err)
		}
	}

	return nil
}
