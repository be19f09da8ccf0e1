// Package dispatch delivers the notifications requested by matched rules.
//
// A Dispatcher resolves the addressing of a rule (recipient, subject, sender
// and network), renders an optional template and hands the message to the
// channel selected by the rule's notification type.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/herald/internal/observability"
	"github.com/rafaeljc/herald/internal/ruleengine"
)

// Defaults used when neither the rule's action config nor the request variables name a value.
const (
	DefaultSubject    = "Notification"
	DefaultSenderName = "Notification Service"
	DefaultNetworkID  = "default"
)

// Variable keys consulted after the rule's action config.
const (
	VarRecipient  = "recipient"
	VarSubject    = "subject"
	VarSenderName = "senderName"
	VarNetworkID  = "networkId"
)

// Channel names a delivery path. Used as the metrics label.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelChat      Channel = "chat"
	ChannelBroadcast Channel = "broadcast"
)

var (
	// ErrUnsupportedChannel is returned for notification types without a delivery path.
	ErrUnsupportedChannel = errors.New("unsupported notification channel")
	// ErrChannelNotConfigured is returned when the routed channel has no transport.
	ErrChannelNotConfigured = errors.New("notification channel not configured")
	// ErrTemplateNotFound is returned when a rule names a missing or inactive template.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateChannelMismatch is returned when a template targets another notification type.
	ErrTemplateChannelMismatch = errors.New("template does not match the rule's notification type")
)

// DeliveryError reports a transport failure. It is distinct from a policy block:
// the rules allowed the notification but the channel could not deliver it.
type DeliveryError struct {
	Channel Channel
	RuleID  string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed for rule %s: %v", e.Channel, e.RuleID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Message is the resolved, rendered notification handed to a channel.
type Message struct {
	RuleID     string `json:"rule_id"`
	Recipient  string `json:"recipient,omitempty"`
	Subject    string `json:"subject,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	NetworkID  string `json:"network_id,omitempty"`
	Body       string `json:"body"`
}

// Receipt acknowledges a delivery accepted by a channel.
type Receipt struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

// EmailChannel sends a message by email.
type EmailChannel interface {
	SendEmail(ctx context.Context, msg Message) error
}

// ChatChannel sends a direct chat message (WhatsApp).
type ChatChannel interface {
	SendChat(ctx context.Context, msg Message) error
}

// BroadcastChannel fans a message out to a mobile network.
type BroadcastChannel interface {
	Broadcast(ctx context.Context, msg Message) error
}

// Template is a stored message layout with {{name}} placeholders.
type Template struct {
	Name    string                      `json:"name"`
	Type    ruleengine.NotificationType `json:"type"`
	Subject string                      `json:"subject,omitempty"`
	Content string                      `json:"content"`
}

// TemplateSource loads active templates by name.
// Implementations return an error wrapping ErrTemplateNotFound when absent.
type TemplateSource interface {
	GetTemplate(ctx context.Context, name string) (*Template, error)
}

// Dispatcher routes rule actions to their channels. Channels left unset stay
// disabled. It is safe for concurrent use.
type Dispatcher struct {
	email     EmailChannel
	chat      ChatChannel
	broadcast BroadcastChannel
	templates TemplateSource
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithEmail enables the email channel.
func WithEmail(ch EmailChannel) Option {
	return func(d *Dispatcher) { d.email = ch }
}

// WithChat enables the chat channel.
func WithChat(ch ChatChannel) Option {
	return func(d *Dispatcher) { d.chat = ch }
}

// WithBroadcast enables the mobile broadcast channel.
func WithBroadcast(ch BroadcastChannel) Option {
	return func(d *Dispatcher) { d.broadcast = ch }
}

// WithTemplates sets where rule templates are loaded from.
func WithTemplates(src TemplateSource) Option {
	return func(d *Dispatcher) { d.templates = src }
}

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Dispatcher. If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers content on behalf of a matched rule.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *ruleengine.Rule, content string, variables map[string]any) (*Receipt, error) {
	if rule.CompileErr == nil && rule.Condition == nil {
		// Action overrides come from the compiled form.
		_ = ruleengine.CompileRule(rule)
	}

	msg := Message{
		RuleID:     rule.ID,
		Recipient:  resolve(rule.Action.Recipient, variables, VarRecipient, rule.RecipientID),
		Subject:    resolve(rule.Action.Subject, variables, VarSubject, DefaultSubject),
		SenderName: resolve(rule.Action.SenderName, variables, VarSenderName, DefaultSenderName),
		NetworkID:  resolve(rule.Action.NetworkID, variables, VarNetworkID, DefaultNetworkID),
		Body:       content,
	}

	if rule.TemplateName != "" {
		if err := d.applyTemplate(ctx, rule, variables, &msg); err != nil {
			return nil, err
		}
	}

	channel, send, err := d.route(rule.NotificationType)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	start := time.Now()
	sendErr := send(ctx, msg)
	observability.DispatchDuration.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())

	if sendErr != nil {
		observability.DispatchTotal.WithLabelValues(string(channel), "fail").Inc()
		d.logger.Error("notification delivery failed",
			slog.String("rule_id", rule.ID),
			slog.String("channel", string(channel)),
			slog.String("error", sendErr.Error()),
		)
		return nil, &DeliveryError{Channel: channel, RuleID: rule.ID, Err: sendErr}
	}
	observability.DispatchTotal.WithLabelValues(string(channel), "success").Inc()

	receipt := &Receipt{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Channel:   channel,
		Recipient: msg.Recipient,
		SentAt:    d.now(),
	}
	if channel == ChannelBroadcast {
		receipt.Recipient = msg.NetworkID
	}

	d.logger.Debug("notification delivered",
		slog.String("receipt_id", receipt.ID),
		slog.String("rule_id", rule.ID),
		slog.String("channel", string(channel)),
	)
	return receipt, nil
}

func (d *Dispatcher) route(nt ruleengine.NotificationType) (Channel, func(context.Context, Message) error, error) {
	switch nt {
	case ruleengine.NotificationEmail:
		if d.email == nil {
			return ChannelEmail, nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ChannelEmail)
		}
		return ChannelEmail, d.email.SendEmail, nil
	case ruleengine.NotificationWhatsApp:
		if d.chat == nil {
			return ChannelChat, nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ChannelChat)
		}
		return ChannelChat, d.chat.SendChat, nil
	case ruleengine.NotificationMobileBroadcast:
		if d.broadcast == nil {
			return ChannelBroadcast, nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ChannelBroadcast)
		}
		return ChannelBroadcast, d.broadcast.Broadcast, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, nt)
	}
}

func (d *Dispatcher) applyTemplate(ctx context.Context, rule *ruleengine.Rule, variables map[string]any, msg *Message) error {
	if d.templates == nil {
		return fmt.Errorf("%w: %q (no template source)", ErrTemplateNotFound, rule.TemplateName)
	}

	tmpl, err := d.templates.GetTemplate(ctx, rule.TemplateName)
	if err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	if tmpl.Type != rule.NotificationType {
		return fmt.Errorf("%w: template %q is %s, rule %s is %s",
			ErrTemplateChannelMismatch, tmpl.Name, tmpl.Type, rule.ID, rule.NotificationType)
	}

	msg.Body = Render(tmpl.Content, variables)
	if tmpl.Subject != "" {
		msg.Subject = Render(tmpl.Subject, variables)
	}
	return nil
}

// resolve picks the action config override, then a non-nil variable, then the default.
func resolve(override string, variables map[string]any, key, fallback string) string {
	if override != "" {
		return override
	}
	if v, ok := variables[key]; ok && v != nil {
		return ruleengine.VariableString(v)
	}
	return fallback
}
