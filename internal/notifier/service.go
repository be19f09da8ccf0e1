// Package notifier runs the send workflow: evaluate the recipient's rules,
// deliver through every rule that asks for it, then record the send.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/logger"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/validation"
)

var (
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid notification request")

	// ErrStatsNotRecorded wraps a stats failure after every delivery succeeded.
	ErrStatsNotRecorded = errors.New("notification stats not recorded")
)

// Request is one outbound notification.
type Request struct {
	RecipientID string         `json:"recipient_id"`
	Content     string         `json:"content"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// Outcome reports what Send did.
type Outcome struct {
	ruleengine.Result
	Receipts []dispatch.Receipt `json:"receipts"`
}

// Decider evaluates rules and records sends. Implemented by *ruleengine.Engine.
type Decider interface {
	Decide(ctx context.Context, recipientID, content string, variables map[string]any) (ruleengine.Decision, error)
	UpdateStats(ctx context.Context, recipientID string) error
}

// Dispatcher delivers on behalf of a rule. Implemented by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *ruleengine.Rule, content string, variables map[string]any) (*dispatch.Receipt, error)
}

var (
	_ Decider    = (*ruleengine.Engine)(nil)
	_ Dispatcher = (*dispatch.Dispatcher)(nil)
)

// Service glues the engine to the dispatcher.
type Service struct {
	engine     Decider
	dispatcher Dispatcher
}

// New creates a Service.
func New(engine Decider, dispatcher Dispatcher) *Service {
	validation.AssertDependency(engine, "rule engine")
	validation.AssertDependency(dispatcher, "dispatcher")
	return &Service{engine: engine, dispatcher: dispatcher}
}

// Send evaluates req and, unless blocked, dispatches every matched rule whose
// action is neither BLOCK nor ALLOW. A blocked request is not an error.
//
// Stats are updated once per send that delivered at least one message, or that
// had nothing to deliver. When a dispatch fails after earlier ones went out, the
// partial Outcome is returned with the dispatch error so the caller still sees
// the receipts. A stats failure after a clean run returns the Outcome with an
// error wrapping ErrStatsNotRecorded.
func (s *Service) Send(ctx context.Context, req Request) (*Outcome, error) {
	if req.RecipientID == "" {
		return nil, fmt.Errorf("%w: recipient_id is required", ErrInvalidRequest)
	}

	ctx, log := logger.With(ctx, slog.String("recipient_id", req.RecipientID))
	log.Debug("evaluating notification",
		slog.String(logger.ContentKey, req.Content),
		slog.Int("variables", len(req.Variables)),
	)

	decision, err := s.engine.Decide(ctx, req.RecipientID, req.Content, req.Variables)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Result: decision.Result, Receipts: []dispatch.Receipt{}}
	if decision.Blocked {
		log.Info("notification blocked", slog.String("reason", decision.BlockReason))
		return outcome, nil
	}

	for i := range decision.Matched {
		rule := &decision.Matched[i]
		if !Dispatchable(rule.ActionType) {
			continue
		}

		receipt, err := s.dispatcher.Dispatch(ctx, rule, req.Content, req.Variables)
		if err != nil {
			return s.partial(ctx, log, req.RecipientID, outcome, err)
		}
		outcome.Receipts = append(outcome.Receipts, *receipt)
	}

	if err := s.engine.UpdateStats(ctx, req.RecipientID); err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrStatsNotRecorded, err)
	}

	log.Info("notification sent", slog.Int("deliveries", len(outcome.Receipts)))
	return outcome, nil
}

// partial handles a dispatch failure. Nothing delivered means nothing happened;
// otherwise the send is counted and the receipts so far travel with the error.
func (s *Service) partial(ctx context.Context, log *slog.Logger, recipientID string, outcome *Outcome, dispatchErr error) (*Outcome, error) {
	if len(outcome.Receipts) == 0 {
		return nil, dispatchErr
	}

	if err := s.engine.UpdateStats(ctx, recipientID); err != nil {
		log.Error("failed to record stats for partial delivery", slog.String("error", err.Error()))
	}

	log.Warn("notification partially delivered",
		slog.Int("deliveries", len(outcome.Receipts)),
		slog.String("error", dispatchErr.Error()),
	)
	return outcome, dispatchErr
}

// Evaluate is a dry run: the decision without dispatch or stats changes.
func (s *Service) Evaluate(ctx context.Context, req Request) (ruleengine.Result, error) {
	if req.RecipientID == "" {
		return ruleengine.Result{}, fmt.Errorf("%w: recipient_id is required", ErrInvalidRequest)
	}
	d, err := s.engine.Decide(ctx, req.RecipientID, req.Content, req.Variables)
	if err != nil {
		return ruleengine.Result{}, err
	}
	return d.Result, nil
}

// Dispatchable reports whether a matched rule with this action delivers a message.
func Dispatchable(actionType string) bool {
	return actionType != ruleengine.ActionBlock && actionType != ruleengine.ActionAllow
}
