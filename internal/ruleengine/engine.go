package ruleengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/herald/internal/observability"
	"github.com/rafaeljc/herald/internal/stats"
	"github.com/rafaeljc/herald/internal/validation"
)

// ErrRecipientRequired is returned when Evaluate or UpdateStats get an empty recipient id.
var ErrRecipientRequired = errors.New("recipient id is required")

// RuleSource provides the active rules of a recipient, sorted by descending
// priority. Ties keep the source's order; the engine never re-sorts.
type RuleSource interface {
	ListActiveRulesForRecipient(ctx context.Context, recipientID string) ([]Rule, error)
}

// Engine is the orchestrator for notification rule evaluation.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	source     RuleSource
	tracker    stats.Tracker
	strategies map[RuleType]Evaluator
	logger     *slog.Logger // Dedicated logger instance (DI)
	now        func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for temporal and frequency checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(source RuleSource, tracker stats.Tracker, logger *slog.Logger, opts ...Option) *Engine {
	validation.AssertDependency(source, "rule source")
	validation.AssertDependency(tracker, "stats tracker")

	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		source:  source,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
		strategies: map[RuleType]Evaluator{
			RuleTypeTimeBased:      &TimeEvaluator{},
			RuleTypeFrequencyBased: &FrequencyEvaluator{},
			RuleTypeContentBased:   &ContentEvaluator{},
			RuleTypeComposite:      &CompositeEvaluator{},
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Decision is an evaluation Result together with the matched rules it summarizes.
type Decision struct {
	Result
	// Matched holds compiled copies of the rules in Result.AppliedRules, in the same order.
	Matched []Rule
}

// Evaluate runs the recipient's active rules in priority order.
//
// Every matching rule is reported in AppliedRules. The first matching rule
// with a BLOCK action stops the walk and blocks the notification. A rule that
// cannot be evaluated is logged and treated as not matching (fail-open per
// rule). Evaluate never changes stats; an error is returned only when the
// rules cannot be loaded.
func (e *Engine) Evaluate(ctx context.Context, recipientID, content string, variables map[string]any) (Result, error) {
	d, err := e.Decide(ctx, recipientID, content, variables)
	if err != nil {
		return Result{}, err
	}
	return d.Result, nil
}

// Decide is Evaluate returning the matched rules as well, for callers that act on them.
func (e *Engine) Decide(ctx context.Context, recipientID, content string, variables map[string]any) (Decision, error) {
	if recipientID == "" {
		return Decision{}, ErrRecipientRequired
	}

	start := time.Now()
	defer func() {
		observability.EngineEvalDuration.Observe(time.Since(start).Seconds())
	}()

	rules, err := e.source.ListActiveRulesForRecipient(ctx, recipientID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load rules for recipient %q: %w", recipientID, err)
	}

	d := Decision{Result: Result{AppliedRules: []RuleSummary{}}}
	input := EvaluationInput{
		RecipientID: recipientID,
		Content:     content,
		Variables:   variables,
		Now:         e.now(),
		Stats:       e.tracker,
	}

	for i := range rules {
		// Work on a copy: rule slices may be shared through the cache.
		rule := rules[i]

		if !e.matches(ctx, &rule, input) {
			continue
		}

		d.AppliedRules = append(d.AppliedRules, rule.Summary())
		d.Matched = append(d.Matched, rule)

		if rule.IsBlocking() {
			d.Blocked = true
			d.BlockReason = fmt.Sprintf("Rule '%s' blocked the notification", rule.Name)
			break
		}
	}

	decision := "allowed"
	if d.Blocked {
		decision = "blocked"
	}
	observability.EngineDecisions.WithLabelValues(decision).Inc()

	return d, nil
}

// matches evaluates one rule, turning every failure into a logged non-match.
func (e *Engine) matches(ctx context.Context, rule *Rule, input EvaluationInput) bool {
	strategy, exists := e.strategies[rule.Type]
	if !exists {
		e.skip(rule, input, observability.SkipReasonUnknownType, nil)
		return false
	}

	if rule.Condition == nil && rule.CompileErr == nil {
		_ = CompileRule(rule)
	}
	if rule.CompileErr != nil {
		e.skip(rule, input, observability.SkipReasonCompileError, rule.CompileErr)
		return false
	}

	match, err := strategy.Eval(ctx, rule.Condition, input)
	if err != nil {
		e.skip(rule, input, observability.SkipReasonEvalError, err)
		return false
	}

	return match
}

func (e *Engine) skip(rule *Rule, input EvaluationInput, reason string, err error) {
	observability.EngineRulesSkipped.WithLabelValues(reason).Inc()

	attrs := []any{
		slog.String("rule_id", rule.ID),
		slog.String("rule_type", string(rule.Type)),
		slog.String("recipient_id", input.RecipientID),
		slog.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	if reason == observability.SkipReasonUnknownType {
		e.logger.Warn("skipping unknown rule type", attrs...)
		return
	}
	e.logger.Error("rule evaluation failed", attrs...)
}

// UpdateStats records that a notification was actually sent to the recipient.
// Callers invoke it only after deciding to proceed.
func (e *Engine) UpdateStats(ctx context.Context, recipientID string) error {
	if recipientID == "" {
		return ErrRecipientRequired
	}
	if err := e.tracker.Update(ctx, recipientID); err != nil {
		return fmt.Errorf("failed to update stats for recipient %q: %w", recipientID, err)
	}
	return nil
}

// RecipientStats returns the recipient's current delivery stats.
func (e *Engine) RecipientStats(ctx context.Context, recipientID string) (stats.Stats, error) {
	if recipientID == "" {
		return stats.Stats{}, ErrRecipientRequired
	}
	return e.tracker.GetOrCreate(ctx, recipientID)
}
