// Package store provides the Data Access Layer for Herald's notification rules
// and templates. The PostgreSQL implementation uses the pgx driver; an
// in-memory implementation serves tests and local runs, and a caching
// decorator keeps hot recipients out of the database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/ruleengine"
)

// Compile-time checks that PostgresStore serves both the engine and the dispatcher.
var (
	_ ruleengine.RuleSource   = (*PostgresStore)(nil)
	_ dispatch.TemplateSource = (*PostgresStore)(nil)
)

// PostgresStore reads notification rules and templates from PostgreSQL.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// listActiveRulesQuery returns a recipient's active rules by priority.
// Ties are broken by id so the order is stable across calls.
const listActiveRulesQuery = `
	SELECT
		r.id::text,
		r.name,
		r.recipient_id,
		r.rule_type,
		r.notification_type,
		r.is_active,
		r.priority,
		COALESCE(
			(SELECT array_agg(d.day_of_week ORDER BY d.day_of_week)
			 FROM rule_days_of_week d WHERE d.rule_id = r.id),
			'{}'
		) AS days,
		to_char(r.start_time, 'HH24:MI:SS'),
		to_char(r.end_time, 'HH24:MI:SS'),
		r.timezone,
		r.max_notifications_per_day,
		r.min_interval_minutes,
		r.conditions::text,
		r.action_type,
		r.action_config::text,
		t.name
	FROM notification_rules r
	LEFT JOIN notification_templates t ON t.id = r.template_id
	WHERE r.recipient_id = $1 AND r.is_active
	ORDER BY r.priority DESC, r.id ASC
`

// ListActiveRulesForRecipient returns the recipient's active rules, compiled,
// by descending priority. Rules that fail to compile are returned with their
// CompileErr set so the engine skips them.
func (s *PostgresStore) ListActiveRulesForRecipient(ctx context.Context, recipientID string) ([]ruleengine.Rule, error) {
	rows, err := s.db.Query(ctx, listActiveRulesQuery, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	rules := make([]ruleengine.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if err := ruleengine.CompileRules(rules); err != nil {
		for i := range rules {
			if rules[i].CompileErr != nil {
				s.logger.Warn("stored rule is malformed",
					slog.String("rule_id", rules[i].ID),
					slog.String("recipient_id", recipientID),
					slog.String("error", rules[i].CompileErr.Error()),
				)
			}
		}
	}

	return rules, nil
}

func scanRule(rows pgx.Rows) (ruleengine.Rule, error) {
	var (
		r            ruleengine.Rule
		ruleType     string
		notification string
		days         []int16
		start, end   *string
		conditions   *string
		actionConfig *string
		templateName *string
	)

	if err := rows.Scan(
		&r.ID,
		&r.Name,
		&r.RecipientID,
		&ruleType,
		&notification,
		&r.Active,
		&r.Priority,
		&days,
		&start,
		&end,
		&r.Timezone,
		&r.MaxNotificationsPerDay,
		&r.MinIntervalMinutes,
		&conditions,
		&r.ActionType,
		&actionConfig,
		&templateName,
	); err != nil {
		return ruleengine.Rule{}, fmt.Errorf("failed to scan rule row: %w", err)
	}

	r.Type = ruleengine.RuleType(ruleType)
	r.NotificationType = ruleengine.NotificationType(notification)

	for _, d := range days {
		r.DaysOfWeek = append(r.DaysOfWeek, time.Weekday(d))
	}

	var err error
	if r.StartTime, err = parseOptionalTime(start); err != nil {
		return ruleengine.Rule{}, fmt.Errorf("rule %s start_time: %w", r.ID, err)
	}
	if r.EndTime, err = parseOptionalTime(end); err != nil {
		return ruleengine.Rule{}, fmt.Errorf("rule %s end_time: %w", r.ID, err)
	}

	if conditions != nil {
		r.Conditions = []byte(*conditions)
	}
	if actionConfig != nil {
		r.ActionConfig = []byte(*actionConfig)
	}
	if templateName != nil {
		r.TemplateName = *templateName
	}

	return r, nil
}

func parseOptionalTime(s *string) (*ruleengine.TimeOfDay, error) {
	if s == nil {
		return nil, nil
	}
	tod, err := ruleengine.ParseTimeOfDay(*s)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

// GetTemplate loads an active template by name.
func (s *PostgresStore) GetTemplate(ctx context.Context, name string) (*dispatch.Template, error) {
	query := `
		SELECT name, type, COALESCE(subject, ''), content
		FROM notification_templates
		WHERE name = $1 AND is_active
	`

	var (
		t       dispatch.Template
		tmplTyp string
	)
	err := s.db.QueryRow(ctx, query, name).Scan(&t.Name, &tmplTyp, &t.Subject, &t.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %q: %w", name, err)
	}

	t.Type = ruleengine.NotificationType(tmplTyp)
	return &t, nil
}
