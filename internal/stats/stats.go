// Package stats tracks per-recipient delivery frequency: how many notifications
// a recipient received today and when the last one was sent.
//
// The daily counter is tied to a calendar day. It rolls over (resets to zero)
// the first time a recipient is updated on a new day, and reads issued on a new
// day already report the rolled-over view even before that update happens.
package stats

import (
	"context"
	"errors"
	"time"
)

// ErrRecipientRequired is returned when an operation is called with an empty recipient id.
var ErrRecipientRequired = errors.New("recipient id is required")

// Stats is a point-in-time snapshot of a recipient's delivery counters.
type Stats struct {
	// DailyCount is the number of sends recorded since LastResetDate.
	DailyCount int `json:"daily_count"`
	// LastNotificationTime is nil until the first send is recorded.
	LastNotificationTime *time.Time `json:"last_notification_time,omitempty"`
	// LastResetDate is the local midnight of the day DailyCount belongs to.
	LastResetDate time.Time `json:"last_reset_date"`
}

// Reader exposes read-only access to recipient stats.
// Condition evaluators depend on this interface only.
type Reader interface {
	GetOrCreate(ctx context.Context, recipientID string) (Stats, error)
}

// Tracker is the full stats contract: reads plus the single mutator.
type Tracker interface {
	Reader
	// Update records one send: it rolls the counter over if the stored day is
	// before today, then increments it and stamps the last notification time.
	Update(ctx context.Context, recipientID string) error
}

// Option customizes a tracker.
type Option func(*options)

type options struct {
	now func() time.Time
	loc *time.Location
}

func defaultOptions() options {
	return options{now: time.Now, loc: time.Local}
}

// WithClock overrides the time source. Used by tests to cross midnight.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone in which calendar days start.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// LoadLocation resolves a zone name for WithLocation. Empty means the process local zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// StartOfDay returns local midnight of the day t falls on, in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// asOf returns the view of s on the given day. A counter from an earlier day reads as zero.
func (s Stats) asOf(today time.Time) Stats {
	if s.LastResetDate.Before(today) {
		s.DailyCount = 0
		s.LastResetDate = today
	}
	return s
}

// record applies one send at now, rolling the counter over first when needed.
func (s *Stats) record(now, today time.Time) {
	*s = s.asOf(today)
	s.DailyCount++
	s.LastNotificationTime = &now
}
