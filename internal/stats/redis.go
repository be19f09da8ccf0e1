package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/herald/internal/observability"
)

// dayLayout is the stored form of LastResetDate. It sorts lexicographically.
const dayLayout = "2006-01-02"

// Hash fields of a recipient key.
const (
	fieldDay   = "day"
	fieldCount = "count"
	fieldLast  = "last"
)

// updateScript performs rollover and increment in one server-side step.
// KEYS[1] recipient key; ARGV[1] today; ARGV[2] now (unix ms); ARGV[3] ttl (ms).
var updateScript = redis.NewScript(`
local day = redis.call("HGET", KEYS[1], "day")
if (not day) or day < ARGV[1] then
  redis.call("HSET", KEYS[1], "day", ARGV[1], "count", 0)
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("HSET", KEYS[1], "last", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return count
`)

// RedisTracker keeps recipient stats in Redis hashes so every replica shares them.
// Each key expires TTL after its last update.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	opts   options
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker creates a tracker storing keys as "<prefix>:<recipient>".
func NewRedisTracker(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...Option) (*RedisTracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("stats ttl must be positive, got %s", ttl)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &RedisTracker{client: client, prefix: prefix, ttl: ttl, opts: o}, nil
}

func (t *RedisTracker) key(recipientID string) string {
	if t.prefix == "" {
		return recipientID
	}
	return t.prefix + ":" + recipientID
}

// GetOrCreate reads the recipient's stats as of today. Nothing is written;
// an unknown recipient reads as an empty record.
func (t *RedisTracker) GetOrCreate(ctx context.Context, recipientID string) (Stats, error) {
	if recipientID == "" {
		return Stats{}, ErrRecipientRequired
	}

	today := StartOfDay(t.opts.now(), t.opts.loc)

	vals, err := t.client.HMGet(ctx, t.key(recipientID), fieldDay, fieldCount, fieldLast).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats for recipient %q: %w", recipientID, err)
	}

	s, err := t.decode(vals, today)
	if err != nil {
		return Stats{}, fmt.Errorf("corrupt stats for recipient %q: %w", recipientID, err)
	}

	return s.asOf(today), nil
}

// Update records one send for the recipient.
func (t *RedisTracker) Update(ctx context.Context, recipientID string) error {
	if recipientID == "" {
		return ErrRecipientRequired
	}

	now := t.opts.now()
	today := StartOfDay(now, t.opts.loc)

	err := updateScript.Run(ctx, t.client,
		[]string{t.key(recipientID)},
		today.Format(dayLayout),
		now.UnixMilli(),
		t.ttl.Milliseconds(),
	).Err()
	if err != nil {
		observability.StatsUpdates.WithLabelValues("redis", "fail").Inc()
		return fmt.Errorf("failed to update stats for recipient %q: %w", recipientID, err)
	}

	observability.StatsUpdates.WithLabelValues("redis", "success").Inc()
	return nil
}

// decode converts an HMGET reply (day, count, last) into Stats.
func (t *RedisTracker) decode(vals []any, today time.Time) (Stats, error) {
	if len(vals) != 3 {
		return Stats{}, fmt.Errorf("unexpected reply length %d", len(vals))
	}

	day, ok := vals[0].(string)
	if !ok {
		// Missing key: the recipient has never been updated (or expired).
		return Stats{LastResetDate: today}, nil
	}

	var s Stats

	resetDate, err := time.ParseInLocation(dayLayout, day, t.opts.loc)
	if err != nil {
		return Stats{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	s.LastResetDate = resetDate

	if raw, ok := vals[1].(string); ok {
		if s.DailyCount, err = strconv.Atoi(raw); err != nil {
			return Stats{}, fmt.Errorf("invalid count %q: %w", raw, err)
		}
	}

	if raw, ok := vals[2].(string); ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("invalid last notification time %q: %w", raw, err)
		}
		last := time.UnixMilli(ms).In(t.opts.loc)
		s.LastNotificationTime = &last
	}

	return s, nil
}
