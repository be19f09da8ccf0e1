package config

import "time"

const (
	// StatsBackendMemory keeps per-recipient counters in a bounded in-process cache.
	StatsBackendMemory = "memory"
	// StatsBackendRedis keeps per-recipient counters in Redis, shared across replicas.
	StatsBackendRedis = "redis"
)

// StatsConfig configures the per-recipient delivery-frequency tracker.
//
// Capacity and TTL form the eviction policy: the memory backend holds at most
// Capacity recipients and drops entries idle for longer than TTL; the Redis
// backend applies TTL as the key expiry. TTL should exceed one day or daily
// limits reset early for quiet recipients.
type StatsConfig struct {
	Backend   string        `envconfig:"BACKEND" default:"memory" validate:"oneof=memory redis"`
	Capacity  int           `envconfig:"CAPACITY" default:"100000" validate:"min=1"`
	TTL       time.Duration `envconfig:"TTL" default:"48h" validate:"min=1m"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" default:"herald:stats"`

	// Timezone decides where the calendar day boundary falls. Empty means the process local zone.
	Timezone string `envconfig:"TIMEZONE"`
}

// RulesCacheConfig configures the L1 cache of compiled rules placed in front of Postgres.
type RulesCacheConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Capacity int           `envconfig:"CAPACITY" default:"10000" validate:"min=1"`
	TTL      time.Duration `envconfig:"TTL" default:"30s" validate:"min=1s"`
}
