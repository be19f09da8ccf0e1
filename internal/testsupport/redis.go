package testsupport

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer holds references to the ephemeral Redis instance.
//
// The client is plain go-redis. This package must not import cache: cache
// depends on ruleengine and stats, whose in-package tests use these helpers.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *goredis.Client
	// Addr is the host:port the container listens on.
	Addr string
}

// Terminate cleans up the container and closes the client.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a Redis 7-alpine container.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	// 1. Start Container
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	// 2. Get Connection String (e.g., "localhost:54321")
	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		_ = redisContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// 3. Connect and wait until the server answers
	client := goredis.NewClient(&goredis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		_ = redisContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Client:    client,
		Addr:      endpoint,
	}, nil
}
