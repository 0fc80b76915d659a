package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/config"
)

// Redis wraps the go-redis client and the key namespace it writes under.
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewRedis connects to Redis using the provided configuration. An
// unreachable server is logged, not fatal; readiness reports it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client, prefix: strings.TrimSuffix(cfg.KeyPrefix, ":")}
}

// Key joins parts under the configured prefix.
func (r *Redis) Key(parts ...string) string {
	if r.prefix == "" {
		return strings.Join(parts, ":")
	}
	return r.prefix + ":" + strings.Join(parts, ":")
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
