package redis

import (
	"context"
	"fmt"

	"github.com/bazaar-io-st/openbazaar-desktop/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// clientName tags this service's connections in CLIENT LIST.
const clientName = "openbazaar-orders"

// NewClient connects to the Redis instance that holds the funding cache,
// feed nonces and rate limit counters.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(clientOptions(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Int("pool_size", cfg.PoolSize).
		Msg("redis connected")

	return client, nil
}

func clientOptions(cfg config.RedisConfig) *goredis.Options {
	opts := &goredis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts
}
