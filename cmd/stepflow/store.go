package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepflow/internal/config"
	"github.com/petrijr/stepflow/pkg/monitor"
)

// openStore opens the monitor store selected by cfg. The returned function
// releases it.
func openStore(ctx context.Context, cfg config.Config) (monitor.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := monitor.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return monitor.NewRedisStore(client, "", cfg.RedisTTL), client.Close, nil

	default:
		return monitor.NewMemoryStore(), func() error { return nil }, nil
	}
}
