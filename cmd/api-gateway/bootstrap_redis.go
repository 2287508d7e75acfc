package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/ratelimit"
)

func initLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return ratelimit.NewMemory(time.Minute), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis rate limiter", zap.String("addr", cfg.Redis.Addr))
	return ratelimit.NewRedis(client, cfg.RateLimit.Prefix), func() { _ = client.Close() }, nil
}
