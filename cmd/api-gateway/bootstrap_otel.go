package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/obs"
)

func initOTel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enable {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.OTEL.OTLPEndpoint))
	}
	return closer.Shutdown, nil
}
