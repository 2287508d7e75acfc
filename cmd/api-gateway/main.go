package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/obs"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/api-gateway.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api-gateway", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))
	if cfg.Auth.UsingDevSecret {
		logger.Warn("auth.secret is not set, signing tokens with the built-in development secret")
	}

	otelShutdown, err := initOTel(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer st.close()

	limiter, closeLimiter, err := initLimiter(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("rate limiter init", zap.Error(err))
	}
	defer closeLimiter()

	runner, closeOutbox, err := initOutbox(rootCtx, cfg, logger, st.outbox)
	if err != nil {
		logger.Fatal("outbox init", zap.Error(err))
	}
	defer closeOutbox()

	runCtx, cancelRun := context.WithCancel(rootCtx)
	runner.Start(runCtx)

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.health, logger)

	httpSrv, err := buildHTTPServer(cfg, logger, st, limiter)
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	_ = metricsSrv.Shutdown(shCtx)

	cancelRun()
	runner.Wait()

	logger.Info("bye")
}
