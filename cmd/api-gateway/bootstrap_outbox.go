package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/domain/kafka"
	"github.com/NordCoder/Taskly/internal/domain/notification"
	domainoutbox "github.com/NordCoder/Taskly/internal/domain/outbox"
	"github.com/NordCoder/Taskly/internal/notifier"
	"github.com/NordCoder/Taskly/internal/obs/retry"
	"github.com/NordCoder/Taskly/internal/outbox"
	kafkarepo "github.com/NordCoder/Taskly/internal/repository/kafka"
)

func initOutbox(ctx context.Context, cfg *config.Config, logger *zap.Logger, repo domainoutbox.Repository) (*outbox.Runner, func(), error) {
	var mailer notification.EmailSender
	if cfg.SMTP.Addr == "" {
		logger.Warn("smtp.addr is empty, emails are written to the log")
		mailer = notifier.NewLogMailer(logger)
	} else {
		mailer = notifier.NewMailer(cfg.SMTP).WithLogger(logger)
	}

	var (
		events  kafka.AuthEvents
		closeFn = func() {}
	)
	if cfg.Kafka.Enable {
		if cfg.Kafka.EnsureTopic {
			ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := kafkarepo.EnsureTopic(ensureCtx, cfg.Kafka.Brokers, kafkarepo.TopicSpec{
				Name:              cfg.Kafka.AuthEventsTopic,
				NumPartitions:     cfg.Kafka.Partitions,
				ReplicationFactor: cfg.Kafka.ReplicationFactor,
				MaxWait:           10 * time.Second,
			}, logger)
			cancel()
			if err != nil {
				return nil, nil, err
			}
		}
		producer := kafkarepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuthEventsTopic).WithLogger(logger)
		events = kafkarepo.NewAuthEventsKafka(producer)
		closeFn = func() { _ = producer.Close() }
	} else {
		events = kafkarepo.NewAuthEventsLog(logger)
	}

	dispatch := outbox.MakeGlobalHandler(outbox.Deps{
		Mailer:  mailer,
		Events:  events,
		AppName: "Taskly",
	}, retry.DefaultOutboxPolicy(logger))

	runner := outbox.NewRunner(logger, repo, dispatch, outbox.RunnerConfig{
		Workers:       cfg.Outbox.Workers,
		BatchSize:     cfg.Outbox.BatchSize,
		WaitTime:      cfg.Outbox.WaitTime,
		InProgressTTL: cfg.Outbox.InProgressTTL,
		Retention:     cfg.Outbox.Retention,
		PurgeEvery:    cfg.Outbox.PurgeEvery,
	})
	return runner, closeFn, nil
}
