package kafka

import (
	"context"

	"go.uber.org/zap"

	domkafka "github.com/NordCoder/Taskly/internal/domain/kafka"
	"github.com/NordCoder/Taskly/internal/domain/outbox"
)

var (
	_ domkafka.AuthEvents = (*AuthEventsKafka)(nil)
	_ domkafka.AuthEvents = (*AuthEventsLog)(nil)
)

// AuthEventsKafka publishes audit events keyed by user id, so events of one
// account stay ordered within a partition.
type AuthEventsKafka struct {
	p *Producer
}

func NewAuthEventsKafka(p *Producer) *AuthEventsKafka { return &AuthEventsKafka{p: p} }

func (a *AuthEventsKafka) PublishAuthEvent(ctx context.Context, e outbox.AuthEventPayload) error {
	return a.p.PublishJSON(ctx, []byte(e.UserID), e)
}

// AuthEventsLog records audit events in the service log when kafka is disabled.
type AuthEventsLog struct {
	log *zap.Logger
}

func NewAuthEventsLog(l *zap.Logger) *AuthEventsLog {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuthEventsLog{log: l.With(zap.String("component", "auth.events"))}
}

func (a *AuthEventsLog) PublishAuthEvent(_ context.Context, e outbox.AuthEventPayload) error {
	a.log.Info("auth event",
		zap.String("type", string(e.Type)),
		zap.String("user_id", e.UserID),
		zap.Time("at", e.At),
		zap.String("detail", e.Detail),
	)
	return nil
}
