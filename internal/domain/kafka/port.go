package kafka

import (
	"context"

	"github.com/NordCoder/Taskly/internal/domain/outbox"
)

type AuthEvents interface {
	PublishAuthEvent(ctx context.Context, e outbox.AuthEventPayload) error
}
