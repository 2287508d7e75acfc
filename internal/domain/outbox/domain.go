package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindVerificationEmail  Kind = 1
	KindPasswordResetEmail Kind = 2
	KindAuthEvent          Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindVerificationEmail:
		return "verification_email"
	case KindPasswordResetEmail:
		return "password_reset_email"
	case KindAuthEvent:
		return "auth_event"
	}
	return "unknown"
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

type Repository interface {
	// Enqueue joins the transaction carried by ctx, if any.
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error

	// PurgeDelivered deletes delivered messages last touched before
	// now-olderThan and reports how many went.
	PurgeDelivered(ctx context.Context, olderThan time.Duration) (int64, error)
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)

// EmailPayload is the body of verification and password reset messages.
type EmailPayload struct {
	UserID string `json:"user_id"`
	To     string `json:"to"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
}

type AuthEventType string

const (
	EventSignIn        AuthEventType = "sign_in"
	EventSignInFailed  AuthEventType = "sign_in_failed"
	EventAccountLocked AuthEventType = "account_locked"
	EventSignUp        AuthEventType = "sign_up"
	EventEmailVerified AuthEventType = "email_verified"
	EventPasswordReset AuthEventType = "password_reset"
)

// AuthEventPayload is the audit record published for security relevant events.
type AuthEventPayload struct {
	Type   AuthEventType `json:"type"`
	UserID string        `json:"user_id"`
	Email  string        `json:"email"`
	At     time.Time     `json:"at"`
	Detail string        `json:"detail,omitempty"`
}
