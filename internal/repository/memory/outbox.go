package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Taskly/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

type OutboxRepo struct {
	mu    sync.Mutex
	msgs  map[string]*outbox.Message
	order []string
	now   func() time.Time
}

func NewOutboxRepo() *OutboxRepo {
	return &OutboxRepo{msgs: make(map[string]*outbox.Message), now: time.Now}
}

func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.msgs[key]; ok {
		return nil
	}
	now := r.now()
	r.msgs[key] = &outbox.Message{
		IdempotencyKey: key,
		Kind:           kind,
		Data:           append([]byte(nil), data...),
		Status:         outbox.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.order = append(r.order, key)
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cand := make([]*outbox.Message, 0, len(r.msgs))
	for _, k := range r.order {
		m := r.msgs[k]
		stale := m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))
		if m.Status == outbox.StatusCreated || stale {
			cand = append(cand, m)
		}
	}
	if len(cand) > batch {
		cand = cand[:batch]
	}

	out := make([]outbox.Message, 0, len(cand))
	for _, m := range cand {
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, k := range keys {
		if m, ok := r.msgs[k]; ok {
			m.Status = outbox.StatusSuccess
			m.UpdatedAt = now
		}
	}
	return nil
}

func (r *OutboxRepo) PurgeDelivered(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	kept := r.order[:0]
	var n int64
	for _, k := range r.order {
		m := r.msgs[k]
		if m.Status == outbox.StatusSuccess && m.UpdatedAt.Before(cutoff) {
			delete(r.msgs, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	r.order = kept
	return n, nil
}

// Messages returns a snapshot of every stored message, oldest first.
func (r *OutboxRepo) Messages() []outbox.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]outbox.Message, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.msgs[k])
	}
	return out
}
