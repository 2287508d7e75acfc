// Package retry runs an operation again after transient failures.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrPermanent marks failures that no retry can fix, such as undecodable payloads.
var ErrPermanent = errors.New("permanent failure")

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt, caps at Max and spreads the result
// by +/- Jitter.
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(2, float64(max(attempt, 0)))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

const (
	outcomeOK        = "ok"
	outcomeExhausted = "exhausted"
	outcomeGaveUp    = "gave_up"
	outcomeCanceled  = "canceled"
)

var (
	mCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_calls_total",
		Help: "Calls of the retried operation.",
	}, []string{"name"})
	mOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_outcomes_total",
		Help: "Final outcome of retry.Do by policy name.",
	}, []string{"name", "outcome"})
	mDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Wall time of retry.Do including backoff sleeps.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second}
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return !errors.Is(err, ErrPermanent) }
	}
	return p
}

// Do calls fn until it succeeds, the policy gives up or ctx is done.
// OnExhaust runs whenever Do returns fn's error.
func Do(ctx context.Context, fn func() error, p Policy) (err error) {
	p = p.withDefaults()
	outcome := outcomeOK
	start := time.Now()
	defer func() {
		mDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
		mOutcomes.WithLabelValues(p.Name, outcome).Inc()
	}()

	span := trace.SpanFromContext(ctx)
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			outcome = outcomeCanceled
			return cerr
		}
		mCalls.WithLabelValues(p.Name).Inc()
		if err = fn(); err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", p.Name),
			attribute.Int("retry.attempt", attempt+1),
			attribute.String("error", err.Error()),
		))

		switch {
		case !p.Retryable(err):
			outcome = outcomeGaveUp
		case attempt+1 >= p.Attempts:
			outcome = outcomeExhausted
		}
		if outcome != outcomeOK {
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}

		t := time.NewTimer(p.Backoff.Next(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			outcome = outcomeCanceled
			return ctx.Err()
		case <-t.C:
		}
	}
}
