package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/NordCoder/Taskly/internal/domain/kafka"
	"github.com/NordCoder/Taskly/internal/domain/notification"
	"github.com/NordCoder/Taskly/internal/domain/outbox"
	"github.com/NordCoder/Taskly/internal/obs/retry"
)

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers (mail, kafka).",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind outbox.Kind, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind.String()
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle "+kind.String())
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind.String()).Inc()
		}
		return err
	}
}

type Deps struct {
	Mailer  notification.EmailSender
	Events  kafka.AuthEvents
	AppName string
}

func MakeGlobalHandler(d Deps, pol retry.Policy) outbox.GlobalHandler {
	handlers := map[outbox.Kind]outbox.KindHandler{
		outbox.KindVerificationEmail:  instrument(outbox.KindVerificationEmail, emailHandler(d, verificationEmail), pol),
		outbox.KindPasswordResetEmail: instrument(outbox.KindPasswordResetEmail, emailHandler(d, passwordResetEmail), pol),
		outbox.KindAuthEvent:          instrument(outbox.KindAuthEvent, authEventHandler(d.Events), pol),
	}
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		h, ok := handlers[kind]
		if !ok {
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
		return h, nil
	}
}

type composeFunc func(appName string, p outbox.EmailPayload) (subject, body string)

func emailHandler(d Deps, compose composeFunc) outbox.KindHandler {
	return func(ctx context.Context, data []byte) error {
		var p outbox.EmailPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal email payload: %w: %w", retry.ErrPermanent, err)
		}
		subject, body := compose(d.AppName, p)
		return d.Mailer.Send(ctx, p.To, subject, body)
	}
}

func authEventHandler(events kafka.AuthEvents) outbox.KindHandler {
	return func(ctx context.Context, data []byte) error {
		var e outbox.AuthEventPayload
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("unmarshal auth event: %w: %w", retry.ErrPermanent, err)
		}
		return events.PublishAuthEvent(ctx, e)
	}
}

func greeting(p outbox.EmailPayload) string {
	if p.Name == "" {
		return "Hello,"
	}
	return "Hello " + p.Name + ","
}

func verificationEmail(app string, p outbox.EmailPayload) (string, string) {
	return "Verify your email",
		greeting(p) + "\n\n" +
			"Please confirm your email address for " + app + " by opening the link below:\n\n" +
			p.URL + "\n\n" +
			"The link expires in 24 hours. If you did not create an account, ignore this message."
}

func passwordResetEmail(app string, p outbox.EmailPayload) (string, string) {
	return "Reset your password",
		greeting(p) + "\n\n" +
			"A password reset was requested for your " + app + " account. Open the link below to choose a new password:\n\n" +
			p.URL + "\n\n" +
			"The link expires in 1 hour. If you did not request a reset, ignore this message."
}
