package gojob

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-paykit/adapters/gologger"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/webhooks"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDWebhookHandle = "paykit.webhooks.handle"

	paramBody    = "body"
	paramHeaders = "headers"
	paramURL     = "full_url"
)

// RetryPolicy bounds how often a failed webhook delivery is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps a nack for the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// NewWebhookMessage packs an inbound payload into a job message. The body is
// base64 encoded so it survives JSON-backed queues byte for byte.
func NewWebhookMessage(payload webhooks.Payload, idempotencyKey string) *job.ExecutionMessage {
	headers := make(map[string]any, len(payload.Headers))
	for key, values := range payload.Headers {
		headers[key] = append([]string(nil), values...)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDWebhookHandle,
		ScriptPath: JobIDWebhookHandle,
		Parameters: map[string]any{
			paramBody:    base64.StdEncoding.EncodeToString(payload.Body),
			paramHeaders: headers,
			paramURL:     payload.FullURL,
		},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// PayloadFromMessage rebuilds the payload packed by NewWebhookMessage.
func PayloadFromMessage(msg *job.ExecutionMessage) (webhooks.Payload, error) {
	if msg == nil {
		return webhooks.Payload{}, core.NewWebhookError("gojob: execution message is required", core.WithMethod("dequeue"))
	}
	if strings.TrimSpace(msg.JobID) != JobIDWebhookHandle {
		return webhooks.Payload{}, core.NewWebhookError(
			fmt.Sprintf("gojob: unexpected job %q", msg.JobID),
			core.WithMethod("dequeue"),
		)
	}
	encoded, _ := msg.Parameters[paramBody].(string)
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return webhooks.Payload{}, core.NewWebhookError("gojob: decode webhook body", core.WithCause(err), core.WithMethod("dequeue"))
	}
	payload := webhooks.Payload{Body: body, Headers: map[string][]string{}}
	payload.FullURL, _ = msg.Parameters[paramURL].(string)

	switch headers := msg.Parameters[paramHeaders].(type) {
	case map[string][]string:
		for key, values := range headers {
			payload.Headers[key] = append([]string(nil), values...)
		}
	case map[string]any:
		for key, raw := range headers {
			payload.Headers[key] = headerValues(raw)
		}
	}
	return payload, nil
}

// headerValues accepts the shapes header lists take after a JSON round trip.
func headerValues(raw any) []string {
	switch values := raw.(type) {
	case []string:
		return append([]string(nil), values...)
	case []any:
		out := make([]string, 0, len(values))
		for _, value := range values {
			if text, ok := value.(string); ok {
				out = append(out, text)
			}
		}
		return out
	case string:
		return []string{values}
	}
	return nil
}

// WebhookEnqueuer defers webhook handling to a go-job queue.
type WebhookEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewWebhookEnqueuer(enqueuer queue.Enqueuer) *WebhookEnqueuer {
	return &WebhookEnqueuer{enqueuer: enqueuer}
}

func (e *WebhookEnqueuer) Enqueue(ctx context.Context, payload webhooks.Payload, idempotencyKey string) error {
	if e == nil || e.enqueuer == nil {
		return core.NewConfiguration("gojob: enqueuer is not configured", core.WithMethod("enqueue"))
	}
	if len(payload.Body) == 0 {
		return core.NewWebhookError("gojob: webhook body is required", core.WithMethod("enqueue"))
	}
	return e.enqueuer.Enqueue(ctx, NewWebhookMessage(payload, idempotencyKey))
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload webhooks.Payload) error
}

type WorkerConfig struct {
	Provider       string
	Policy         RetryPolicy
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
}

// WebhookWorker feeds queued deliveries to a webhook handler. Deliveries the
// handler rejects as malformed are dead lettered; other failures are requeued
// with backoff until the policy gives up.
type WebhookWorker struct {
	provider string
	handler  WebhookHandler
	policy   RetryPolicy
	observer core.Observer
}

func NewWebhookWorker(handler WebhookHandler, cfg WorkerConfig) *WebhookWorker {
	logger := gologger.Component("paykit.jobs", cfg.Provider, cfg.LoggerProvider, cfg.Logger)
	return &WebhookWorker{
		provider: strings.TrimSpace(cfg.Provider),
		handler:  handler,
		policy:   cfg.Policy,
		observer: core.NewObserver(logger, cfg.Metrics, "paykit.jobs"),
	}
}

// Process handles one delivery. attempt is the 1-based delivery count the
// queue reports for the message.
func (w *WebhookWorker) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if w == nil || w.handler == nil {
		return core.NewConfiguration("gojob: webhook handler is not configured", core.WithMethod("process"))
	}
	if delivery == nil {
		return core.NewConfiguration("gojob: delivery is required", core.WithMethod("process"))
	}
	payload, err := PayloadFromMessage(delivery.Message())
	if err == nil {
		err = w.handler.Handle(ctx, payload)
	}
	if err == nil {
		return delivery.Ack(ctx)
	}

	nack := queue.NackOptions{Requeue: true, Delay: w.policy.delay(attempt), Reason: err.Error()}
	if permanent(err) {
		nack = queue.NackOptions{DeadLetter: true, Reason: err.Error()}
	}
	nack = w.policy.NormalizeAttempt(nack, attempt)
	w.observer.Warn(ctx, "gojob: webhook delivery failed", map[string]any{
		"provider":    w.provider,
		"attempt":     attempt,
		"requeue":     nack.Requeue,
		"dead_letter": nack.DeadLetter,
		"error":       err.Error(),
	})
	if nackErr := delivery.Nack(ctx, nack); nackErr != nil {
		return nackErr
	}
	return err
}

// ProcessNext dequeues and processes a single delivery.
func (w *WebhookWorker) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return core.NewConfiguration("gojob: dequeuer is required", core.WithMethod("process"))
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return w.Process(ctx, delivery, attempt)
}

func permanent(err error) bool {
	switch core.KindOf(err) {
	case core.KindWebhook, core.KindValidation, core.KindConfiguration:
		return true
	}
	return false
}

// ObserverHook reports go-job worker lifecycle events as paykit metrics and logs.
type ObserverHook struct {
	observer core.Observer
}

func NewObserverHook(logger core.Logger, metrics core.MetricsRecorder) *ObserverHook {
	return &ObserverHook{observer: core.NewObserver(logger, metrics, "paykit.jobs")}
}

func (h *ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	h.record(ctx, "start", event)
}

func (h *ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, "success", event)
}

func (h *ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, "failure", event)
	if event.Err != nil {
		h.observer.Warn(ctx, "gojob: worker job failed", map[string]any{
			"job_id":  jobID(event),
			"attempt": event.Attempt,
			"error":   event.Err.Error(),
		})
	}
}

func (h *ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, "retry", event)
}

func (h *ObserverHook) record(ctx context.Context, phase string, event worker.Event) {
	if h == nil {
		return
	}
	tags := map[string]string{"job_id": jobID(event), "phase": phase}
	h.observer.Count(ctx, "worker.event", tags)
	if event.Duration > 0 {
		h.observer.Histogram(ctx, "worker.duration_ms", float64(event.Duration.Milliseconds()), tags)
	}
}

func jobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return strings.TrimSpace(message.JobID)
}

var (
	_ worker.Hook    = (*ObserverHook)(nil)
	_ WebhookHandler = (*webhooks.Engine)(nil)
)
