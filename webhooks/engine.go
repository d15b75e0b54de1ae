package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-paykit/adapters/gologger"
	"github.com/goliatone/go-paykit/core"
	"golang.org/x/sync/errgroup"
)

// Payload is a raw inbound webhook request as received by the host.
type Payload struct {
	Body    []byte
	Headers map[string][]string
	FullURL string
}

// Header returns the first value of a header, matched case-insensitively.
func (p Payload) Header(key string) string {
	key = strings.TrimSpace(key)
	for existing, values := range p.Headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// Translator verifies a provider payload and turns it into canonical events.
type Translator interface {
	Translate(ctx context.Context, payload Payload, secret string) ([]core.Event, error)
}

type TranslatorFunc func(ctx context.Context, payload Payload, secret string) ([]core.Event, error)

func (f TranslatorFunc) Translate(ctx context.Context, payload Payload, secret string) ([]core.Event, error) {
	return f(ctx, payload, secret)
}

type Handler func(ctx context.Context, event core.Event) error

type DispatchMode string

const (
	// DispatchConcurrent starts every handler of every event at once.
	DispatchConcurrent DispatchMode = core.DispatchModeConcurrent
	// DispatchSequential runs handlers one at a time in registration order.
	DispatchSequential DispatchMode = core.DispatchModeSequential
)

type FailurePolicy string

const (
	FailFast   FailurePolicy = core.FailurePolicyFailFast
	CollectAll FailurePolicy = core.FailurePolicyCollectAll
)

type EngineConfig struct {
	Provider      string
	Mode          DispatchMode
	FailurePolicy FailurePolicy
	// Deduper skips events whose IDs were already handled.
	Deduper   Deduper
	DedupeTTL time.Duration

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
}

// EngineConfigFromCore maps the shared webhook section. Dedupe is enabled
// in memory whenever a TTL is configured.
func EngineConfigFromCore(cfg core.Config) EngineConfig {
	out := EngineConfig{
		Provider:      cfg.Provider,
		Mode:          DispatchMode(cfg.Webhook.DispatchMode),
		FailurePolicy: FailurePolicy(cfg.Webhook.FailurePolicy),
		DedupeTTL:     cfg.Webhook.DedupeTTL,
	}
	if cfg.Webhook.DedupeTTL > 0 {
		out.Deduper = NewInMemoryDeduper()
	}
	return out
}

// Engine routes canonical events from a provider translator to registered
// handlers. It must be configured with Setup before handlers are registered.
type Engine struct {
	provider  string
	mode      DispatchMode
	policy    FailurePolicy
	deduper   Deduper
	dedupeTTL time.Duration
	observer  core.Observer

	mu         sync.RWMutex
	configured bool
	secret     string
	translator Translator
	handlers   map[core.EventType][]Handler
}

func NewEngine(cfg EngineConfig) *Engine {
	mode := cfg.Mode
	if mode != DispatchSequential {
		mode = DispatchConcurrent
	}
	policy := cfg.FailurePolicy
	if policy != CollectAll {
		policy = FailFast
	}
	logger := gologger.Component("paykit.webhooks", cfg.Provider, cfg.LoggerProvider, cfg.Logger)
	return &Engine{
		provider:  strings.TrimSpace(cfg.Provider),
		mode:      mode,
		policy:    policy,
		deduper:   cfg.Deduper,
		dedupeTTL: cfg.DedupeTTL,
		observer:  core.NewObserver(logger, cfg.Metrics, "paykit.webhooks"),
		handlers:  map[core.EventType][]Handler{},
	}
}

// Setup configures the signing secret and translator. It may only run once.
func (e *Engine) Setup(secret string, translator Translator) error {
	if e == nil {
		return core.NewConfiguration("webhooks: engine is nil", core.WithMethod("setup"))
	}
	if strings.TrimSpace(secret) == "" {
		return configurationError(e.provider, "setup", "webhooks: secret is required")
	}
	if translator == nil {
		return configurationError(e.provider, "setup", "webhooks: translator is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.configured {
		return configurationError(e.provider, "setup", "webhooks: engine is already configured")
	}
	e.secret = secret
	e.translator = translator
	e.configured = true
	return nil
}

// On registers a handler for an event type. Handlers run in registration order
// under sequential dispatch.
func (e *Engine) On(eventType core.EventType, handler Handler) error {
	if e == nil {
		return core.NewConfiguration("webhooks: engine is nil", core.WithMethod("on"))
	}
	if !eventType.Valid() {
		return configurationError(e.provider, "on", fmt.Sprintf("webhooks: unknown event type %q", eventType))
	}
	if handler == nil {
		return configurationError(e.provider, "on", "webhooks: handler is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return configurationError(e.provider, "on", "webhooks: engine must be set up before registering handlers")
	}
	e.handlers[eventType] = append(e.handlers[eventType], handler)
	return nil
}

// Configured reports whether Setup has completed.
func (e *Engine) Configured() bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.configured
}

type dispatchJob struct {
	event   core.Event
	index   int
	handler Handler
}

// Handle translates one inbound payload and dispatches its events. Every event
// is validated before any handler runs.
func (e *Engine) Handle(ctx context.Context, payload Payload) (err error) {
	if e == nil {
		return core.NewConfiguration("webhooks: engine is nil", core.WithMethod("handle"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	fields := map[string]any{"provider": e.provider, "method": "handle"}
	defer func() {
		e.observer.Observe(ctx, startedAt, "handle", err, fields)
	}()

	e.mu.RLock()
	configured, secret, translator := e.configured, e.secret, e.translator
	e.mu.RUnlock()
	if !configured {
		return configurationError(e.provider, "handle", "webhooks: engine is not set up")
	}

	events, err := e.translate(ctx, translator, payload, secret)
	if err != nil {
		return err
	}
	fields["events"] = len(events)
	for i, event := range events {
		if validateErr := event.Validate(); validateErr != nil {
			return webhookError(e.provider, fmt.Sprintf("webhooks: event %d is invalid", i), validateErr, map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			})
		}
	}

	events, claims, err := e.claim(ctx, events)
	if err != nil {
		return err
	}
	fields["dispatched"] = len(events)

	jobs := e.jobs(events)
	failed := make([]bool, len(events))
	switch e.mode {
	case DispatchSequential:
		err = e.runSequential(ctx, jobs, failed)
	default:
		err = e.runConcurrent(ctx, jobs, failed)
	}
	e.settle(ctx, events, claims, failed, err)
	return err
}

func (e *Engine) translate(ctx context.Context, translator Translator, payload Payload, secret string) (events []core.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			events = nil
			err = webhookError(e.provider, fmt.Sprintf("webhooks: translator panicked: %v", recovered), nil, nil)
		}
	}()
	events, err = translator.Translate(ctx, payload, secret)
	if err == nil {
		return events, nil
	}
	if core.IsKind(err, core.KindWebhook) {
		return nil, err
	}
	return nil, webhookError(e.provider, "webhooks: translate payload: "+err.Error(), err, nil)
}

// claim filters out events a deduper reports as already handled.
func (e *Engine) claim(ctx context.Context, events []core.Event) ([]core.Event, []string, error) {
	if e.deduper == nil {
		return events, make([]string, len(events)), nil
	}
	kept := make([]core.Event, 0, len(events))
	claims := make([]string, 0, len(events))
	for _, event := range events {
		claimID, ok, err := e.deduper.Claim(ctx, event.ID, e.dedupeTTL)
		if err != nil {
			for i, held := range claims {
				_ = e.deduper.Fail(ctx, held, err, time.Time{})
				claims[i] = ""
			}
			return nil, nil, core.NewError(
				core.KindOperationFailed,
				"webhooks: claim event for dedupe",
				core.WithProvider(e.provider),
				core.WithMethod("handle"),
				core.WithCause(err),
				core.WithContext(map[string]any{"event_id": event.ID}),
			)
		}
		if !ok {
			e.observer.Debug(ctx, "webhooks: skipping duplicate event", map[string]any{
				"provider":   e.provider,
				"event_id":   event.ID,
				"event_type": string(event.Type),
			})
			e.observer.Count(ctx, "event.duplicate", map[string]string{"provider": e.provider, "event_type": string(event.Type)})
			continue
		}
		kept = append(kept, event)
		claims = append(claims, claimID)
	}
	return kept, claims, nil
}

func (e *Engine) jobs(events []core.Event) []dispatchJob {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var jobs []dispatchJob
	for i, event := range events {
		handlers := e.handlers[event.Type]
		if len(handlers) == 0 {
			e.observer.Count(context.Background(), "event.unhandled", map[string]string{
				"provider":   e.provider,
				"event_type": string(event.Type),
			})
			continue
		}
		for _, handler := range handlers {
			jobs = append(jobs, dispatchJob{event: event, index: i, handler: handler})
		}
	}
	return jobs
}

func (e *Engine) runSequential(ctx context.Context, jobs []dispatchJob, failed []bool) error {
	var errs []error
	for i, job := range jobs {
		if err := e.invoke(ctx, job); err != nil {
			failed[job.index] = true
			if e.policy == FailFast {
				for _, skipped := range jobs[i+1:] {
					failed[skipped.index] = true
				}
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) runConcurrent(ctx context.Context, jobs []dispatchJob, failed []bool) error {
	results := make([]error, len(jobs))
	if e.policy == FailFast {
		group, groupCtx := errgroup.WithContext(ctx)
		for i, job := range jobs {
			group.Go(func() error {
				results[i] = e.invoke(groupCtx, job)
				return results[i]
			})
		}
		err := group.Wait()
		markFailed(jobs, results, failed)
		return err
	}

	var group errgroup.Group
	for i, job := range jobs {
		group.Go(func() error {
			results[i] = e.invoke(ctx, job)
			return nil
		})
	}
	_ = group.Wait()
	markFailed(jobs, results, failed)
	return errors.Join(results...)
}

func markFailed(jobs []dispatchJob, results []error, failed []bool) {
	for i, err := range results {
		if err != nil {
			failed[jobs[i].index] = true
		}
	}
}

func (e *Engine) invoke(ctx context.Context, job dispatchJob) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = panicError(e.provider, job.event, recovered)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		e.observer.Count(ctx, "handler.total", map[string]string{
			"provider":   e.provider,
			"event_type": string(job.event.Type),
			"outcome":    outcome,
		})
	}()
	return handlerError(e.provider, job.event, job.handler(ctx, job.event))
}

// settle records dedupe outcomes: failed events are released for redelivery.
func (e *Engine) settle(ctx context.Context, events []core.Event, claims []string, failed []bool, cause error) {
	if e.deduper == nil {
		return
	}
	for i := range events {
		if claims[i] == "" {
			continue
		}
		var err error
		if failed[i] {
			err = e.deduper.Fail(ctx, claims[i], cause, time.Time{})
		} else {
			err = e.deduper.Complete(ctx, claims[i])
		}
		if err != nil {
			e.observer.Warn(ctx, "webhooks: settle dedupe claim failed", map[string]any{
				"provider": e.provider,
				"event_id": events[i].ID,
				"error":    err.Error(),
			})
		}
	}
}
