package paykit

import (
	"context"

	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/transport"
	"github.com/goliatone/go-paykit/webhooks"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*kitBuilder)

type kitBuilder struct {
	ctx             context.Context
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metrics         core.MetricsRecorder
	tracer          trace.Tracer
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	httpClient      transport.HTTPDoer
	adapter         core.TransportAdapter
	translator      webhooks.Translator
	deduper         webhooks.Deduper
	responseAdapter ResponseAdapter
	throttle        core.RateLimitPolicy
}

func WithLogger(logger Logger) Option {
	return func(b *kitBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *kitBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *kitBuilder) {
		b.metrics = recorder
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(b *kitBuilder) {
		b.tracer = tracer
	}
}

// WithConfigProvider loads a configuration layer between defaults and the
// Config passed to Setup.
func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *kitBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *kitBuilder) {
		b.optionsResolver = resolver
	}
}

// WithContext bounds configuration loading.
func WithContext(ctx context.Context) Option {
	return func(b *kitBuilder) {
		b.ctx = ctx
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *kitBuilder) {
		b.httpClient = client
	}
}

// WithTransportAdapter replaces the single-attempt HTTP adapter.
func WithTransportAdapter(adapter core.TransportAdapter) Option {
	return func(b *kitBuilder) {
		b.adapter = adapter
	}
}

// WithTranslator sets up the webhook engine when a webhook secret is configured.
func WithTranslator(translator Translator) Option {
	return func(b *kitBuilder) {
		b.translator = translator
	}
}

func WithDeduper(deduper webhooks.Deduper) Option {
	return func(b *kitBuilder) {
		b.deduper = deduper
	}
}

func WithResponseAdapter(adapter ResponseAdapter) Option {
	return func(b *kitBuilder) {
		b.responseAdapter = adapter
	}
}

// WithRateLimitPolicy gates transport attempts. Without it an adaptive policy
// is used when rate_limit.adaptive is enabled.
func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(b *kitBuilder) {
		b.throttle = policy
	}
}
