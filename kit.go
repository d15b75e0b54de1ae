package paykit

import (
	"context"
	"strings"

	"github.com/goliatone/go-paykit/adapters/gologger"
	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/ratelimit"
	"github.com/goliatone/go-paykit/transport"
	"github.com/goliatone/go-paykit/webhooks"
)

// Kit bundles the components one provider adapter needs.
type Kit struct {
	config      Config
	logger      Logger
	base        *transport.Client
	api         *transport.Client
	credentials *auth.CredentialManager
	webhooks    *webhooks.Engine
}

// Setup resolves configuration as defaults < provider layer < cfg and builds
// the components. Credentials are managed only when a token path is set, and
// the webhook engine is set up when both a secret and a translator exist.
func Setup(cfg Config, opts ...Option) (*Kit, error) {
	builder := kitBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	loggerProvider, logger := gologger.Resolve("paykit", builder.loggerProvider, builder.logger)
	if builder.metrics == nil {
		builder.metrics = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}
	ctx := builder.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, err
	}
	final, err := builder.optionsResolver.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, err
	}

	transportConfig := transport.ConfigFromCore(final)
	transportConfig.HTTPClient = builder.httpClient
	transportConfig.Adapter = builder.adapter
	transportConfig.LoggerProvider = loggerProvider
	transportConfig.Logger = logger
	transportConfig.Metrics = builder.metrics
	transportConfig.Tracer = builder.tracer
	transportConfig.Throttle = builder.throttle
	if transportConfig.Throttle == nil && final.RateLimit.Adaptive {
		transportConfig.Throttle = ratelimit.NewAdaptivePolicy(nil)
	}
	base, err := transport.New(transportConfig)
	if err != nil {
		return nil, err
	}

	kit := &Kit{
		config: final,
		logger: logger,
		base:   base,
		api:    base,
	}

	if strings.TrimSpace(final.Credentials.TokenPath) != "" {
		credentialConfig := auth.CredentialConfigFromCore(final)
		credentialConfig.ResponseAdapter = builder.responseAdapter
		credentialConfig.LoggerProvider = loggerProvider
		credentialConfig.Logger = logger
		credentialConfig.Metrics = builder.metrics
		manager, err := auth.NewCredentialManager(credentialConfig, base)
		if err != nil {
			return nil, err
		}
		kit.credentials = manager
		kit.api = base.With(transport.WithHeaderSource(manager.HeaderSource()))
	}

	engineConfig := webhooks.EngineConfigFromCore(final)
	if builder.deduper != nil {
		engineConfig.Deduper = builder.deduper
	}
	engineConfig.LoggerProvider = loggerProvider
	engineConfig.Logger = logger
	engineConfig.Metrics = builder.metrics
	kit.webhooks = webhooks.NewEngine(engineConfig)
	if final.Webhook.Secret != "" && builder.translator != nil {
		if err := kit.webhooks.Setup(final.Webhook.Secret, builder.translator); err != nil {
			return nil, err
		}
	}
	return kit, nil
}

func (k *Kit) Config() Config {
	if k == nil {
		return Config{}
	}
	return k.config
}

// Transport returns the provider API client. With credentials configured every
// call carries the current bearer token.
func (k *Kit) Transport() *transport.Client {
	if k == nil {
		return nil
	}
	return k.api
}

// TokenTransport returns the client without credential headers.
func (k *Kit) TokenTransport() *transport.Client {
	if k == nil {
		return nil
	}
	return k.base
}

// Credentials is nil when no token path is configured.
func (k *Kit) Credentials() *auth.CredentialManager {
	if k == nil {
		return nil
	}
	return k.credentials
}

func (k *Kit) Webhooks() *webhooks.Engine {
	if k == nil {
		return nil
	}
	return k.webhooks
}
