package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticConfigLoader serves a fixed raw configuration map.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw map over defaults. Validation runs once layers are
// resolved, so partial sources are accepted here.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, NewConfiguration("core: load raw config", WithCause(err), WithMethod("config"))
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, NewConfiguration("core: decode config", WithCause(err), WithMethod("config"))
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime and validates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, NewConfiguration(fmt.Sprintf("core: options stack build failed: %v", err), WithCause(err))
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, NewConfiguration(fmt.Sprintf("core: options merge failed: %v", err), WithCause(err))
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		if KindOf(err) != "" {
			return Config{}, err
		}
		return Config{}, NewConfiguration("core: build resolved config", WithCause(err))
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Provider) != "" {
		layer["provider"] = strings.TrimSpace(cfg.Provider)
	}
	if includeZero || strings.TrimSpace(cfg.BaseURL) != "" {
		layer["base_url"] = strings.TrimSpace(cfg.BaseURL)
	}
	if includeZero || len(cfg.Headers) > 0 {
		headers := make(map[string]any, len(cfg.Headers))
		for key, value := range cfg.Headers {
			headers[key] = value
		}
		layer["headers"] = headers
	}
	if includeZero || cfg.Timeout > 0 {
		layer["timeout"] = cfg.Timeout
	}
	if includeZero || cfg.MaxResponseBodyBytes > 0 {
		layer["max_response_body_bytes"] = cfg.MaxResponseBodyBytes
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts > 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.BaseDelay > 0 {
		retry["base_delay"] = cfg.Retry.BaseDelay
	}
	if includeZero || cfg.Retry.MaxDelay > 0 {
		retry["max_delay"] = cfg.Retry.MaxDelay
	}
	if includeZero || len(cfg.Retry.Retryable) > 0 {
		retry["retryable"] = append([]string(nil), cfg.Retry.Retryable...)
	}
	if includeZero || cfg.Retry.RespectRetryAfter {
		retry["respect_retry_after"] = cfg.Retry.RespectRetryAfter
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.RequestsPerSecond > 0 {
		rateLimit["requests_per_second"] = cfg.RateLimit.RequestsPerSecond
	}
	if includeZero || cfg.RateLimit.Burst > 0 {
		rateLimit["burst"] = cfg.RateLimit.Burst
	}
	if includeZero || cfg.RateLimit.Adaptive {
		rateLimit["adaptive"] = cfg.RateLimit.Adaptive
	}
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	credentials := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Credentials.TokenPath) != "" {
		credentials["token_path"] = strings.TrimSpace(cfg.Credentials.TokenPath)
	}
	if includeZero || cfg.Credentials.Username != "" {
		credentials["username"] = cfg.Credentials.Username
	}
	if includeZero || cfg.Credentials.Password != "" {
		credentials["password"] = cfg.Credentials.Password
	}
	if includeZero || len(cfg.Credentials.Scopes) > 0 {
		credentials["scopes"] = append([]string(nil), cfg.Credentials.Scopes...)
	}
	if includeZero || cfg.Credentials.ExpiryBuffer > 0 {
		credentials["expiry_buffer"] = cfg.Credentials.ExpiryBuffer
	}
	if len(credentials) > 0 {
		layer["credentials"] = credentials
	}

	webhook := map[string]any{}
	if includeZero || cfg.Webhook.Secret != "" {
		webhook["secret"] = cfg.Webhook.Secret
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.DispatchMode) != "" {
		webhook["dispatch_mode"] = strings.TrimSpace(cfg.Webhook.DispatchMode)
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.FailurePolicy) != "" {
		webhook["failure_policy"] = strings.TrimSpace(cfg.Webhook.FailurePolicy)
	}
	if includeZero || cfg.Webhook.DedupeTTL > 0 {
		webhook["dedupe_ttl"] = cfg.Webhook.DedupeTTL
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}
	return layer
}
