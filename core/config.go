package core

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DispatchModeConcurrent = "concurrent"
	DispatchModeSequential = "sequential"

	FailurePolicyFailFast   = "fail_fast"
	FailurePolicyCollectAll = "collect_all"
)

type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	BaseDelay         time.Duration `koanf:"base_delay" mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay          time.Duration `koanf:"max_delay" mapstructure:"max_delay" validate:"gte=0"`
	Retryable         []string      `koanf:"retryable" mapstructure:"retryable" validate:"dive,oneof=rate_limit connection timeout unauthorized forbidden not_found internal_server_error bad_gateway service_unavailable gateway_timeout unknown"`
	RespectRetryAfter bool          `koanf:"respect_retry_after" mapstructure:"respect_retry_after"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" mapstructure:"burst" validate:"gte=0"`
	// Adaptive holds calls back while the provider reports a bucket as throttled.
	Adaptive bool `koanf:"adaptive" mapstructure:"adaptive"`
}

type CredentialsConfig struct {
	TokenPath    string        `koanf:"token_path" mapstructure:"token_path"`
	Username     string        `koanf:"username" mapstructure:"username" validate:"required_with=TokenPath"`
	Password     string        `koanf:"password" mapstructure:"password" validate:"required_with=TokenPath"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	ExpiryBuffer time.Duration `koanf:"expiry_buffer" mapstructure:"expiry_buffer" validate:"gte=0"`
}

type WebhookConfig struct {
	Secret        string        `koanf:"secret" mapstructure:"secret"`
	DispatchMode  string        `koanf:"dispatch_mode" mapstructure:"dispatch_mode" validate:"omitempty,oneof=concurrent sequential"`
	FailurePolicy string        `koanf:"failure_policy" mapstructure:"failure_policy" validate:"omitempty,oneof=fail_fast collect_all"`
	DedupeTTL     time.Duration `koanf:"dedupe_ttl" mapstructure:"dedupe_ttl" validate:"gte=0"`
}

// Config describes one provider integration: its transport, credentials and
// webhook engine.
type Config struct {
	Provider             string            `koanf:"provider" mapstructure:"provider" validate:"required"`
	BaseURL              string            `koanf:"base_url" mapstructure:"base_url" validate:"required,http_url"`
	Headers              map[string]string `koanf:"headers" mapstructure:"headers"`
	Timeout              time.Duration     `koanf:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxResponseBodyBytes int64             `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes" validate:"gte=0"`
	Retry                RetryConfig       `koanf:"retry" mapstructure:"retry"`
	RateLimit            RateLimitConfig   `koanf:"rate_limit" mapstructure:"rate_limit"`
	Credentials          CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Webhook              WebhookConfig     `koanf:"webhook" mapstructure:"webhook"`
}

// DefaultRetryable lists the classifications retried unless configured otherwise.
func DefaultRetryable() []string {
	return []string{
		string(ClassRateLimit),
		string(ClassConnection),
		string(ClassTimeout),
		string(ClassInternalServerError),
		string(ClassBadGateway),
		string(ClassServiceUnavailable),
		string(ClassGatewayTimeout),
	}
}

func DefaultConfig() Config {
	return Config{
		Headers: map[string]string{},
		Timeout: 30 * time.Second,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Retryable:   DefaultRetryable(),
		},
		Credentials: CredentialsConfig{
			ExpiryBuffer: 300 * time.Second,
		},
		Webhook: WebhookConfig{
			DispatchMode:  DispatchModeConcurrent,
			FailurePolicy: FailurePolicyFailFast,
			DedupeTTL:     10 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return FromValidation(err, WithProvider(c.Provider), WithMethod("config"))
	}
	if strings.TrimSpace(c.Credentials.TokenPath) != "" && strings.Contains(c.Credentials.TokenPath, "://") {
		return NewValidation(
			"validation failed: credentials.token_path: must be a path relative to base_url",
			WithProvider(c.Provider),
			WithMethod("config"),
		)
	}
	return nil
}

// RetryableClassifications converts configured names into classifications.
func (c RetryConfig) RetryableClassifications() []Classification {
	out := make([]Classification, 0, len(c.Retryable))
	for _, raw := range c.Retryable {
		class := Classification(strings.ToLower(strings.TrimSpace(raw)))
		if class.Valid() {
			out = append(out, class)
		}
	}
	return out
}
