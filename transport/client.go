package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-paykit/adapters/gologger"
	"github.com/goliatone/go-paykit/core"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	TracerName               = "github.com/goliatone/go-paykit/transport"
	DefaultIdempotencyHeader = "Idempotency-Key"
	metricsPrefix            = "paykit.transport"
)

type Config struct {
	Provider string
	// BaseURL is the absolute provider API root every endpoint is joined to.
	BaseURL string
	Headers map[string]string
	// Retry applies to every call; a zero MaxAttempts selects DefaultRetryPolicy.
	Retry RetryPolicy
	// HTTPClient backs the default single-attempt adapter.
	HTTPClient HTTPDoer
	// Adapter replaces the default REST adapter when set.
	Adapter              core.TransportAdapter
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	RateLimit            core.RateLimitConfig
	// Throttle gates attempts on throttling signals from earlier responses.
	Throttle core.RateLimitPolicy
	// IdempotencyHeader names the header carrying idempotency keys.
	IdempotencyHeader string
	// AutoIdempotencyKey generates one key per unsafe call, reused across attempts.
	AutoIdempotencyKey bool

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
	Tracer         trace.Tracer

	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64
	Now    func() time.Time
}

// ConfigFromCore maps the shared configuration onto transport settings.
func ConfigFromCore(cfg core.Config) Config {
	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = value
	}
	return Config{
		Provider:             cfg.Provider,
		BaseURL:              cfg.BaseURL,
		Headers:              headers,
		Retry:                RetryPolicyFromConfig(cfg.Retry),
		Timeout:              cfg.Timeout,
		MaxResponseBodyBytes: cfg.MaxResponseBodyBytes,
		RateLimit:            cfg.RateLimit,
	}
}

// Response is a successful provider response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Attempts   int
}

func (r Response) Header(key string) string {
	return core.TransportResponse{Headers: r.Headers}.Header(key)
}

// Client executes provider calls with bounded, classified retries.
type Client struct {
	provider          string
	baseURL           string
	headers           map[string]string
	retry             RetryPolicy
	adapter           core.TransportAdapter
	timeout           time.Duration
	maxBodyBytes      int64
	limiter           *rate.Limiter
	throttle          core.RateLimitPolicy
	idempotencyHeader string
	autoIdempotency   bool
	defaults          []CallOption

	observer core.Observer
	tracer   trace.Tracer
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func() float64
	now      func() time.Time
}

func New(cfg Config) (*Client, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	for key, value := range cfg.Headers {
		setHeader(headers, key, value)
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}

	adapter := cfg.Adapter
	if adapter == nil {
		rest := NewRESTAdapter(cfg.HTTPClient)
		if cfg.MaxResponseBodyBytes > 0 {
			rest.MaxResponseBodyBytes = cfg.MaxResponseBodyBytes
		}
		adapter = rest
	}

	client := &Client{
		provider:          strings.TrimSpace(cfg.Provider),
		baseURL:           baseURL,
		headers:           headers,
		retry:             policy.normalized(),
		adapter:           adapter,
		timeout:           cfg.Timeout,
		maxBodyBytes:      cfg.MaxResponseBodyBytes,
		idempotencyHeader: strings.TrimSpace(cfg.IdempotencyHeader),
		autoIdempotency:   cfg.AutoIdempotencyKey,
		throttle:          cfg.Throttle,
		tracer:            cfg.Tracer,
		sleep:             cfg.Sleep,
		jitter:            cfg.Jitter,
		now:               cfg.Now,
	}
	if client.idempotencyHeader == "" {
		client.idempotencyHeader = DefaultIdempotencyHeader
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}
	if client.tracer == nil {
		client.tracer = otel.Tracer(TracerName)
	}
	if client.sleep == nil {
		client.sleep = Sleep
	}
	if client.jitter == nil {
		client.jitter = DefaultJitter
	}
	if client.now == nil {
		client.now = time.Now
	}
	logger := gologger.Component("paykit.transport", cfg.Provider, cfg.LoggerProvider, cfg.Logger)
	client.observer = core.NewObserver(logger, cfg.Metrics, metricsPrefix)
	return client, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", core.NewValidation(
			"transport: base url must be an absolute http(s) url",
			core.WithCause(err),
			core.WithMethod("transport.new"),
			core.WithContext(map[string]any{"base_url": strings.TrimSpace(raw)}),
		)
	}
	return trimmed, nil
}

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string {
	if c == nil {
		return ""
	}
	return c.provider
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// With returns a client sharing this one's adapter, limiter and policy that
// applies opts before the options of every call.
func (c *Client) With(opts ...CallOption) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.defaults = append(append([]CallOption(nil), c.defaults...), opts...)
	return &clone
}

func (c *Client) Get(ctx context.Context, endpoint string, opts ...CallOption) core.Result[Response] {
	return c.Do(ctx, http.MethodGet, endpoint, opts...)
}

func (c *Client) Post(ctx context.Context, endpoint string, opts ...CallOption) core.Result[Response] {
	return c.Do(ctx, http.MethodPost, endpoint, opts...)
}

func (c *Client) Put(ctx context.Context, endpoint string, opts ...CallOption) core.Result[Response] {
	return c.Do(ctx, http.MethodPut, endpoint, opts...)
}

func (c *Client) Patch(ctx context.Context, endpoint string, opts ...CallOption) core.Result[Response] {
	return c.Do(ctx, http.MethodPatch, endpoint, opts...)
}

func (c *Client) Delete(ctx context.Context, endpoint string, opts ...CallOption) core.Result[Response] {
	return c.Do(ctx, http.MethodDelete, endpoint, opts...)
}

// Do sends one logical call and retries retryable failures within the policy.
// Failures are returned as results, never raised.
func (c *Client) Do(ctx context.Context, method string, endpoint string, opts ...CallOption) core.Result[Response] {
	if c == nil || c.adapter == nil {
		return core.Fail[Response](core.NewConfiguration("transport: client is not initialized", core.WithMethod("transport.do")))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if len(c.defaults) > 0 {
		opts = append(append([]CallOption(nil), c.defaults...), opts...)
	}
	call := newCallOptions(opts)
	operation := call.operation
	if operation == "" {
		operation = method + " " + strings.TrimSpace(endpoint)
	}

	fullURL, err := c.resolveURL(endpoint)
	if err != nil {
		return core.Fail[Response](err)
	}
	body, contentType, err := call.encodeBody()
	if err != nil {
		return core.Fail[Response](err)
	}

	headers := make(map[string]string, len(c.headers)+len(call.headers)+2)
	for key, value := range c.headers {
		headers[key] = value
	}
	for key, value := range call.headers {
		setHeader(headers, key, value)
	}
	if contentType != "" && !hasHeader(headers, "Content-Type") {
		headers["Content-Type"] = contentType
	}
	if key := c.idempotencyKey(method, call, headers); key != "" {
		setHeader(headers, c.idempotencyHeader, key)
	}

	policy := c.retry
	if call.retry != nil {
		policy = *call.retry
	}
	timeout := c.timeout
	if call.timeout > 0 {
		timeout = call.timeout
	}
	target := failureTarget{
		provider:  c.provider,
		operation: operation,
		method:    method,
		url:       fullURL,
		endpoint:  strings.TrimSpace(endpoint),
	}

	ctx, span := c.tracer.Start(ctx, "transport."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("paykit.provider", c.provider),
			attribute.String("http.request.method", method),
			attribute.String("paykit.endpoint", target.endpoint),
		),
	)
	defer span.End()

	startedAt := time.Now()
	res, attempts, err := c.execute(ctx, policy, core.TransportRequest{
		Method:               method,
		URL:                  fullURL,
		Headers:              headers,
		Query:                call.query,
		Body:                 body,
		Timeout:              timeout,
		MaxResponseBodyBytes: c.maxBodyBytes,
	}, call.headerSources, core.RateLimitKey{Provider: c.provider, Bucket: call.bucket}, target)

	fields := map[string]any{
		"provider":    c.provider,
		"method":      operation,
		"http_method": method,
		"endpoint":    target.endpoint,
		"attempts":    attempts,
	}
	span.SetAttributes(attribute.Int("paykit.attempts", attempts))
	if err != nil {
		class := core.ClassifyError(err)
		fields["classification"] = string(class)
		if status := StatusCodeOf(err); status > 0 {
			fields["status_code"] = status
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		span.SetAttributes(attribute.String("paykit.classification", string(class)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.observer.Observe(ctx, startedAt, "request", err, fields)
		return core.Fail[Response](err)
	}

	fields["status_code"] = res.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	span.SetStatus(codes.Ok, "")
	c.observer.Observe(ctx, startedAt, "request", nil, fields)
	return core.Ok(Response{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
		Attempts:   attempts,
	})
}

func (c *Client) execute(
	ctx context.Context,
	policy RetryPolicy,
	req core.TransportRequest,
	sources []HeaderSource,
	key core.RateLimitKey,
	target failureTarget,
) (core.TransportResponse, int, error) {
	var lastErr error
	attempt := 0
	for attempt < policy.MaxAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.TransportResponse{}, attempt, interrupted(target, lastErr, ctxErr, attempt)
		}
		if c.limiter != nil {
			if waitErr := c.limiter.Wait(ctx); waitErr != nil {
				return core.TransportResponse{}, attempt, interrupted(target, lastErr, waitErr, attempt)
			}
		}
		attempt++

		var (
			res        core.TransportResponse
			failure    error
			retryAfter time.Duration
		)
		if gateErr := c.gate(ctx, key); gateErr != nil {
			failure = exchangeFailure(target, gateErr)
			retryAfter = retryAfterOf(gateErr)
		} else {
			attemptReq := req
			attemptReq.Headers = make(map[string]string, len(req.Headers))
			for name, value := range req.Headers {
				attemptReq.Headers[name] = value
			}
			for _, source := range sources {
				extra, err := source(ctx)
				if err != nil {
					return core.TransportResponse{}, attempt, annotate(err, map[string]any{MetadataAttempts: attempt}, true)
				}
				for name, value := range extra {
					setHeader(attemptReq.Headers, name, value)
				}
			}

			var err error
			res, err = c.adapter.Do(ctx, attemptReq)
			switch {
			case err != nil:
				failure = exchangeFailure(target, err)
			case !res.Success():
				retryAfter = parseRetryAfter(res.Header("Retry-After"), c.now())
				failure = statusFailure(target, res, retryAfter)
			}
			if err == nil {
				c.track(ctx, key, res)
			}
		}
		class := core.ClassifyError(failure)
		outcome := "success"
		if failure != nil {
			outcome = "failure"
		}
		c.observer.Count(ctx, "attempt.total", map[string]string{
			"provider":       c.provider,
			"http_method":    target.method,
			"outcome":        outcome,
			"classification": string(class),
		})
		if failure == nil {
			return res, attempt, nil
		}

		lastErr = failure
		if !policy.ShouldRetry(class, attempt) {
			break
		}
		delay := policy.Delay(attempt, c.jitter())
		if policy.RespectRetryAfter && retryAfter > 0 &&
			(class == core.ClassRateLimit || class == core.ClassServiceUnavailable) {
			delay = retryAfter
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
		c.observer.Warn(ctx, "transport attempt failed, retrying", map[string]any{
			"provider":       c.provider,
			"method":         target.operation,
			"attempt":        attempt,
			"classification": string(class),
			"delay_ms":       delay.Milliseconds(),
		})
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return core.TransportResponse{}, attempt, interrupted(target, lastErr, sleepErr, attempt)
		}
	}
	return core.TransportResponse{}, attempt, annotateAttempts(lastErr, attempt)
}

func (c *Client) gate(ctx context.Context, key core.RateLimitKey) error {
	if c.throttle == nil {
		return nil
	}
	return c.throttle.BeforeCall(ctx, key)
}

func (c *Client) track(ctx context.Context, key core.RateLimitKey, res core.TransportResponse) {
	if c.throttle == nil {
		return
	}
	if err := c.throttle.AfterCall(ctx, key, res); err != nil {
		c.observer.Warn(ctx, "transport: record throttling state failed", map[string]any{
			"provider": c.provider,
			"bucket":   key.Bucket,
			"error":    err.Error(),
		})
	}
}

// interrupted reports a call stopped by its context. The last observed failure
// stays first so its kind and classification are what callers see.
func interrupted(target failureTarget, lastErr error, cause error, attempts int) error {
	if lastErr == nil {
		return annotateAttempts(exchangeFailure(target, cause), attempts)
	}
	return errors.Join(annotateAttempts(lastErr, attempts), cause)
}

// resolveURL joins endpoint to the base URL with exactly one slash.
func (c *Client) resolveURL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if strings.Contains(endpoint, "://") {
		return "", core.NewValidation(
			fmt.Sprintf("transport: endpoint %q must be relative to the base url", endpoint),
			core.WithProvider(c.provider),
			core.WithMethod("transport.do"),
			core.WithContext(map[string]any{"endpoint": endpoint}),
		)
	}
	path := strings.TrimLeft(endpoint, "/")
	if path == "" {
		return c.baseURL, nil
	}
	return c.baseURL + "/" + path, nil
}

func (c *Client) idempotencyKey(method string, call callOptions, headers map[string]string) string {
	if call.idempotencyKey != "" {
		return call.idempotencyKey
	}
	if !c.autoIdempotency || hasHeader(headers, c.idempotencyHeader) {
		return ""
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ""
	}
	return uuid.NewString()
}
