package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-paykit/core"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) (*Client, *recordedSleeps) {
	t.Helper()
	sleeps := &recordedSleeps{}
	cfg := Config{
		Provider: "acme",
		BaseURL:  baseURL,
		Sleep:    sleeps.sleep,
		Jitter:   func() float64 { return 1 },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, sleeps
}

func TestClient_RetriesServiceUnavailableUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(t, server.URL, nil)
	res := client.Get(context.Background(), "/v1/ping")
	if !res.OK() {
		t.Fatalf("expected success after retries, got %v", res.Err())
	}
	if res.Value().Attempts != 3 || calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d (server saw %d)", res.Value().Attempts, calls.Load())
	}
	expected := []time.Duration{500 * time.Millisecond, time.Second}
	if len(sleeps.delays) != len(expected) {
		t.Fatalf("expected %d sleeps, got %v", len(expected), sleeps.delays)
	}
	for i, want := range expected {
		if sleeps.delays[i] != want {
			t.Fatalf("sleep %d: expected %s, got %s", i, want, sleeps.delays[i])
		}
	}
}

func TestClient_NonRetryableFailsAfterOneAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing"}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(t, server.URL, nil)
	res := client.Get(context.Background(), "customers/cus_1")
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if calls.Load() != 1 || len(sleeps.delays) != 0 {
		t.Fatalf("expected a single attempt without sleeping, got %d calls and %v", calls.Load(), sleeps.delays)
	}
	err := res.Err()
	if !core.IsKind(err, core.KindResourceNotFound) {
		t.Fatalf("expected resource_not_found kind, got %q", core.KindOf(err))
	}
	if class := core.Classify(err); class != core.ClassNotFound {
		t.Fatalf("expected not_found classification, got %q", class)
	}
	metadata := core.ErrorMetadata(err)
	if metadata[MetadataResponseBody] != `{"error":"missing"}` {
		t.Fatalf("expected response snippet, got %v", metadata[MetadataResponseBody])
	}
	if AttemptsOf(err) != 1 || StatusCodeOf(err) != http.StatusNotFound {
		t.Fatalf("expected attempts=1 status=404, got %d/%d", AttemptsOf(err), StatusCodeOf(err))
	}
	if metadata["provider"] != "acme" {
		t.Fatalf("expected provider metadata, got %v", metadata["provider"])
	}
}

func TestClient_ExhaustionReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	res := client.Post(context.Background(), "charges", WithBody(map[string]any{"amount": 100}))
	if res.OK() {
		t.Fatalf("expected exhaustion failure")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected max attempts to bound calls, got %d", calls.Load())
	}
	if class := core.Classify(res.Err()); class != core.ClassGatewayTimeout {
		t.Fatalf("expected last failure (gateway_timeout), got %q", class)
	}
	if AttemptsOf(res.Err()) != 3 {
		t.Fatalf("expected attempts annotation of 3, got %d", AttemptsOf(res.Err()))
	}
}

func TestClient_RateLimitFailureCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, sleeps := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Retry = DefaultRetryPolicy()
		cfg.Retry.MaxAttempts = 2
		cfg.Retry.RespectRetryAfter = true
	})
	res := client.Get(context.Background(), "limits")
	if !core.IsKind(res.Err(), core.KindRateLimit) {
		t.Fatalf("expected rate_limit kind, got %q", core.KindOf(res.Err()))
	}
	if len(sleeps.delays) != 1 || sleeps.delays[0] != 2*time.Second {
		t.Fatalf("expected Retry-After to drive the wait, got %v", sleeps.delays)
	}
	if got := core.ErrorMetadata(res.Err())[MetadataRetryAfterMS]; got != int64(2000) {
		t.Fatalf("expected retry_after_ms metadata, got %v", got)
	}
}

func TestClient_PerCallHeadersWinCaseInsensitively(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Values("X-Api-Version"); len(got) != 1 || got[0] != "2024-06" {
			t.Errorf("expected per-call version header, got %v", got)
		}
		if got := r.Header.Get("X-Tenant"); got != "default" {
			t.Errorf("expected default tenant header, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected header source authorization, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Headers = map[string]string{"X-API-Version": "2020-01", "X-Tenant": "default"}
	})
	res := client.Get(context.Background(), "ping",
		WithHeader("x-api-version", "2024-06"),
		WithHeaderSource(func(context.Context) (map[string]string, error) {
			return map[string]string{"Authorization": "Bearer tok"}, nil
		}),
	)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err())
	}
}

func TestClient_JoinsBaseAndEndpointWithOneSlash(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL+"/api/", nil)
	for _, endpoint := range []string{"/v1/items", "v1/items", "//v1/items"} {
		if res := client.Get(context.Background(), endpoint); !res.OK() {
			t.Fatalf("get %q: %v", endpoint, res.Err())
		}
	}
	for _, path := range paths {
		if path != "/api/v1/items" {
			t.Fatalf("expected normalized path /api/v1/items, got %q", path)
		}
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(paths))
	}
}

func TestClient_RejectsAbsoluteEndpoint(t *testing.T) {
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			t.Fatalf("adapter must not be called")
			return core.TransportResponse{}, nil
		})
	})
	res := client.Get(context.Background(), "https://evil.example.com/steal")
	if !core.IsKind(res.Err(), core.KindValidation) {
		t.Fatalf("expected validation error, got %v", res.Err())
	}
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "/relative"}); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error for relative base url, got %v", err)
	}
}

type adapterFunc func(context.Context, core.TransportRequest) (core.TransportResponse, error)

func (f adapterFunc) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	return f(ctx, req)
}

func TestClient_NetworkErrorsAreClassifiedAndRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			calls.Add(1)
			return core.TransportResponse{}, &url.Error{Op: "Get", URL: "https://api.example.com", Err: errors.New("connection refused")}
		})
	})
	res := client.Get(context.Background(), "ping")
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected connection failures to be retried, got %d calls", calls.Load())
	}
	if class := core.Classify(res.Err()); class != core.ClassConnection {
		t.Fatalf("expected connection classification, got %q", class)
	}
	if !core.IsKind(res.Err(), core.KindOperationFailed) {
		t.Fatalf("expected operation_failed kind, got %q", core.KindOf(res.Err()))
	}
}

func TestClient_CancellationDuringBackoffSurfacesLastFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	client, err := New(Config{
		BaseURL: "https://api.example.com",
		Adapter: adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			calls.Add(1)
			return core.TransportResponse{StatusCode: http.StatusServiceUnavailable}, nil
		}),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return Sleep(ctx, d)
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res := client.Get(ctx, "ping")
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no further attempts after cancellation, got %d", calls.Load())
	}
	if !errors.Is(res.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", res.Err())
	}
	if class := core.Classify(res.Err()); class != core.ClassServiceUnavailable {
		t.Fatalf("expected last failure classification, got %q", class)
	}
}

func TestClient_PerCallRetryPolicyOverride(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			calls.Add(1)
			return core.TransportResponse{StatusCode: http.StatusInternalServerError}, nil
		})
	})
	res := client.Get(context.Background(), "ping", WithRetryPolicy(NoRetry()))
	if res.OK() || calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClient_EncodesBodies(t *testing.T) {
	var captured []core.TransportRequest
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
			captured = append(captured, req)
			return core.TransportResponse{StatusCode: http.StatusOK}, nil
		})
	})

	client.Post(context.Background(), "json", WithBody(map[string]string{"name": "Ada"}))
	client.Post(context.Background(), "form", WithForm(url.Values{"grant_type": {"client_credentials"}}))
	client.Post(context.Background(), "reader", WithBody(strings.NewReader("raw")), WithHeader("Content-Type", "text/plain"))

	if len(captured) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(captured))
	}
	if string(captured[0].Body) != `{"name":"Ada"}` || captured[0].Headers["Content-Type"] != "application/json" {
		t.Fatalf("unexpected json request: %q %v", captured[0].Body, captured[0].Headers)
	}
	if string(captured[1].Body) != "grant_type=client_credentials" ||
		captured[1].Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected form request: %q %v", captured[1].Body, captured[1].Headers)
	}
	if string(captured[2].Body) != "raw" || captured[2].Headers["Content-Type"] != "text/plain" {
		t.Fatalf("unexpected raw request: %q %v", captured[2].Body, captured[2].Headers)
	}
}

func TestClient_IdempotencyKeyStableAcrossAttempts(t *testing.T) {
	var keys []string
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.AutoIdempotencyKey = true
		cfg.Adapter = adapterFunc(func(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
			keys = append(keys, req.Headers[DefaultIdempotencyHeader])
			if len(keys) < 2 {
				return core.TransportResponse{StatusCode: http.StatusBadGateway}, nil
			}
			return core.TransportResponse{StatusCode: http.StatusCreated}, nil
		})
	})
	if res := client.Post(context.Background(), "payments"); !res.OK() {
		t.Fatalf("expected success, got %v", res.Err())
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("expected the same non-empty key on both attempts, got %v", keys)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Metrics = metrics
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{StatusCode: http.StatusOK}, nil
		})
	})
	client.Get(context.Background(), "ping")

	if metrics.counters["paykit.transport.request.total"] != 1 {
		t.Fatalf("expected request counter, got %v", metrics.counters)
	}
	if metrics.counters["paykit.transport.attempt.total"] != 1 {
		t.Fatalf("expected attempt counter, got %v", metrics.counters)
	}
	if metrics.histograms["paykit.transport.request.duration_ms"] != 1 {
		t.Fatalf("expected duration histogram, got %v", metrics.histograms)
	}
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.histograms == nil {
		m.histograms = map[string]int{}
	}
	m.histograms[name]++
}

func TestJSON_DecodesAndReportsInvalidType(t *testing.T) {
	type customer struct {
		ID string `json:"id"`
	}
	ok := JSON[customer](core.Ok(Response{StatusCode: 200, Body: []byte(`{"id":"cus_1"}`)}))
	if !ok.OK() || ok.Value().ID != "cus_1" {
		t.Fatalf("expected decoded customer, got %+v %v", ok.Value(), ok.Err())
	}

	bad := JSON[customer](core.Ok(Response{StatusCode: 200, Body: []byte(`[1,2]`)}))
	if !core.IsKind(bad.Err(), core.KindInvalidType) {
		t.Fatalf("expected invalid_type, got %v", bad.Err())
	}

	failed := JSON[customer](core.Fail[Response](io.ErrUnexpectedEOF))
	if !errors.Is(failed.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("expected failure to pass through, got %v", failed.Err())
	}
}

func TestClient_ReusedAdapterErrorReportsEachCallTarget(t *testing.T) {
	rejected := core.NewAuthentication("token revoked")
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{}, rejected
		})
	})

	first := client.Get(context.Background(), "/first")
	second := client.Get(context.Background(), "/second")
	if first.OK() || second.OK() {
		t.Fatalf("expected both calls to fail")
	}
	for endpoint, err := range map[string]error{"/first": first.Err(), "/second": second.Err()} {
		metadata := core.ErrorMetadata(err)
		if metadata[MetadataEndpoint] != endpoint {
			t.Fatalf("expected endpoint %s, got %v", endpoint, metadata[MetadataEndpoint])
		}
		if metadata[MetadataURL] != "https://api.example.com"+endpoint {
			t.Fatalf("expected url for %s, got %v", endpoint, metadata[MetadataURL])
		}
		if !core.IsKind(err, core.KindAuthentication) || !errors.Is(err, rejected) {
			t.Fatalf("expected authentication failure wrapping the adapter error, got %v", err)
		}
	}
	shared := core.ErrorMetadata(rejected)
	for _, key := range []string{MetadataEndpoint, MetadataURL, MetadataAttempts} {
		if _, ok := shared[key]; ok {
			t.Fatalf("expected adapter error to stay untouched, found %s in %v", key, shared)
		}
	}
}

func TestClient_ConcurrentHeaderSourceFailuresDoNotShareMetadata(t *testing.T) {
	refreshFailed := core.NewOperationFailed("getAccessToken", "acme", errors.New("token endpoint unavailable"))
	var exchanged atomic.Int32
	client, _ := newTestClient(t, "https://api.example.com", func(cfg *Config) {
		cfg.Adapter = adapterFunc(func(context.Context, core.TransportRequest) (core.TransportResponse, error) {
			exchanged.Add(1)
			return core.TransportResponse{StatusCode: http.StatusOK}, nil
		})
	})
	source := func(context.Context) (map[string]string, error) {
		return nil, refreshFailed
	}

	const callers = 16
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "payments", WithHeaderSource(source)).Err()
		}()
	}
	wg.Wait()

	if exchanged.Load() != 0 {
		t.Fatalf("expected no request without headers, got %d", exchanged.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, refreshFailed) || !core.IsKind(err, core.KindOperationFailed) {
			t.Fatalf("caller %d: expected refresh failure, got %v", i, err)
		}
		if AttemptsOf(err) != 1 {
			t.Fatalf("caller %d: expected one attempt, got %d", i, AttemptsOf(err))
		}
	}
	if _, ok := core.ErrorMetadata(refreshFailed)[MetadataAttempts]; ok {
		t.Fatalf("expected shared refresh error to stay untouched")
	}
}
