package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-paykit/adapters/gologger"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/transport"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpiryBuffer  = 300 * time.Second
	methodGetAccessToken = "getAccessToken"
	refreshKey           = "token"
)

// TokenTransport is the part of the transport client used for exchanges.
type TokenTransport interface {
	Post(ctx context.Context, endpoint string, opts ...transport.CallOption) core.Result[transport.Response]
}

// TokenGrant is what a provider token endpoint returned.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// ResponseAdapter extracts a grant from a provider-specific token response.
type ResponseAdapter func(body []byte) (TokenGrant, error)

// CachedToken is the cached bearer token and the instant it stops being used.
type CachedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

func (t CachedToken) ExpiresAtEpochMillis() int64 {
	return t.ExpiresAt.UnixMilli()
}

// ValidAt reports whether the token may still be used at now.
func (t CachedToken) ValidAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

type CredentialConfig struct {
	Provider  string
	TokenPath string
	Username  string
	Password  string
	Scopes    []string
	// ExtraBody is merged into the form body of the exchange.
	ExtraBody url.Values
	// ExtraHeaders are sent with the exchange request only.
	ExtraHeaders map[string]string
	// StaticHeaders are added to every GetAuthHeaders result.
	StaticHeaders   map[string]string
	ExpiryBuffer    time.Duration
	ResponseAdapter ResponseAdapter
	Now             func() time.Time

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
}

// CredentialConfigFromCore maps the shared credentials section.
func CredentialConfigFromCore(cfg core.Config) CredentialConfig {
	return CredentialConfig{
		Provider:     cfg.Provider,
		TokenPath:    cfg.Credentials.TokenPath,
		Username:     cfg.Credentials.Username,
		Password:     cfg.Credentials.Password,
		Scopes:       append([]string(nil), cfg.Credentials.Scopes...),
		ExpiryBuffer: cfg.Credentials.ExpiryBuffer,
	}
}

// CredentialManager caches a client-credentials bearer token and refreshes it
// once it reaches its buffered expiry. Concurrent refreshes share one exchange.
type CredentialManager struct {
	config    CredentialConfig
	transport TokenTransport
	observer  core.Observer

	mu         sync.Mutex
	cached     *CachedToken
	generation uint64
	refresh    singleflight.Group
}

func NewCredentialManager(cfg CredentialConfig, tr TokenTransport) (*CredentialManager, error) {
	cfg.Provider = strings.TrimSpace(cfg.Provider)
	cfg.TokenPath = strings.TrimSpace(cfg.TokenPath)
	if tr == nil {
		return nil, core.NewConfiguration("auth: credential manager requires a transport",
			core.WithProvider(cfg.Provider), core.WithMethod("auth.new"))
	}
	if cfg.TokenPath == "" {
		return nil, core.NewConfiguration("auth: token path is required",
			core.WithProvider(cfg.Provider), core.WithMethod("auth.new"))
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}
	if cfg.ResponseAdapter == nil {
		cfg.ResponseAdapter = DefaultResponseAdapter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Scopes = normalizeValues(cfg.Scopes)
	cfg.ExtraHeaders = cloneHeaders(cfg.ExtraHeaders)
	cfg.StaticHeaders = cloneHeaders(cfg.StaticHeaders)

	logger := gologger.Component("paykit.auth", cfg.Provider, cfg.LoggerProvider, cfg.Logger)
	return &CredentialManager{
		config:    cfg,
		transport: tr,
		observer:  core.NewObserver(logger, cfg.Metrics, "paykit.auth"),
	}, nil
}

// GetAuthHeaders returns the bearer authorization header plus static headers.
func (m *CredentialManager) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := cloneHeaders(m.config.StaticHeaders)
	headers["Authorization"] = "Bearer " + token.AccessToken
	return headers, nil
}

// HeaderSource adapts the manager for transport.WithHeaderSource.
func (m *CredentialManager) HeaderSource() transport.HeaderSource {
	return m.GetAuthHeaders
}

// Token returns the cached token, exchanging a new one when it has expired.
func (m *CredentialManager) Token(ctx context.Context) (CachedToken, error) {
	if m == nil || m.transport == nil {
		return CachedToken{}, core.NewConfiguration("auth: credential manager is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if token, ok := m.current(); ok {
		return token, nil
	}

	result := m.refresh.DoChan(refreshKey, func() (any, error) {
		// A caller that lost the race may arrive after the refresh finished.
		if token, ok := m.current(); ok {
			return token, nil
		}
		return m.exchange(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return CachedToken{}, core.NewOperationFailed(methodGetAccessToken, m.config.Provider, ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return CachedToken{}, res.Err
		}
		return res.Val.(CachedToken), nil
	}
}

// Invalidate drops the cached token so the next call exchanges a new one.
func (m *CredentialManager) Invalidate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cached = nil
	m.generation++
	m.mu.Unlock()
}

func (m *CredentialManager) current() (CachedToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil || !m.cached.ValidAt(m.config.Now()) {
		return CachedToken{}, false
	}
	return *m.cached, true
}

func (m *CredentialManager) exchange(ctx context.Context) (CachedToken, error) {
	startedAt := time.Now()
	m.mu.Lock()
	generation := m.generation
	m.mu.Unlock()

	token, err := m.requestToken(ctx)
	m.observer.Observe(ctx, startedAt, "credential_refresh", err, map[string]any{
		"provider":   m.config.Provider,
		"method":     methodGetAccessToken,
		"token_path": m.config.TokenPath,
	})
	if err != nil {
		return CachedToken{}, err
	}

	m.mu.Lock()
	// An Invalidate during the exchange still lets this caller use the token,
	// but it does not repopulate the cache.
	if generation == m.generation {
		stored := token
		m.cached = &stored
	}
	m.mu.Unlock()
	return token, nil
}

func (m *CredentialManager) requestToken(ctx context.Context) (CachedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(m.config.Scopes) > 0 {
		form.Set("scope", strings.Join(m.config.Scopes, " "))
	}
	for key, values := range m.config.ExtraBody {
		form[key] = append([]string(nil), values...)
	}

	headers := cloneHeaders(m.config.ExtraHeaders)
	if m.config.Username != "" || m.config.Password != "" {
		credentials := m.config.Username + ":" + m.config.Password
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	}

	res := m.transport.Post(ctx, m.config.TokenPath,
		transport.WithForm(form),
		transport.WithHeaders(headers),
		transport.WithOperation(methodGetAccessToken),
	)
	if !res.OK() {
		return CachedToken{}, core.NewOperationFailed(methodGetAccessToken, m.config.Provider, res.Err())
	}

	grant, err := m.config.ResponseAdapter(res.Value().Body)
	if err == nil && strings.TrimSpace(grant.AccessToken) == "" {
		err = errors.New("token response carried no access token")
	}
	if err != nil {
		return CachedToken{}, core.NewOperationFailed(methodGetAccessToken, m.config.Provider, err)
	}

	now := m.config.Now()
	return CachedToken{
		AccessToken: strings.TrimSpace(grant.AccessToken),
		TokenType:   strings.TrimSpace(grant.TokenType),
		ExpiresAt:   now.Add(grant.ExpiresIn - m.config.ExpiryBuffer),
	}, nil
}

// DefaultResponseAdapter reads the RFC 6749 access_token and expires_in fields.
func DefaultResponseAdapter(body []byte) (TokenGrant, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	payload := map[string]any{}
	if err := decoder.Decode(&payload); err != nil {
		return TokenGrant{}, core.NewInvalidType("token response object", string(body), core.WithCause(err))
	}
	expiresIn, ok := readSeconds(payload, "expires_in")
	if !ok {
		return TokenGrant{}, core.NewValidation("validation failed: expires_in: is required")
	}
	return TokenGrant{
		AccessToken: readString(payload, "access_token"),
		TokenType:   readString(payload, "token_type"),
		ExpiresIn:   time.Duration(expiresIn) * time.Second,
	}, nil
}
