package query

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/providers/devkit"
	"github.com/goliatone/go-paykit/transport"
)

type stubTokens struct {
	token auth.CachedToken
	err   error
}

func (s stubTokens) Token(context.Context) (auth.CachedToken, error) {
	return s.token, s.err
}

func (s stubTokens) GetAuthHeaders(context.Context) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[string]string{"Authorization": "Bearer " + s.token.AccessToken}, nil
}

func TestAuthHeadersQuery(t *testing.T) {
	headers, err := NewAuthHeadersQuery(stubTokens{token: auth.CachedToken{AccessToken: "tok_1"}}).
		Query(context.Background(), AuthHeadersMessage{})
	if err != nil {
		t.Fatalf("query headers: %v", err)
	}
	if headers["Authorization"] != "Bearer tok_1" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestCredentialStatusQuery_HidesToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := NewCredentialStatusQuery(stubTokens{token: auth.CachedToken{
		AccessToken: "tok_1",
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(time.Minute),
	}})
	q.now = func() time.Time { return now }

	status, err := q.Query(context.Background(), CredentialStatusMessage{})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !status.Valid || status.TokenType != "Bearer" || !status.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected status %#v", status)
	}

	failure := core.NewAuthentication("exchange rejected")
	if _, err := NewCredentialStatusQuery(stubTokens{err: failure}).Query(context.Background(), CredentialStatusMessage{}); !core.IsKind(err, core.KindAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestFetchResourceQuery_UsesTransport(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter(devkit.JSON(http.StatusOK, `{"id":"pay_1"}`))
	client, err := transport.New(transport.Config{Provider: "acme", BaseURL: "https://api.acme.test", Adapter: adapter})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := NewFetchResourceQuery(client).Query(context.Background(), FetchResourceMessage{
		Endpoint: "/v1/payments/pay_1",
		Query:    map[string]string{"expand": "customer"},
	})
	if err != nil {
		t.Fatalf("query fetch: %v", err)
	}
	if string(res.Body) != `{"id":"pay_1"}` {
		t.Fatalf("unexpected body %q", res.Body)
	}
	requests := adapter.Requests()
	if len(requests) != 1 || requests[0].Method != http.MethodGet {
		t.Fatalf("expected one GET, got %#v", requests)
	}
	if requests[0].URL != "https://api.acme.test/v1/payments/pay_1" || requests[0].Query["expand"] != "customer" {
		t.Fatalf("unexpected request %s %v", requests[0].URL, requests[0].Query)
	}
}

func TestFetchResourceQuery_RejectsEmptyEndpoint(t *testing.T) {
	q := NewFetchResourceQuery(nil)
	if _, err := q.Query(context.Background(), FetchResourceMessage{}); !core.IsKind(err, core.KindConfiguration) {
		t.Fatalf("expected configuration error for missing getter, got %v", err)
	}
	if err := (FetchResourceMessage{Endpoint: " "}).Validate(); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
