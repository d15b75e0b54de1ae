package query

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/transport"
)

type HeaderReader interface {
	GetAuthHeaders(ctx context.Context) (map[string]string, error)
}

type TokenReader interface {
	Token(ctx context.Context) (auth.CachedToken, error)
}

type Getter interface {
	Get(ctx context.Context, endpoint string, opts ...transport.CallOption) core.Result[transport.Response]
}

// CredentialStatus describes the current token without exposing it.
type CredentialStatus struct {
	TokenType string
	ExpiresAt time.Time
	Valid     bool
}

type AuthHeadersQuery struct {
	reader HeaderReader
}

func NewAuthHeadersQuery(reader HeaderReader) *AuthHeadersQuery {
	return &AuthHeadersQuery{reader: reader}
}

func (q *AuthHeadersQuery) Query(ctx context.Context, _ AuthHeadersMessage) (map[string]string, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: credential header reader is required")
	}
	return q.reader.GetAuthHeaders(ctx)
}

type CredentialStatusQuery struct {
	reader TokenReader
	now    func() time.Time
}

func NewCredentialStatusQuery(reader TokenReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader, now: time.Now}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, _ CredentialStatusMessage) (CredentialStatus, error) {
	if q == nil || q.reader == nil {
		return CredentialStatus{}, queryDependencyError("query: token reader is required")
	}
	token, err := q.reader.Token(ctx)
	if err != nil {
		return CredentialStatus{}, err
	}
	now := time.Now
	if q.now != nil {
		now = q.now
	}
	return CredentialStatus{
		TokenType: token.TokenType,
		ExpiresAt: token.ExpiresAt,
		Valid:     token.ValidAt(now()),
	}, nil
}

type FetchResourceQuery struct {
	getter Getter
}

func NewFetchResourceQuery(getter Getter) *FetchResourceQuery {
	return &FetchResourceQuery{getter: getter}
}

func (q *FetchResourceQuery) Query(ctx context.Context, msg FetchResourceMessage) (transport.Response, error) {
	if q == nil || q.getter == nil {
		return transport.Response{}, queryDependencyError("query: getter is required")
	}
	if err := msg.Validate(); err != nil {
		return transport.Response{}, err
	}
	var opts []transport.CallOption
	if len(msg.Query) > 0 {
		opts = append(opts, transport.WithQuery(msg.Query))
	}
	if bucket := strings.TrimSpace(msg.Bucket); bucket != "" {
		opts = append(opts, transport.WithRateLimitBucket(bucket))
	}
	return q.getter.Get(ctx, msg.Endpoint, opts...).Unwrap()
}
