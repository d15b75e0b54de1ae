package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-paykit/core"
)

// HeaderSource supplies headers computed per attempt, such as bearer tokens.
type HeaderSource func(ctx context.Context) (map[string]string, error)

type callOptions struct {
	headers        map[string]string
	query          map[string]string
	body           any
	form           url.Values
	timeout        time.Duration
	retry          *RetryPolicy
	headerSources  []HeaderSource
	operation      string
	idempotencyKey string
	bucket         string
}

type CallOption func(*callOptions)

// WithHeaders merges per-call headers; they win over the client defaults.
func WithHeaders(headers map[string]string) CallOption {
	return func(o *callOptions) {
		for key, value := range headers {
			setHeader(o.headers, key, value)
		}
	}
}

func WithHeader(key string, value string) CallOption {
	return func(o *callOptions) {
		setHeader(o.headers, key, value)
	}
}

// WithBody sets the request body. Byte slices, strings and readers are sent as
// is; any other value is JSON encoded.
func WithBody(body any) CallOption {
	return func(o *callOptions) {
		o.body = body
		o.form = nil
	}
}

// WithForm sends values as application/x-www-form-urlencoded.
func WithForm(values url.Values) CallOption {
	return func(o *callOptions) {
		o.form = values
		o.body = nil
	}
}

func WithQuery(query map[string]string) CallOption {
	return func(o *callOptions) {
		for key, value := range query {
			o.query[key] = value
		}
	}
}

// WithTimeout bounds each attempt of the call.
func WithTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// WithRetryPolicy overrides the client policy for one call.
func WithRetryPolicy(policy RetryPolicy) CallOption {
	return func(o *callOptions) {
		normalized := policy.normalized()
		o.retry = &normalized
	}
}

// WithHeaderSource adds headers resolved before every attempt.
func WithHeaderSource(source HeaderSource) CallOption {
	return func(o *callOptions) {
		if source != nil {
			o.headerSources = append(o.headerSources, source)
		}
	}
}

// WithOperation names the logical operation recorded on failures and spans.
func WithOperation(name string) CallOption {
	return func(o *callOptions) {
		o.operation = strings.TrimSpace(name)
	}
}

// WithRateLimitBucket selects the throttling bucket the call is tracked under.
func WithRateLimitBucket(bucket string) CallOption {
	return func(o *callOptions) {
		o.bucket = strings.TrimSpace(bucket)
	}
}

// WithIdempotencyKey sets the key sent on every attempt of the call.
func WithIdempotencyKey(key string) CallOption {
	return func(o *callOptions) {
		o.idempotencyKey = strings.TrimSpace(key)
	}
}

func newCallOptions(opts []CallOption) callOptions {
	out := callOptions{
		headers: map[string]string{},
		query:   map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// encodeBody renders the configured body and the content type it implies.
func (o callOptions) encodeBody() ([]byte, string, error) {
	if o.form != nil {
		return []byte(o.form.Encode()), "application/x-www-form-urlencoded", nil
	}
	switch typed := o.body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return typed, "", nil
	case string:
		return []byte(typed), "", nil
	case json.RawMessage:
		return typed, "application/json", nil
	case io.Reader:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(typed); err != nil {
			return nil, "", core.NewValidation("transport: read request body", core.WithCause(err))
		}
		return buf.Bytes(), "", nil
	default:
		payload, err := json.Marshal(typed)
		if err != nil {
			return nil, "", core.NewInvalidType("json encodable body", typed, core.WithCause(err))
		}
		return payload, "application/json", nil
	}
}

// setHeader replaces any existing key that differs only in case.
func setHeader(headers map[string]string, key string, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	for existing := range headers {
		if strings.EqualFold(existing, key) {
			delete(headers, existing)
		}
	}
	headers[key] = value
}

func hasHeader(headers map[string]string, key string) bool {
	for existing := range headers {
		if strings.EqualFold(existing, key) {
			return true
		}
	}
	return false
}
