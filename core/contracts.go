package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TransportRequest is one outbound HTTP attempt.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Success reports whether the response carries a 2xx status.
func (r TransportResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header looks a response header up case-insensitively.
func (r TransportResponse) Header(key string) string {
	return headerValue(r.Headers, key)
}

type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RateLimitKey identifies one provider throttling bucket.
type RateLimitKey struct {
	Provider string
	Bucket   string
}

// RateLimitPolicy gates calls on throttling signals from earlier responses.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res TransportResponse) error
}
