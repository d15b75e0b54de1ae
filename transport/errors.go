package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paykit/core"
)

const responseSnippetLimit = 512

// Metadata keys carried by transport failures.
const (
	MetadataAttempts     = "attempts"
	MetadataHTTPMethod   = "http_method"
	MetadataURL          = "url"
	MetadataEndpoint     = "endpoint"
	MetadataResponseBody = "response_body"
	MetadataRetryAfterMS = "retry_after_ms"
)

type failureTarget struct {
	provider  string
	operation string
	method    string
	url       string
	endpoint  string
}

func (t failureTarget) options() []core.ErrorOption {
	return []core.ErrorOption{
		core.WithProvider(t.provider),
		core.WithMethod(t.operation),
	}
}

func (t failureTarget) metadata(class core.Classification) map[string]any {
	return map[string]any{
		core.MetadataClassification: string(class),
		MetadataHTTPMethod:          t.method,
		MetadataURL:                 t.url,
		MetadataEndpoint:            t.endpoint,
	}
}

// statusFailure turns a non-2xx response into a typed error whose kind follows
// the classification of the status.
func statusFailure(target failureTarget, res core.TransportResponse, retryAfter time.Duration) error {
	class := core.ClassifyStatus(res.StatusCode)
	message := fmt.Sprintf("transport: %s %s returned %d", target.method, target.endpoint, res.StatusCode)

	var err *goerrors.Error
	if class == core.ClassRateLimit {
		err = core.NewRateLimit(retryAfter, target.options()...)
		err.Message = message
	} else {
		err = core.NewError(class.Kind(), message, target.options()...)
	}
	metadata := target.metadata(class)
	metadata[core.MetadataStatusCode] = res.StatusCode
	if snippet := responseSnippet(res.Body); snippet != "" {
		metadata[MetadataResponseBody] = snippet
	}
	if retryAfter > 0 {
		metadata[MetadataRetryAfterMS] = retryAfter.Milliseconds()
	}
	err.WithMetadata(metadata)
	return err
}

// exchangeFailure wraps an error raised before any response was read. Errors
// that already carry a kind keep it and gain the request target.
func exchangeFailure(target failureTarget, cause error) error {
	class := core.ClassifyError(cause)
	if core.KindOf(cause) != "" {
		return annotate(cause, target.metadata(class), false)
	}
	err := core.NewError(
		class.Kind(),
		fmt.Sprintf("transport: %s %s failed: %v", target.method, target.endpoint, cause),
		append(target.options(), core.WithCause(cause))...,
	)
	err.WithMetadata(target.metadata(class))
	return err
}

// annotateAttempts records the attempt count on a failure built by this call.
func annotateAttempts(err error, attempts int) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		rich.WithMetadata(map[string]any{MetadataAttempts: attempts})
	}
	return err
}

// annotate returns a new envelope of the same kind wrapping err, carrying the
// merged metadata. err itself is never modified: adapters and the credential
// manager may hand the same value to many callers. Existing keys are kept
// unless overwrite is set.
func annotate(err error, metadata map[string]any, overwrite bool) error {
	var rich *goerrors.Error
	if err == nil || !goerrors.As(err, &rich) || rich == nil {
		return err
	}
	merged := make(map[string]any, len(rich.Metadata)+len(metadata))
	for key, value := range rich.Metadata {
		merged[key] = value
	}
	for key, value := range metadata {
		if _, exists := merged[key]; exists && !overwrite {
			continue
		}
		merged[key] = value
	}

	message := rich.Message
	if top, ok := err.(*goerrors.Error); !ok || top != rich {
		message = err.Error()
	}
	envelope := core.NewError(core.KindOf(err), message, core.WithCause(err))
	if rich.Code > 0 {
		envelope.Code = rich.Code
	}
	envelope.Metadata = merged
	return envelope
}

// AttemptsOf reports how many attempts produced err, or 0 when unknown.
func AttemptsOf(err error) int {
	if value, ok := core.ErrorMetadata(err)[MetadataAttempts].(int); ok {
		return value
	}
	return 0
}

// retryAfterOf reads the wait hint a typed failure carries.
func retryAfterOf(err error) time.Duration {
	switch value := core.ErrorMetadata(err)[MetadataRetryAfterMS].(type) {
	case int64:
		return time.Duration(value) * time.Millisecond
	case int:
		return time.Duration(value) * time.Millisecond
	}
	return 0
}

// StatusCodeOf returns the upstream status recorded on a transport failure.
func StatusCodeOf(err error) int {
	if value, ok := core.ErrorMetadata(err)[core.MetadataStatusCode].(int); ok {
		return value
	}
	return 0
}

func responseSnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > responseSnippetLimit {
		body = body[:responseSnippetLimit]
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter reads a Retry-After header given as seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
