package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	goerrors "github.com/goliatone/go-errors"
)

// Classification names why a call failed, independent of the provider.
type Classification string

const (
	ClassRateLimit           Classification = "rate_limit"
	ClassConnection          Classification = "connection"
	ClassTimeout             Classification = "timeout"
	ClassUnauthorized        Classification = "unauthorized"
	ClassForbidden           Classification = "forbidden"
	ClassNotFound            Classification = "not_found"
	ClassInternalServerError Classification = "internal_server_error"
	ClassBadGateway          Classification = "bad_gateway"
	ClassServiceUnavailable  Classification = "service_unavailable"
	ClassGatewayTimeout      Classification = "gateway_timeout"
	ClassUnknown             Classification = "unknown"
)

// Metadata keys transport failures carry so classification survives wrapping.
const (
	MetadataStatusCode     = "status_code"
	MetadataClassification = "classification"
)

func AllClassifications() []Classification {
	return []Classification{
		ClassRateLimit,
		ClassConnection,
		ClassTimeout,
		ClassUnauthorized,
		ClassForbidden,
		ClassNotFound,
		ClassInternalServerError,
		ClassBadGateway,
		ClassServiceUnavailable,
		ClassGatewayTimeout,
		ClassUnknown,
	}
}

func (c Classification) Valid() bool {
	for _, known := range AllClassifications() {
		if c == known {
			return true
		}
	}
	return false
}

// Kind maps a classification onto the error taxonomy.
func (c Classification) Kind() ErrorKind {
	switch c {
	case ClassRateLimit:
		return KindRateLimit
	case ClassUnauthorized, ClassForbidden:
		return KindAuthentication
	case ClassNotFound:
		return KindResourceNotFound
	default:
		return KindOperationFailed
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify returns exactly one classification for any input and never panics.
func Classify(value any) (class Classification) {
	defer func() {
		if recover() != nil {
			class = ClassUnknown
		}
	}()

	switch typed := value.(type) {
	case nil:
		return ClassUnknown
	case Classification:
		if typed.Valid() {
			return typed
		}
		return ClassUnknown
	case int:
		return ClassifyStatus(typed)
	case string:
		return classifyMessage(typed)
	case *http.Response:
		if typed == nil {
			return ClassUnknown
		}
		return ClassifyStatus(typed.StatusCode)
	case error:
		return ClassifyError(typed)
	default:
		return ClassUnknown
	}
}

// ClassifyStatus maps an HTTP status code to a classification.
func ClassifyStatus(code int) Classification {
	switch code {
	case http.StatusTooManyRequests:
		return ClassRateLimit
	case http.StatusUnauthorized:
		return ClassUnauthorized
	case http.StatusForbidden:
		return ClassForbidden
	case http.StatusNotFound:
		return ClassNotFound
	case http.StatusRequestTimeout:
		return ClassTimeout
	case http.StatusInternalServerError:
		return ClassInternalServerError
	case http.StatusBadGateway:
		return ClassBadGateway
	case http.StatusServiceUnavailable:
		return ClassServiceUnavailable
	case http.StatusGatewayTimeout:
		return ClassGatewayTimeout
	}
	if code >= 500 && code <= 599 {
		return ClassInternalServerError
	}
	return ClassUnknown
}

// ClassifyError classifies a failure. An explicit status wins over an attached
// classification, then the error kind, then typed network failures and message
// heuristics.
func ClassifyError(err error) (class Classification) {
	defer func() {
		if recover() != nil {
			class = ClassUnknown
		}
	}()
	if err == nil {
		return ClassUnknown
	}

	if code, ok := statusFromError(err); ok {
		if class := ClassifyStatus(code); class != ClassUnknown {
			return class
		}
	}
	if class, ok := attachedClassification(err); ok {
		return class
	}
	switch KindOf(err) {
	case KindRateLimit:
		return ClassRateLimit
	case KindAuthentication:
		return ClassUnauthorized
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE):
		return ClassConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassConnection
	}

	return classifyMessage(err.Error())
}

func statusFromError(err error) (int, bool) {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		switch value := rich.Metadata[MetadataStatusCode].(type) {
		case int:
			return value, value > 0
		case int64:
			return int(value), value > 0
		case float64:
			return int(value), value > 0
		case string:
			parsed, parseErr := strconv.Atoi(strings.TrimSpace(value))
			return parsed, parseErr == nil && parsed > 0
		}
	}
	var coder StatusCoder
	if errors.As(err, &coder) && coder != nil {
		// An envelope's own code is the kind status, not an upstream status.
		if _, envelope := any(coder).(*goerrors.Error); envelope {
			return 0, false
		}
		if code := coder.StatusCode(); code > 0 {
			return code, true
		}
	}
	return 0, false
}

func attachedClassification(err error) (Classification, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return "", false
	}
	var class Classification
	switch value := rich.Metadata[MetadataClassification].(type) {
	case Classification:
		class = value
	case string:
		class = Classification(strings.TrimSpace(value))
	}
	if class == "" || class == ClassUnknown || !class.Valid() {
		return "", false
	}
	return class, true
}

var connectionMarkers = []string{
	"connection refused",
	"connection reset",
	"econnrefused",
	"econnreset",
	"no such host",
	"enotfound",
	"dns",
	"broken pipe",
	"network is unreachable",
	"unexpected eof",
	"socket hang up",
}

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"etimedout",
	"abort",
	"canceled",
	"cancelled",
}

func classifyMessage(message string) Classification {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return ClassUnknown
	}
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return ClassConnection
		}
	}
	for _, marker := range timeoutMarkers {
		if strings.Contains(msg, marker) {
			return ClassTimeout
		}
	}
	return ClassUnknown
}
