package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
)

type ErrorKind string

const (
	KindNotImplemented       ErrorKind = "not_implemented"
	KindProviderNotSupported ErrorKind = "provider_not_supported"
	KindValidation           ErrorKind = "validation"
	KindResourceNotFound     ErrorKind = "resource_not_found"
	KindWebhook              ErrorKind = "webhook"
	KindConfiguration        ErrorKind = "configuration"
	KindOperationFailed      ErrorKind = "operation_failed"
	KindAuthentication       ErrorKind = "authentication"
	KindRateLimit            ErrorKind = "rate_limit"
	KindInvalidType          ErrorKind = "invalid_type"
	KindConstraintViolation  ErrorKind = "constraint_violation"
)

const (
	ErrorTextNotImplemented       = "PAYKIT_NOT_IMPLEMENTED"
	ErrorTextProviderNotSupported = "PAYKIT_PROVIDER_NOT_SUPPORTED"
	ErrorTextValidation           = "PAYKIT_VALIDATION"
	ErrorTextResourceNotFound     = "PAYKIT_RESOURCE_NOT_FOUND"
	ErrorTextWebhook              = "PAYKIT_WEBHOOK"
	ErrorTextConfiguration        = "PAYKIT_CONFIGURATION"
	ErrorTextOperationFailed      = "PAYKIT_OPERATION_FAILED"
	ErrorTextAuthentication       = "PAYKIT_AUTHENTICATION"
	ErrorTextRateLimit            = "PAYKIT_RATE_LIMIT"
	ErrorTextInvalidType          = "PAYKIT_INVALID_TYPE"
	ErrorTextConstraintViolation  = "PAYKIT_CONSTRAINT_VIOLATION"
)

type kindSpec struct {
	category goerrors.Category
	status   int
	textCode string
}

var kindSpecs = map[ErrorKind]kindSpec{
	KindNotImplemented:       {goerrors.CategoryOperation, http.StatusNotImplemented, ErrorTextNotImplemented},
	KindProviderNotSupported: {goerrors.CategoryOperation, http.StatusNotImplemented, ErrorTextProviderNotSupported},
	KindValidation:           {goerrors.CategoryValidation, http.StatusBadRequest, ErrorTextValidation},
	KindResourceNotFound:     {goerrors.CategoryNotFound, http.StatusNotFound, ErrorTextResourceNotFound},
	KindWebhook:              {goerrors.CategoryBadInput, http.StatusBadRequest, ErrorTextWebhook},
	KindConfiguration:        {goerrors.CategoryInternal, http.StatusInternalServerError, ErrorTextConfiguration},
	KindOperationFailed:      {goerrors.CategoryOperation, http.StatusInternalServerError, ErrorTextOperationFailed},
	KindAuthentication:       {goerrors.CategoryAuth, http.StatusUnauthorized, ErrorTextAuthentication},
	KindRateLimit:            {goerrors.CategoryRateLimit, http.StatusTooManyRequests, ErrorTextRateLimit},
	KindInvalidType:          {goerrors.CategoryBadInput, http.StatusBadRequest, ErrorTextInvalidType},
	KindConstraintViolation:  {goerrors.CategoryConflict, http.StatusConflict, ErrorTextConstraintViolation},
}

// StatusCode returns the HTTP status fixed for the kind.
func (k ErrorKind) StatusCode() int {
	if spec, ok := kindSpecs[k]; ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

func (k ErrorKind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

type errorFields struct {
	provider string
	method   string
	context  map[string]any
	cause    error
}

type ErrorOption func(*errorFields)

func WithProvider(provider string) ErrorOption {
	return func(f *errorFields) {
		f.provider = strings.TrimSpace(provider)
	}
}

func WithMethod(method string) ErrorOption {
	return func(f *errorFields) {
		f.method = strings.TrimSpace(method)
	}
}

// WithContext merges structured diagnostic context into the error.
func WithContext(context map[string]any) ErrorOption {
	return func(f *errorFields) {
		if len(context) == 0 {
			return
		}
		if f.context == nil {
			f.context = make(map[string]any, len(context))
		}
		for key, value := range context {
			f.context[key] = value
		}
	}
}

func WithCause(cause error) ErrorOption {
	return func(f *errorFields) {
		f.cause = cause
	}
}

// NewError builds a typed error of the given kind.
func NewError(kind ErrorKind, message string, opts ...ErrorOption) *goerrors.Error {
	spec, ok := kindSpecs[kind]
	if !ok {
		kind = KindOperationFailed
		spec = kindSpecs[KindOperationFailed]
	}
	fields := errorFields{}
	for _, opt := range opts {
		if opt != nil {
			opt(&fields)
		}
	}

	var err *goerrors.Error
	if fields.cause != nil {
		err = goerrors.Wrap(fields.cause, spec.category, message)
	}
	if err == nil {
		err = goerrors.New(message, spec.category)
	}
	// Wrap keeps the category of a wrapped go-errors source; the kind decides here.
	err.Category = spec.category
	err.Message = message
	err = err.WithCode(spec.status).WithTextCode(spec.textCode)

	metadata := map[string]any{"kind": string(kind)}
	if fields.provider != "" {
		metadata["provider"] = fields.provider
	}
	if fields.method != "" {
		metadata["method"] = fields.method
	}
	if len(fields.context) > 0 {
		metadata["context"] = fields.context
	}
	err.WithMetadata(metadata)
	return err
}

func NewNotImplemented(method string, provider string) *goerrors.Error {
	return NewError(
		KindNotImplemented,
		fmt.Sprintf("%s is not implemented for provider %s", strings.TrimSpace(method), strings.TrimSpace(provider)),
		WithMethod(method),
		WithProvider(provider),
	)
}

func NewProviderNotSupported(method string, provider string) *goerrors.Error {
	return NewError(
		KindProviderNotSupported,
		fmt.Sprintf("provider %s does not support %s", strings.TrimSpace(provider), strings.TrimSpace(method)),
		WithMethod(method),
		WithProvider(provider),
	)
}

func NewValidation(message string, opts ...ErrorOption) *goerrors.Error {
	return NewError(KindValidation, message, opts...)
}

func NewResourceNotFound(resource string, id string, provider string) *goerrors.Error {
	return NewError(
		KindResourceNotFound,
		fmt.Sprintf("%s %q not found", strings.TrimSpace(resource), strings.TrimSpace(id)),
		WithProvider(provider),
		WithContext(map[string]any{"resource": strings.TrimSpace(resource), "id": strings.TrimSpace(id)}),
	)
}

func NewWebhookError(message string, opts ...ErrorOption) *goerrors.Error {
	return NewError(KindWebhook, message, opts...)
}

func NewConfiguration(message string, opts ...ErrorOption) *goerrors.Error {
	return NewError(KindConfiguration, message, opts...)
}

// NewOperationFailed reports a failed step of a provider operation.
func NewOperationFailed(method string, provider string, cause error) *goerrors.Error {
	message := fmt.Sprintf("%s failed", strings.TrimSpace(method))
	if provider = strings.TrimSpace(provider); provider != "" {
		message = fmt.Sprintf("%s failed for provider %s", strings.TrimSpace(method), provider)
	}
	return NewError(KindOperationFailed, message, WithMethod(method), WithProvider(provider), WithCause(cause))
}

func NewAuthentication(message string, opts ...ErrorOption) *goerrors.Error {
	return NewError(KindAuthentication, message, opts...)
}

func NewRateLimit(retryAfter time.Duration, opts ...ErrorOption) *goerrors.Error {
	message := "rate limit exceeded"
	if retryAfter > 0 {
		message = fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter)
		opts = append(opts, WithContext(map[string]any{"retry_after_ms": retryAfter.Milliseconds()}))
	}
	return NewError(KindRateLimit, message, opts...)
}

func NewInvalidType(expected string, actual any, opts ...ErrorOption) *goerrors.Error {
	opts = append(opts, WithContext(map[string]any{
		"expected": strings.TrimSpace(expected),
		"actual":   fmt.Sprintf("%T", actual),
	}))
	return NewError(KindInvalidType, fmt.Sprintf("expected %s, got %T", strings.TrimSpace(expected), actual), opts...)
}

func NewConstraintViolation(message string, opts ...ErrorOption) *goerrors.Error {
	return NewError(KindConstraintViolation, message, opts...)
}

// FieldIssue is one field-level validation failure.
type FieldIssue struct {
	Field   string
	Message string
}

type FieldIssues []FieldIssue

func (issues FieldIssues) Error() string {
	return flattenIssues(issues)
}

// FromValidation collapses a structured validation failure into a single
// validation error whose message lists every issue. The original error is kept
// as the cause.
func FromValidation(err error, opts ...ErrorOption) error {
	if err == nil {
		return nil
	}
	issues := validationIssues(err)
	message := "validation failed"
	if flat := flattenIssues(issues); flat != "" {
		message = message + ": " + flat
	}
	fieldNames := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Field != "" {
			fieldNames = append(fieldNames, issue.Field)
		}
	}
	opts = append(opts, WithCause(err))
	if len(fieldNames) > 0 {
		opts = append(opts, WithContext(map[string]any{"fields": fieldNames}))
	}
	return NewValidation(message, opts...)
}

func validationIssues(err error) FieldIssues {
	var fieldIssues FieldIssues
	if errors.As(err, &fieldIssues) {
		return fieldIssues
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		out := make(FieldIssues, 0, len(validationErrs))
		for _, fe := range validationErrs {
			out = append(out, FieldIssue{
				Field:   validatorFieldName(fe),
				Message: validatorMessage(fe),
			})
		}
		return out
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && len(rich.ValidationErrors) > 0 {
		out := make(FieldIssues, 0, len(rich.ValidationErrors))
		for _, fe := range rich.ValidationErrors {
			out = append(out, FieldIssue{Field: fe.Field, Message: fe.Message})
		}
		return out
	}

	return FieldIssues{{Message: err.Error()}}
}

func validatorFieldName(fe validator.FieldError) string {
	namespace := fe.Namespace()
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	if namespace == "" {
		namespace = fe.Field()
	}
	return namespace
}

func validatorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url", "http_url":
		return "must be a valid url"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

func flattenIssues(issues FieldIssues) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		field := strings.TrimSpace(issue.Field)
		message := strings.TrimSpace(issue.Message)
		switch {
		case field != "" && message != "":
			parts = append(parts, field+": "+message)
		case message != "":
			parts = append(parts, message)
		case field != "":
			parts = append(parts, field+": invalid")
		}
	}
	return strings.Join(parts, "; ")
}

var kindsByTextCode = func() map[string]ErrorKind {
	out := make(map[string]ErrorKind, len(kindSpecs))
	for kind, spec := range kindSpecs {
		out[spec.textCode] = kind
	}
	return out
}()

// KindOf reports the kind of a typed error, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return ""
	}
	return kindsByTextCode[strings.TrimSpace(rich.TextCode)]
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus returns the status a host should answer with for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.Code > 0 {
		return rich.Code
	}
	if kind := KindOf(err); kind != "" {
		return kind.StatusCode()
	}
	return http.StatusInternalServerError
}

// ErrorMetadata returns a copy of the metadata attached to a typed error.
func ErrorMetadata(err error) map[string]any {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil || len(rich.Metadata) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(rich.Metadata))
	for key, value := range rich.Metadata {
		out[key] = value
	}
	return out
}
