package command

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/webhooks"
)

const (
	TypeRefreshCredentials    = "paykit.command.credentials.refresh"
	TypeInvalidateCredentials = "paykit.command.credentials.invalidate"
	TypeHandleWebhook         = "paykit.command.webhook.handle"
	TypeSendRequest           = "paykit.command.request.send"
)

var messageValidator = validator.New(validator.WithRequiredStructEnabled())

// RefreshCredentialsMessage forces a new token exchange.
type RefreshCredentialsMessage struct {
	Reason string
}

func (RefreshCredentialsMessage) Type() string { return TypeRefreshCredentials }

type InvalidateCredentialsMessage struct {
	Reason string
}

func (InvalidateCredentialsMessage) Type() string { return TypeInvalidateCredentials }

type HandleWebhookMessage struct {
	Payload webhooks.Payload
}

func (HandleWebhookMessage) Type() string { return TypeHandleWebhook }

func (m HandleWebhookMessage) Validate() error {
	if len(m.Payload.Body) == 0 {
		return commandValidationError("payload.body", "webhook body is required")
	}
	return nil
}

// SendRequestMessage describes one provider API call.
type SendRequestMessage struct {
	Method         string `validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Endpoint       string `validate:"required"`
	Headers        map[string]string
	Query          map[string]string
	Body           any
	IdempotencyKey string
	Bucket         string
	Operation      string
}

func (SendRequestMessage) Type() string { return TypeSendRequest }

func (m SendRequestMessage) Validate() error {
	m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
	m.Endpoint = strings.TrimSpace(m.Endpoint)
	if err := messageValidator.Struct(m); err != nil {
		return core.FromValidation(err, core.WithMethod(TypeSendRequest))
	}
	if m.Body != nil && m.Method == http.MethodGet {
		return commandInvalidInputError("command: GET requests cannot carry a body")
	}
	return nil
}
