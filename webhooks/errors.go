package webhooks

import (
	"fmt"

	"github.com/goliatone/go-paykit/core"
)

func webhookError(provider string, message string, cause error, context map[string]any) error {
	return core.NewWebhookError(
		message,
		core.WithProvider(provider),
		core.WithMethod("handle"),
		core.WithCause(cause),
		core.WithContext(context),
	)
}

func configurationError(provider string, method string, message string) error {
	return core.NewConfiguration(message, core.WithProvider(provider), core.WithMethod(method))
}

// handlerError keeps typed handler failures and wraps the rest with the event.
func handlerError(provider string, event core.Event, err error) error {
	if err == nil || core.KindOf(err) != "" {
		return err
	}
	return core.NewError(
		core.KindOperationFailed,
		fmt.Sprintf("webhooks: %s handler failed: %v", event.Type, err),
		core.WithProvider(provider),
		core.WithMethod("handle"),
		core.WithCause(err),
		core.WithContext(map[string]any{"event_id": event.ID, "event_type": string(event.Type)}),
	)
}

func panicError(provider string, event core.Event, recovered any) error {
	return core.NewError(
		core.KindOperationFailed,
		fmt.Sprintf("webhooks: %s handler panicked: %v", event.Type, recovered),
		core.WithProvider(provider),
		core.WithMethod("handle"),
		core.WithContext(map[string]any{"event_id": event.ID, "event_type": string(event.Type)}),
	)
}
