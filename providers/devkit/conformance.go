package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/webhooks"
)

// ValidateTransportAdapterConformance performs one exchange and checks that a
// successful call reports a status code.
func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	response, err := adapter.Do(ctx, request)
	if err != nil {
		return err
	}
	if response.StatusCode <= 0 {
		return fmt.Errorf("devkit: transport adapter returned no status code")
	}
	return nil
}

// ValidateTranslatorConformance checks a provider translator against a payload
// correctly signed with secret: the payload must yield valid events, while a
// wrong secret or a tampered body must be rejected as webhook errors.
func ValidateTranslatorConformance(
	ctx context.Context,
	translator webhooks.Translator,
	payload webhooks.Payload,
	secret string,
) error {
	if translator == nil {
		return fmt.Errorf("devkit: translator is required")
	}
	events, err := translator.Translate(ctx, payload, secret)
	if err != nil {
		return fmt.Errorf("devkit: signed payload rejected: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("devkit: signed payload produced no events")
	}
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("devkit: event %d is invalid: %w", i, err)
		}
	}

	if _, err := translator.Translate(ctx, payload, secret+"-wrong"); !core.IsKind(err, core.KindWebhook) {
		return fmt.Errorf("devkit: wrong secret should fail with a webhook error, got %v", err)
	}

	tampered := payload
	tampered.Body = append(append([]byte(nil), payload.Body...), ' ')
	if _, err := translator.Translate(ctx, tampered, secret); !core.IsKind(err, core.KindWebhook) {
		return fmt.Errorf("devkit: tampered body should fail with a webhook error, got %v", err)
	}
	return nil
}

// ValidateDeduperConformance checks claim exclusivity and release on failure.
func ValidateDeduperConformance(
	ctx context.Context,
	deduper webhooks.Deduper,
	eventID string,
) error {
	if deduper == nil {
		return fmt.Errorf("devkit: deduper is required")
	}
	claimID, accepted, err := deduper.Claim(ctx, eventID, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || strings.TrimSpace(claimID) == "" {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := deduper.Claim(ctx, eventID, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: second claim should not be accepted while in flight")
	}
	if err := deduper.Fail(ctx, claimID, fmt.Errorf("handler failed"), time.Time{}); err != nil {
		return err
	}
	retryID, accepted, err := deduper.Claim(ctx, eventID, time.Minute)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("devkit: failed claim should be released for redelivery")
	}
	if err := deduper.Complete(ctx, retryID); err != nil {
		return err
	}
	if _, accepted, err := deduper.Claim(ctx, eventID, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: completed claim should block duplicates")
	}
	return nil
}
