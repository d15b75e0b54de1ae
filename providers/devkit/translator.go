package devkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/webhooks"
)

// SignatureHeader carries the hex HMAC of envelope payloads.
const SignatureHeader = "X-Paykit-Signature"

// DefaultVerifier is the verifier the devkit translators use when none is set.
var DefaultVerifier = webhooks.HMACVerifier{Header: SignatureHeader, Prefix: "sha256=", Encoding: webhooks.EncodingHex}

// StaticTranslator verifies the payload and returns a fixed set of events.
type StaticTranslator struct {
	Verifier webhooks.Verifier
	Events   []core.Event
	Err      error
}

func (t StaticTranslator) Translate(_ context.Context, payload webhooks.Payload, secret string) ([]core.Event, error) {
	if err := verifier(t.Verifier).Verify(payload, secret); err != nil {
		return nil, err
	}
	if t.Err != nil {
		return nil, t.Err
	}
	return append([]core.Event(nil), t.Events...), nil
}

// Envelope is the JSON shape EnvelopeTranslator understands. A body may hold a
// single envelope or an array of them.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created time.Time       `json:"created"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EnvelopeTranslator is a reference translator for signed canonical
// envelopes. Provider adapters can model their own translators on it.
type EnvelopeTranslator struct {
	Verifier webhooks.Verifier
	Now      func() time.Time
}

func (t EnvelopeTranslator) Translate(_ context.Context, payload webhooks.Payload, secret string) ([]core.Event, error) {
	if err := verifier(t.Verifier).Verify(payload, secret); err != nil {
		return nil, err
	}
	envelopes, err := decodeEnvelopes(payload.Body)
	if err != nil {
		return nil, err
	}
	events := make([]core.Event, 0, len(envelopes))
	for i, envelope := range envelopes {
		event, err := t.event(envelope)
		if err != nil {
			return nil, core.NewWebhookError(
				fmt.Sprintf("devkit: envelope %d: %v", i, err),
				core.WithCause(err),
				core.WithContext(map[string]any{"event_id": envelope.ID, "event_type": envelope.Type}),
			)
		}
		events = append(events, event)
	}
	return events, nil
}

func (t EnvelopeTranslator) event(envelope Envelope) (core.Event, error) {
	eventType, err := core.ParseEventType(envelope.Type)
	if err != nil {
		return core.Event{}, err
	}
	created := envelope.Created
	if created.IsZero() && t.Now != nil {
		created = t.Now()
	}
	var data core.Resource
	if raw := bytes.TrimSpace(envelope.Data); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		data = newResource(eventType.ResourceKind())
		if err := json.Unmarshal(raw, data); err != nil {
			return core.Event{}, err
		}
	}
	return core.NewEvent(eventType, data, core.WithEventID(envelope.ID), core.WithEventCreated(created))
}

// SignedPayload encodes envelopes and signs them with the default verifier.
func SignedPayload(secret string, envelopes ...Envelope) (webhooks.Payload, error) {
	var (
		body []byte
		err  error
	)
	if len(envelopes) == 1 {
		body, err = json.Marshal(envelopes[0])
	} else {
		body, err = json.Marshal(envelopes)
	}
	if err != nil {
		return webhooks.Payload{}, err
	}
	return webhooks.Payload{
		Body:    body,
		Headers: map[string][]string{SignatureHeader: {DefaultVerifier.Sign(body, secret)}},
	}, nil
}

func decodeEnvelopes(body []byte) ([]Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, core.NewWebhookError("devkit: payload body is empty")
	}
	if trimmed[0] == '[' {
		var envelopes []Envelope
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, core.NewWebhookError("devkit: decode envelopes", core.WithCause(err))
		}
		return envelopes, nil
	}
	var envelope Envelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, core.NewWebhookError("devkit: decode envelope", core.WithCause(err))
	}
	return []Envelope{envelope}, nil
}

func newResource(kind core.ResourceKind) core.Resource {
	switch kind {
	case core.ResourceCheckout:
		return &core.Checkout{}
	case core.ResourceCustomer:
		return &core.Customer{}
	case core.ResourceSubscription:
		return &core.Subscription{}
	case core.ResourcePayment:
		return &core.Payment{}
	case core.ResourceRefund:
		return &core.Refund{}
	default:
		return &core.Invoice{}
	}
}

func verifier(v webhooks.Verifier) webhooks.Verifier {
	if v == nil {
		return DefaultVerifier
	}
	return v
}

var (
	_ webhooks.Translator = StaticTranslator{}
	_ webhooks.Translator = EnvelopeTranslator{}
)
