package core

import (
	"testing"
	"time"
)

func TestNewEventDefaultsAndValidation(t *testing.T) {
	event, err := NewEvent(EventPaymentCreated, &Payment{ID: "pay_1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if event.ID == "" || event.Created.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %#v", event)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	event, err = NewEvent(EventRefundCreated, &Refund{ID: "re_1"}, WithEventID(" evt_1 "), WithEventCreated(created))
	if err != nil {
		t.Fatalf("new event with options: %v", err)
	}
	if event.ID != "evt_1" || event.Created.Location() != time.UTC || !event.Created.Equal(created) {
		t.Fatalf("expected trimmed id and UTC timestamp, got %#v", event)
	}
}

func TestEventValidateRejectsMismatchedResource(t *testing.T) {
	_, err := NewEvent(EventPaymentCreated, &Customer{ID: "cus_1"})
	if !IsKind(err, KindWebhook) {
		t.Fatalf("expected webhook error for mismatched data, got %v", err)
	}
}

func TestEventValidateAllowsMissingData(t *testing.T) {
	var payment *Payment
	for _, data := range []Resource{nil, payment} {
		if _, err := NewEvent(EventCustomerDeleted, data); err != nil {
			t.Fatalf("expected nil data to be accepted, got %v", err)
		}
	}
}

func TestEventValidateEnvelope(t *testing.T) {
	cases := []Event{
		{ID: "evt_1", Type: EventType("payment.exploded"), Created: time.Now()},
		{Type: EventPaymentCreated, Created: time.Now()},
		{ID: "evt_1", Type: EventPaymentCreated},
	}
	for _, event := range cases {
		if err := event.Validate(); !IsKind(err, KindWebhook) {
			t.Fatalf("expected webhook error for %#v, got %v", event, err)
		}
	}
}

func TestParseEventType(t *testing.T) {
	eventType, err := ParseEventType(" Invoice.Generated ")
	if err != nil || eventType != EventInvoiceGenerated {
		t.Fatalf("expected invoice.generated, got %q err=%v", eventType, err)
	}
	if _, err := ParseEventType("invoice.voided"); !IsKind(err, KindWebhook) {
		t.Fatalf("expected webhook error for unknown type, got %v", err)
	}
	for _, known := range AllEventTypes() {
		if known.ResourceKind() == "" {
			t.Fatalf("expected resource kind for %q", known)
		}
	}
}
