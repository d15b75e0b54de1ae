package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of canonical business events.
type EventType string

const (
	EventCheckoutCreated      EventType = "checkout.created"
	EventCustomerCreated      EventType = "customer.created"
	EventCustomerUpdated      EventType = "customer.updated"
	EventCustomerDeleted      EventType = "customer.deleted"
	EventSubscriptionCreated  EventType = "subscription.created"
	EventSubscriptionUpdated  EventType = "subscription.updated"
	EventSubscriptionCanceled EventType = "subscription.canceled"
	EventPaymentCreated       EventType = "payment.created"
	EventPaymentUpdated       EventType = "payment.updated"
	EventPaymentCanceled      EventType = "payment.canceled"
	EventRefundCreated        EventType = "refund.created"
	EventInvoiceGenerated     EventType = "invoice.generated"
)

// ResourceKind names the canonical resource family an event carries.
type ResourceKind string

const (
	ResourceCheckout     ResourceKind = "checkout"
	ResourceCustomer     ResourceKind = "customer"
	ResourceSubscription ResourceKind = "subscription"
	ResourcePayment      ResourceKind = "payment"
	ResourceRefund       ResourceKind = "refund"
	ResourceInvoice      ResourceKind = "invoice"
)

var eventResourceKinds = map[EventType]ResourceKind{
	EventCheckoutCreated:      ResourceCheckout,
	EventCustomerCreated:      ResourceCustomer,
	EventCustomerUpdated:      ResourceCustomer,
	EventCustomerDeleted:      ResourceCustomer,
	EventSubscriptionCreated:  ResourceSubscription,
	EventSubscriptionUpdated:  ResourceSubscription,
	EventSubscriptionCanceled: ResourceSubscription,
	EventPaymentCreated:       ResourcePayment,
	EventPaymentUpdated:       ResourcePayment,
	EventPaymentCanceled:      ResourcePayment,
	EventRefundCreated:        ResourceRefund,
	EventInvoiceGenerated:     ResourceInvoice,
}

func AllEventTypes() []EventType {
	return []EventType{
		EventCheckoutCreated,
		EventCustomerCreated,
		EventCustomerUpdated,
		EventCustomerDeleted,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionCanceled,
		EventPaymentCreated,
		EventPaymentUpdated,
		EventPaymentCanceled,
		EventRefundCreated,
		EventInvoiceGenerated,
	}
}

func (t EventType) Valid() bool {
	_, ok := eventResourceKinds[t]
	return ok
}

// ResourceKind returns the resource family carried by events of this type.
func (t EventType) ResourceKind() ResourceKind {
	return eventResourceKinds[t]
}

func ParseEventType(raw string) (EventType, error) {
	candidate := EventType(strings.ToLower(strings.TrimSpace(raw)))
	if !candidate.Valid() {
		return "", NewWebhookError(
			fmt.Sprintf("unknown event type %q", strings.TrimSpace(raw)),
			WithContext(map[string]any{"event_type": strings.TrimSpace(raw)}),
		)
	}
	return candidate, nil
}

// Resource is implemented only by the canonical resource records below.
type Resource interface {
	ResourceKind() ResourceKind
	resource()
}

type Checkout struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	SessionType    string            `json:"session_type,omitempty"`
	PaymentURL     string            `json:"payment_url,omitempty"`
	ItemID         string            `json:"item_id,omitempty"`
	Quantity       int               `json:"quantity,omitempty"`
	Amount         int64             `json:"amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email,omitempty"`
	Name     string            `json:"name,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Subscription struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id,omitempty"`
	ItemID             string            `json:"item_id,omitempty"`
	Status             string            `json:"status,omitempty"`
	BillingInterval    string            `json:"billing_interval,omitempty"`
	Amount             int64             `json:"amount,omitempty"`
	Currency           string            `json:"currency,omitempty"`
	CurrentPeriodStart *time.Time        `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time        `json:"current_period_end,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type Payment struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customer_id,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	Status     string            `json:"status,omitempty"`
	Amount     int64             `json:"amount,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Refund struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id,omitempty"`
	Amount    int64             `json:"amount,omitempty"`
	Currency  string            `json:"currency,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type InvoiceLineItem struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

type Invoice struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	BillingMode    string            `json:"billing_mode,omitempty"`
	Status         string            `json:"status,omitempty"`
	AmountPaid     int64             `json:"amount_paid,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	LineItems      []InvoiceLineItem `json:"line_items,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (*Checkout) ResourceKind() ResourceKind     { return ResourceCheckout }
func (*Customer) ResourceKind() ResourceKind     { return ResourceCustomer }
func (*Subscription) ResourceKind() ResourceKind { return ResourceSubscription }
func (*Payment) ResourceKind() ResourceKind      { return ResourcePayment }
func (*Refund) ResourceKind() ResourceKind       { return ResourceRefund }
func (*Invoice) ResourceKind() ResourceKind      { return ResourceInvoice }

func (*Checkout) resource()     {}
func (*Customer) resource()     {}
func (*Subscription) resource() {}
func (*Payment) resource()      {}
func (*Refund) resource()       {}
func (*Invoice) resource()      {}

// Event is the provider-independent webhook envelope.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Created time.Time `json:"created"`
	Data    Resource  `json:"data"`
}

type EventOption func(*Event)

func WithEventID(id string) EventOption {
	return func(e *Event) {
		e.ID = strings.TrimSpace(id)
	}
}

func WithEventCreated(created time.Time) EventOption {
	return func(e *Event) {
		e.Created = created.UTC()
	}
}

// NewEvent builds a validated event. IDs default to a random UUID and the
// creation time to now.
func NewEvent(eventType EventType, data Resource, opts ...EventOption) (Event, error) {
	event := Event{
		Type: eventType,
		Data: data,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&event)
		}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Created.IsZero() {
		event.Created = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Validate checks the envelope and that Data belongs to the type's family.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return NewWebhookError(
			fmt.Sprintf("unknown event type %q", e.Type),
			WithContext(map[string]any{"event_id": e.ID, "event_type": string(e.Type)}),
		)
	}
	if strings.TrimSpace(e.ID) == "" {
		return NewWebhookError("event id is required", WithContext(map[string]any{"event_type": string(e.Type)}))
	}
	if e.Created.IsZero() {
		return NewWebhookError("event created time is required", WithContext(map[string]any{"event_id": e.ID}))
	}
	if isNilResource(e.Data) {
		return nil
	}
	if expected := e.Type.ResourceKind(); e.Data.ResourceKind() != expected {
		return NewWebhookError(
			fmt.Sprintf("event %s carries %s data, expected %s", e.Type, e.Data.ResourceKind(), expected),
			WithContext(map[string]any{"event_id": e.ID, "event_type": string(e.Type)}),
		)
	}
	return nil
}

func isNilResource(resource Resource) bool {
	switch typed := resource.(type) {
	case nil:
		return true
	case *Checkout:
		return typed == nil
	case *Customer:
		return typed == nil
	case *Subscription:
		return typed == nil
	case *Payment:
		return typed == nil
	case *Refund:
		return typed == nil
	case *Invoice:
		return typed == nil
	}
	return false
}
