package gocommand

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-paykit"
	paykitcommand "github.com/goliatone/go-paykit/command"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/providers/devkit"
	paykitquery "github.com/goliatone/go-paykit/query"
	"github.com/goliatone/go-paykit/transport"
)

type okMessage struct{}

func (okMessage) Type() string { return "paykit.test.ok" }

type untypedMessage struct{}

func (untypedMessage) Type() string { return "" }

type rejectingMessage struct{}

func (rejectingMessage) Type() string { return "paykit.test.reject" }

func (rejectingMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "paykit.test.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(untypedMessage{}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if err := ValidateMessageContract(rejectingMessage{}); err == nil {
		t.Fatalf("expected Validate failure to surface")
	}
	if err := ValidateMessageContract(paykitcommand.SendRequestMessage{Method: "TRACE", Endpoint: "/v1"}); err == nil {
		t.Fatalf("expected send request validation to surface")
	}
}

func TestQueueResolverMirrorsCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get("paykit.test.queue"); !ok {
		t.Fatalf("expected command to be mirrored into the queue registry")
	}
}

func TestRegisterKitDispatchesOperations(t *testing.T) {
	fake := devkit.NewFakeTransportAdapter(
		devkit.JSON(http.StatusCreated, `{"id":"re_1"}`),
		devkit.JSON(http.StatusOK, `{"id":"pay_1"}`),
	)
	var handled []core.EventType
	kit, err := paykit.Setup(paykit.Config{
		Provider: "acme",
		BaseURL:  "https://api.acme.test",
		Webhook:  paykit.WebhookConfig{Secret: "whsec", DispatchMode: core.DispatchModeSequential},
	},
		paykit.WithTransportAdapter(fake),
		paykit.WithTranslator(devkit.EnvelopeTranslator{}),
	)
	if err != nil {
		t.Fatalf("setup kit: %v", err)
	}
	if err := kit.Webhooks().On(core.EventPaymentCreated, func(_ context.Context, event core.Event) error {
		handled = append(handled, event.Type)
		return nil
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	adapter := NewRegistryAdapter(nil)
	subscriptions, err := RegisterKit(adapter, kit)
	if err != nil {
		t.Fatalf("register kit: %v", err)
	}
	t.Cleanup(func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	})
	if len(subscriptions) != 3 {
		t.Fatalf("expected credential operations to be skipped, got %d subscriptions", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), paykitcommand.SendRequestMessage{
		Method:   http.MethodPost,
		Endpoint: "/v1/refunds",
		Body:     map[string]any{"payment": "pay_1"},
	}); err != nil {
		t.Fatalf("dispatch send request: %v", err)
	}

	res, err := Query[paykitquery.FetchResourceMessage, transport.Response](context.Background(), paykitquery.FetchResourceMessage{
		Endpoint: "/v1/payments/pay_1",
	})
	if err != nil {
		t.Fatalf("query fetch resource: %v", err)
	}
	if string(res.Body) != `{"id":"pay_1"}` {
		t.Fatalf("unexpected body %q", res.Body)
	}
	if fake.Calls() != 2 {
		t.Fatalf("expected two provider calls, got %d", fake.Calls())
	}

	payload, err := devkit.SignedPayload("whsec", devkit.Envelope{
		ID:   "evt_1",
		Type: string(core.EventPaymentCreated),
		Data: []byte(`{"id":"pay_1","amount":1200,"currency":"usd","status":"succeeded"}`),
	})
	if err != nil {
		t.Fatalf("signed payload: %v", err)
	}
	if err := Dispatch(context.Background(), paykitcommand.HandleWebhookMessage{Payload: payload}); err != nil {
		t.Fatalf("dispatch webhook: %v", err)
	}
	if len(handled) != 1 || handled[0] != core.EventPaymentCreated {
		t.Fatalf("expected webhook event to be handled, got %v", handled)
	}
}

func TestRegisterKitRequiresKit(t *testing.T) {
	if _, err := RegisterKit(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected nil kit to be rejected")
	}
	var adapter *RegistryAdapter
	if err := adapter.Initialize(); err == nil {
		t.Fatalf("expected nil adapter to fail initialization")
	}
}
