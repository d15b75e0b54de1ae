package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/transport"
	"github.com/goliatone/go-paykit/webhooks"
)

type CredentialService interface {
	Token(ctx context.Context) (auth.CachedToken, error)
	Invalidate()
}

type WebhookService interface {
	Handle(ctx context.Context, payload webhooks.Payload) error
}

type Requester interface {
	Do(ctx context.Context, method string, endpoint string, opts ...transport.CallOption) core.Result[transport.Response]
}

type RefreshCredentialsCommand struct {
	credentials CredentialService
}

func NewRefreshCredentialsCommand(credentials CredentialService) *RefreshCredentialsCommand {
	return &RefreshCredentialsCommand{credentials: credentials}
}

// Execute drops the cached token and exchanges a new one. The fresh token is
// stored in the result collector when one is attached to ctx.
func (c *RefreshCredentialsCommand) Execute(ctx context.Context, _ RefreshCredentialsMessage) error {
	if c == nil || c.credentials == nil {
		return commandDependencyError("command: credential service is required")
	}
	c.credentials.Invalidate()
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type InvalidateCredentialsCommand struct {
	credentials CredentialService
}

func NewInvalidateCredentialsCommand(credentials CredentialService) *InvalidateCredentialsCommand {
	return &InvalidateCredentialsCommand{credentials: credentials}
}

func (c *InvalidateCredentialsCommand) Execute(_ context.Context, _ InvalidateCredentialsMessage) error {
	if c == nil || c.credentials == nil {
		return commandDependencyError("command: credential service is required")
	}
	c.credentials.Invalidate()
	return nil
}

type HandleWebhookCommand struct {
	webhooks WebhookService
}

func NewHandleWebhookCommand(webhooks WebhookService) *HandleWebhookCommand {
	return &HandleWebhookCommand{webhooks: webhooks}
}

func (c *HandleWebhookCommand) Execute(ctx context.Context, msg HandleWebhookMessage) error {
	if c == nil || c.webhooks == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.webhooks.Handle(ctx, msg.Payload)
}

type SendRequestCommand struct {
	requester Requester
}

func NewSendRequestCommand(requester Requester) *SendRequestCommand {
	return &SendRequestCommand{requester: requester}
}

func (c *SendRequestCommand) Execute(ctx context.Context, msg SendRequestMessage) error {
	if c == nil || c.requester == nil {
		return commandDependencyError("command: requester is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	res := c.requester.Do(ctx, strings.ToUpper(strings.TrimSpace(msg.Method)), msg.Endpoint, requestOptions(msg)...)
	if !res.OK() {
		return res.Err()
	}
	storeResult(ctx, res.Value())
	return nil
}

func requestOptions(msg SendRequestMessage) []transport.CallOption {
	var opts []transport.CallOption
	if len(msg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(msg.Headers))
	}
	if len(msg.Query) > 0 {
		opts = append(opts, transport.WithQuery(msg.Query))
	}
	if msg.Body != nil {
		opts = append(opts, transport.WithBody(msg.Body))
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		opts = append(opts, transport.WithIdempotencyKey(key))
	}
	if bucket := strings.TrimSpace(msg.Bucket); bucket != "" {
		opts = append(opts, transport.WithRateLimitBucket(bucket))
	}
	if operation := strings.TrimSpace(msg.Operation); operation != "" {
		opts = append(opts, transport.WithOperation(operation))
	}
	return opts
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
