package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/transport"
	"github.com/goliatone/go-paykit/webhooks"
)

var (
	_ gocmd.Commander[RefreshCredentialsMessage]    = (*RefreshCredentialsCommand)(nil)
	_ gocmd.Commander[InvalidateCredentialsMessage] = (*InvalidateCredentialsCommand)(nil)
	_ gocmd.Commander[HandleWebhookMessage]         = (*HandleWebhookCommand)(nil)
	_ gocmd.Commander[SendRequestMessage]           = (*SendRequestCommand)(nil)

	_ CredentialService = (*auth.CredentialManager)(nil)
	_ WebhookService    = (*webhooks.Engine)(nil)
	_ Requester         = (*transport.Client)(nil)
)
