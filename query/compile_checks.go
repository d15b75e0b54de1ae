package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/transport"
)

var (
	_ gocmd.Querier[AuthHeadersMessage, map[string]string]     = (*AuthHeadersQuery)(nil)
	_ gocmd.Querier[CredentialStatusMessage, CredentialStatus] = (*CredentialStatusQuery)(nil)
	_ gocmd.Querier[FetchResourceMessage, transport.Response]  = (*FetchResourceQuery)(nil)

	_ HeaderReader = (*auth.CredentialManager)(nil)
	_ TokenReader  = (*auth.CredentialManager)(nil)
	_ Getter       = (*transport.Client)(nil)
)
