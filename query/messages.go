package query

import (
	"strings"

	"github.com/goliatone/go-paykit/core"
)

const (
	TypeAuthHeaders      = "paykit.query.credentials.headers"
	TypeCredentialStatus = "paykit.query.credentials.status"
	TypeFetchResource    = "paykit.query.resource.fetch"
)

type AuthHeadersMessage struct{}

func (AuthHeadersMessage) Type() string { return TypeAuthHeaders }

type CredentialStatusMessage struct{}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

// FetchResourceMessage reads one provider resource with GET.
type FetchResourceMessage struct {
	Endpoint string
	Query    map[string]string
	Bucket   string
}

func (FetchResourceMessage) Type() string { return TypeFetchResource }

func (m FetchResourceMessage) Validate() error {
	if strings.TrimSpace(m.Endpoint) == "" {
		return core.NewValidation("query: endpoint is required",
			core.WithMethod(TypeFetchResource),
			core.WithContext(map[string]any{"fields": []string{"endpoint"}}),
		)
	}
	return nil
}
