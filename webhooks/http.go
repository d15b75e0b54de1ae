package webhooks

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-paykit/core"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// PayloadFromRequest reads an inbound request into a Payload. The body is read
// up to maxBytes; larger bodies are rejected.
func PayloadFromRequest(r *http.Request, maxBytes int64) (Payload, error) {
	if r == nil {
		return Payload{}, core.NewWebhookError("webhooks: request is required", core.WithMethod("payload"))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	var body []byte
	if r.Body != nil {
		defer r.Body.Close()
		read, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		if err != nil {
			return Payload{}, core.NewWebhookError("webhooks: read request body", core.WithCause(err), core.WithMethod("payload"))
		}
		if int64(len(read)) > maxBytes {
			return Payload{}, core.NewWebhookError(
				fmt.Sprintf("webhooks: request body exceeds %d bytes", maxBytes),
				core.WithMethod("payload"),
			)
		}
		body = read
	}

	headers := make(map[string][]string, len(r.Header))
	for key, values := range r.Header {
		headers[key] = append([]string(nil), values...)
	}
	return Payload{Body: body, Headers: headers, FullURL: fullURL(r)}, nil
}

func fullURL(r *http.Request) string {
	if r.URL != nil && r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); forwarded != "" {
		scheme = strings.ToLower(forwarded)
	}
	host := r.Host
	if forwarded := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Host"), ",")[0]); forwarded != "" {
		host = forwarded
	}
	requestURI := "/"
	if r.URL != nil {
		requestURI = r.URL.RequestURI()
	}
	return scheme + "://" + host + requestURI
}

// StatusCode maps the result of Handle to the status a host should answer.
func StatusCode(err error) int {
	return core.HTTPStatus(err)
}
