package devkit

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/goliatone/go-paykit/core"
)

// TransportScript is one scripted adapter outcome.
type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// Status scripts a bare response with the given status code.
func Status(code int) TransportScript {
	return TransportScript{Response: core.TransportResponse{StatusCode: code, Headers: map[string]string{}}}
}

// JSON scripts a response with a JSON body.
func JSON(code int, body string) TransportScript {
	return TransportScript{Response: core.TransportResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}}
}

// Failure scripts a transport-level error with no response.
func Failure(err error) TransportScript {
	return TransportScript{Err: err}
}

// FakeTransportAdapter replays scripts in order and records every request.
// Once the scripts run out the last one repeats; with no scripts every call
// answers 200.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	scripts  []TransportScript
	requests []core.TransportRequest
}

func NewFakeTransportAdapter(scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (a *FakeTransportAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return core.TransportResponse{}, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneTransportRequest(req))
	index := len(a.requests) - 1
	if index < len(a.scripts) {
		script := a.scripts[index]
		return cloneTransportResponse(script.Response), script.Err
	}
	if len(a.scripts) > 0 {
		last := a.scripts[len(a.scripts)-1]
		return cloneTransportResponse(last.Response), last.Err
	}
	return core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{},
	}, nil
}

func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneTransportRequest(item))
	}
	return out
}

// Calls reports how many attempts reached the adapter.
func (a *FakeTransportAdapter) Calls() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := core.TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              map[string]string{},
		Query:                map[string]string{},
		Body:                 append([]byte(nil), in.Body...),
		Timeout:              in.Timeout,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Query {
		out.Query[key] = value
	}
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{
		StatusCode: in.StatusCode,
		Headers:    map[string]string{},
		Body:       append([]byte(nil), in.Body...),
		Metadata:   map[string]any{},
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
