// Package paykit is the resilience and normalization layer payment provider
// adapters are built on. Setup assembles a Transport, an optional Credential
// Manager and a webhook Engine from one Config.
package paykit

import (
	"github.com/goliatone/go-paykit/auth"
	"github.com/goliatone/go-paykit/core"
	"github.com/goliatone/go-paykit/transport"
	"github.com/goliatone/go-paykit/webhooks"
)

type Config = core.Config
type RetryConfig = core.RetryConfig
type RateLimitConfig = core.RateLimitConfig
type CredentialsConfig = core.CredentialsConfig
type WebhookConfig = core.WebhookConfig

type Result[T any] = core.Result[T]

type ErrorKind = core.ErrorKind
type Classification = core.Classification

type Event = core.Event
type EventType = core.EventType
type Resource = core.Resource

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type MetricsRecorder = core.MetricsRecorder
type ConfigProvider = core.ConfigProvider
type OptionsResolver = core.OptionsResolver

type Transport = transport.Client
type CallOption = transport.CallOption
type RetryPolicy = transport.RetryPolicy

type CredentialManager = auth.CredentialManager
type ResponseAdapter = auth.ResponseAdapter

type Engine = webhooks.Engine
type Handler = webhooks.Handler
type Payload = webhooks.Payload
type Translator = webhooks.Translator

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Classify maps a status code, error or string to a failure classification.
func Classify(value any) Classification {
	return core.Classify(value)
}
