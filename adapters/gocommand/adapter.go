package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-paykit"
	paykitcommand "github.com/goliatone/go-paykit/command"
	paykitquery "github.com/goliatone/go-paykit/query"
	"github.com/goliatone/go-paykit/transport"
)

// ValidateMessageContract checks a message has a type and passes its own Validate.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RegisterKit subscribes the kit operations on the go-command dispatcher and
// registers them with the adapter. Credential commands and queries are only
// registered when the kit manages credentials. On failure every subscription
// made so far is released.
func RegisterKit(adapter *RegistryAdapter, kit *paykit.Kit, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if kit == nil {
		return nil, fmt.Errorf("gocommand: kit is required")
	}
	var subscriptions []commanddispatcher.Subscription
	keep := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subscriptions = append(subscriptions, sub)
		return nil
	}

	steps := []func() error{
		func() error {
			return keep(RegisterAndSubscribe[paykitcommand.SendRequestMessage](
				adapter, paykitcommand.NewSendRequestCommand(kit.Transport()), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe[paykitcommand.HandleWebhookMessage](
				adapter, paykitcommand.NewHandleWebhookCommand(kit.Webhooks()), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery[paykitquery.FetchResourceMessage, transport.Response](
				adapter, paykitquery.NewFetchResourceQuery(kit.Transport()), runnerOpts...))
		},
	}
	if credentials := kit.Credentials(); credentials != nil {
		steps = append(steps,
			func() error {
				return keep(RegisterAndSubscribe[paykitcommand.RefreshCredentialsMessage](
					adapter, paykitcommand.NewRefreshCredentialsCommand(credentials), runnerOpts...))
			},
			func() error {
				return keep(RegisterAndSubscribe[paykitcommand.InvalidateCredentialsMessage](
					adapter, paykitcommand.NewInvalidateCredentialsCommand(credentials), runnerOpts...))
			},
			func() error {
				return keep(RegisterAndSubscribeQuery[paykitquery.AuthHeadersMessage, map[string]string](
					adapter, paykitquery.NewAuthHeadersQuery(credentials), runnerOpts...))
			},
			func() error {
				return keep(RegisterAndSubscribeQuery[paykitquery.CredentialStatusMessage, paykitquery.CredentialStatus](
					adapter, paykitquery.NewCredentialStatusQuery(credentials), runnerOpts...))
			},
		)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			for _, sub := range subscriptions {
				sub.Unsubscribe()
			}
			return nil, err
		}
	}
	return subscriptions, nil
}
