// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mia-platform/logdispatch/internal/event"
	"github.com/mia-platform/logdispatch/internal/logger"
	"github.com/mia-platform/logdispatch/internal/logging"
)

const (
	loggerName = "logdispatch:dispatch"
)

// Endpoint routes commands and subscriptions to the logging service and to the
// logger handles it owns.
type Endpoint struct {
	service  logging.Service
	console  ConsoleSink
	registry *Registry
}

// NewEndpoint returns an endpoint routing to service and mirroring console output to console.
// A nil console discards console-log values.
func NewEndpoint(service logging.Service, console ConsoleSink) *Endpoint {
	if console == nil {
		console = discardSink{}
	}

	return &Endpoint{
		service:  service,
		console:  console,
		registry: NewRegistry(),
	}
}

// Registry returns the handles created through the endpoint.
func (e *Endpoint) Registry() *Registry {
	return e.registry
}

// Dispatch decodes the command called name and executes it.
func (e *Endpoint) Dispatch(ctx context.Context, name string, args json.RawMessage) error {
	cmd, err := DecodeCommand(name, args)
	if err != nil {
		return err
	}

	return e.Call(ctx, cmd)
}

// Call executes cmd. Errors of the logging service are returned unchanged.
func (e *Endpoint) Call(ctx context.Context, cmd Command) error {
	log := logger.Named(ctx, loggerName)

	switch cmd := cmd.(type) {
	case CreateLogger:
		log.Trace("creating logger", "resource", cmd.Resource.String())
		replaced, err := e.registry.Create(cmd.Resource, func() (logging.Handle, error) {
			return e.service.CreateLogger(ctx, cmd.Resource, cmd.Options)
		})
		if err != nil {
			return err
		}

		if replaced {
			log.Debug("logger replaced", "resource", cmd.Resource.String())
		}
		return nil

	case WriteLog:
		handle, ok := e.registry.Get(cmd.Resource)
		if !ok {
			return fmt.Errorf("%w: %s", ErrLoggerNotFound, cmd.Resource)
		}

		log.Trace("writing records", "resource", cmd.Resource.String(), "count", len(cmd.Records))
		for _, record := range cmd.Records {
			if err := logging.Write(ctx, handle, record); err != nil {
				return err
			}
		}
		return nil

	case ConsoleLog:
		mirror(e.console, cmd.Level, cmd.Args)
		return nil

	case SetLogLevel:
		log.Trace("setting log level", "resource", cmd.Resource.String(), "level", cmd.Level.String(), "scope", int(cmd.Scope))
		return e.service.SetLogLevel(ctx, cmd.Resource, cmd.Level, cmd.Scope)

	case RegisterLoggerResource:
		log.Trace("registering logger resource", "resource", cmd.Descriptor.Resource.String(), "scope", int(cmd.Scope))
		return e.service.RegisterLoggerResource(ctx, cmd.Descriptor, cmd.Scope)

	case DeregisterLoggerResource:
		log.Trace("deregistering logger resource", "resource", cmd.Resource.String())
		return e.service.DeregisterLoggerResource(ctx, cmd.Resource)

	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// Subscribe decodes the subscription for the event called name and opens it.
func (e *Endpoint) Subscribe(ctx context.Context, name string, scope json.RawMessage) (event.Feed[logging.Notification], error) {
	sub, err := DecodeSubscription(name, scope)
	if err != nil {
		return nil, err
	}

	return e.Listen(ctx, sub)
}

// Listen returns the live feed selected by sub: the feed of its scope, or the global one
// when the scope is global. The caller must cancel the feed once done with it.
func (e *Endpoint) Listen(ctx context.Context, sub Subscription) (event.Feed[logging.Notification], error) {
	log := logger.Named(ctx, loggerName)

	switch sub := sub.(type) {
	case LoggerResourcesChanged:
		log.Trace("subscribing to resource changes", "scope", int(sub.Scope))
		return event.Map(e.service.OnLoggerResourcesChanged(sub.Scope), toNotification[logging.ResourcesChange]), nil

	case LogLevelChanged:
		log.Trace("subscribing to level changes", "scope", int(sub.Scope))
		return event.Map(e.service.OnLogLevelChanged(sub.Scope), toNotification[logging.LevelChange]), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, sub)
	}
}

func toNotification[T logging.Notification](value T) logging.Notification {
	return value
}
