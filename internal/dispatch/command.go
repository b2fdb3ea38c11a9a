// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import (
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

// Command names as they appear on the wire.
const (
	CreateLoggerCommand             = "create-logger"
	WriteLogCommand                 = "write-log"
	ConsoleLogCommand               = "console-log"
	SetLogLevelCommand              = "set-log-level"
	RegisterLoggerResourceCommand   = "register-logger-resource"
	DeregisterLoggerResourceCommand = "deregister-logger-resource"
)

// Event names as they appear on the wire.
const (
	LoggerResourcesChangedEvent = "logger-resources-changed"
	LogLevelChangedEvent        = "log-level-changed"
)

// Command is one of the requests accepted by Endpoint.Call. The set is closed:
// only the types declared in this package implement it.
type Command interface {
	// Name returns the wire name of the command.
	Name() string

	isCommand()
}

// CreateLogger creates, or replaces, the logger of a resource.
type CreateLogger struct {
	Resource resource.Identifier
	Options  logging.Options
}

// WriteLog writes records, in order, to the logger of a resource.
type WriteLog struct {
	Resource resource.Identifier
	Records  []logging.Record
}

// ConsoleLog mirrors values to the console stream selected by Level.
type ConsoleLog struct {
	Level logging.Level
	Args  []any
}

// SetLogLevel changes the level of a resource, for one client when Scope is not global.
type SetLogLevel struct {
	Resource resource.Identifier
	Level    logging.Level
	Scope    logging.Scope
}

// RegisterLoggerResource announces a loggable resource.
type RegisterLoggerResource struct {
	Descriptor logging.ResourceDescriptor
	Scope      logging.Scope
}

// DeregisterLoggerResource removes a resource announcement.
type DeregisterLoggerResource struct {
	Resource resource.Identifier
}

func (CreateLogger) Name() string             { return CreateLoggerCommand }
func (WriteLog) Name() string                 { return WriteLogCommand }
func (ConsoleLog) Name() string               { return ConsoleLogCommand }
func (SetLogLevel) Name() string              { return SetLogLevelCommand }
func (RegisterLoggerResource) Name() string   { return RegisterLoggerResourceCommand }
func (DeregisterLoggerResource) Name() string { return DeregisterLoggerResourceCommand }

func (CreateLogger) isCommand()             {}
func (WriteLog) isCommand()                 {}
func (ConsoleLog) isCommand()               {}
func (SetLogLevel) isCommand()              {}
func (RegisterLoggerResource) isCommand()   {}
func (DeregisterLoggerResource) isCommand() {}

// Subscription is one of the event feeds accepted by Endpoint.Listen. The set is closed.
type Subscription interface {
	// Name returns the wire name of the event.
	Name() string
	// SubscriptionScope returns the client the feed is narrowed to, GlobalScope for all of them.
	SubscriptionScope() logging.Scope

	isSubscription()
}

// LoggerResourcesChanged subscribes to resource announcement changes.
type LoggerResourcesChanged struct {
	Scope logging.Scope
}

// LogLevelChanged subscribes to log level changes.
type LogLevelChanged struct {
	Scope logging.Scope
}

func (LoggerResourcesChanged) Name() string { return LoggerResourcesChangedEvent }
func (LogLevelChanged) Name() string        { return LogLevelChangedEvent }

func (s LoggerResourcesChanged) SubscriptionScope() logging.Scope { return s.Scope }
func (s LogLevelChanged) SubscriptionScope() logging.Scope        { return s.Scope }

func (LoggerResourcesChanged) isSubscription() {}
func (LogLevelChanged) isSubscription()        {}
