// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mia-platform/logdispatch/internal/event"
	"github.com/mia-platform/logdispatch/internal/resource"
)

// ErrInvalidRecord is returned when a log record cannot be decoded.
var ErrInvalidRecord = errors.New("invalid log record")

// Scope narrows a subscription or a level change to a single client.
type Scope int

// GlobalScope addresses every client.
const GlobalScope Scope = 0

// IsGlobal reports whether s addresses every client.
func (s Scope) IsGlobal() bool {
	return s == GlobalScope
}

// Record is a single log entry, transmitted as the pair [level, message].
type Record struct {
	Level   Level
	Message string
}

// MarshalJSON encodes the record as its wire pair.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{int(r.Level), r.Message})
}

// UnmarshalJSON decodes the wire pair.
func (r *Record) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: expected [level, message], got %d elements", ErrInvalidRecord, len(pair))
	}

	if err := json.Unmarshal(pair[0], &r.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := json.Unmarshal(pair[1], &r.Message); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// Options configures a logger at creation time. The dispatch endpoint never interprets
// them; the original payload is kept in Raw for services that need more than the known keys.
type Options struct {
	Name               string `json:"name,omitempty"`
	LogLevel           *Level `json:"-"`
	Always             bool   `json:"-"`
	Hidden             bool   `json:"hidden,omitempty"`
	DonotUseFormatters bool   `json:"donotUseFormatters,omitempty"`
	Format             string `json:"format,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type rawOptions Options

// UnmarshalJSON decodes the known keys and keeps the payload verbatim.
// logLevel may be a level or the string "always".
func (o *Options) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = Options{}
		return nil
	}

	decoded := struct {
		*rawOptions

		LogLevel json.RawMessage `json:"logLevel,omitempty"`
	}{
		rawOptions: (*rawOptions)(o),
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	if len(decoded.LogLevel) > 0 && !bytes.Equal(decoded.LogLevel, []byte("null")) {
		if bytes.Equal(decoded.LogLevel, []byte(`"always"`)) {
			o.Always = true
		} else {
			var level Level
			if err := json.Unmarshal(decoded.LogLevel, &level); err != nil {
				return err
			}
			o.LogLevel = &level
		}
	}

	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the original payload when available.
func (o Options) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}

	encoded := struct {
		rawOptions

		LogLevel any `json:"logLevel,omitempty"`
	}{
		rawOptions: rawOptions(o),
	}
	switch {
	case o.Always:
		encoded.LogLevel = "always"
	case o.LogLevel != nil:
		encoded.LogLevel = int(*o.LogLevel)
	}

	return json.Marshal(encoded)
}

// ResourceDescriptor announces a resource that may later be logged to.
type ResourceDescriptor struct {
	Resource  resource.Identifier `json:"resource"`
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	LogLevel  *Level              `json:"logLevel,omitempty"`
	Hidden    bool                `json:"hidden,omitempty"`
	When      string              `json:"when,omitempty"`
	Extension string              `json:"extensionId,omitempty"`
}

// Handle is an open logger bound to one resource.
type Handle interface {
	Resource() resource.Identifier
	Log(ctx context.Context, level Level, message string) error
}

// Write is the write primitive of the logging service: it writes record to handle.
// Records with Off or unknown levels are rejected.
func Write(ctx context.Context, handle Handle, record Record) error {
	switch record.Level {
	case Trace, Debug, Info, Warning, Error:
		return handle.Log(ctx, record.Level, record.Message)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLevel, record.Level)
	}
}

// Notification is a change published by the logging service.
type Notification interface {
	// NotificationScope returns the client the change belongs to.
	NotificationScope() Scope

	isNotification()
}

// LevelChange notifies a new log level for a resource.
type LevelChange struct {
	Resource resource.Identifier `json:"resource"`
	Level    Level               `json:"level"`
	Scope    Scope               `json:"scope,omitempty"`
}

func (c LevelChange) NotificationScope() Scope { return c.Scope }
func (LevelChange) isNotification()            {}

// ResourcesChange notifies added or removed resource announcements.
type ResourcesChange struct {
	Added   []ResourceDescriptor `json:"added"`
	Removed []ResourceDescriptor `json:"removed"`
	Scope   Scope                `json:"scope,omitempty"`
}

func (c ResourcesChange) NotificationScope() Scope { return c.Scope }
func (ResourcesChange) isNotification()            {}

// Service is the logging service the dispatch endpoint routes commands to.
type Service interface {
	// CreateLogger opens a logger for id.
	CreateLogger(ctx context.Context, id resource.Identifier, options Options) (Handle, error)
	// SetLogLevel changes the level of id, optionally for one client only.
	SetLogLevel(ctx context.Context, id resource.Identifier, level Level, scope Scope) error
	// RegisterLoggerResource announces a resource, optionally owned by one client.
	RegisterLoggerResource(ctx context.Context, descriptor ResourceDescriptor, scope Scope) error
	// DeregisterLoggerResource removes the announcement of id.
	DeregisterLoggerResource(ctx context.Context, id resource.Identifier) error

	// OnLogLevelChanged returns the level changes of scope, or of every client for GlobalScope.
	OnLogLevelChanged(scope Scope) event.Feed[LevelChange]
	// OnLoggerResourcesChanged returns the resource changes of scope, or of every client for GlobalScope.
	OnLoggerResourcesChanged(scope Scope) event.Feed[ResourcesChange]
}
