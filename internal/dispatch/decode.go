// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mia-platform/logdispatch/internal/logging"
)

// DecodeCommand builds the command called name from its positional JSON arguments.
func DecodeCommand(name string, args json.RawMessage) (Command, error) {
	switch name {
	case CreateLoggerCommand:
		var cmd CreateLogger
		if err := decodeArgs(name, args, 1, &cmd.Resource, &cmd.Options); err != nil {
			return nil, err
		}
		return cmd, nil

	case WriteLogCommand:
		var cmd WriteLog
		if err := decodeArgs(name, args, 2, &cmd.Resource, &cmd.Records); err != nil {
			return nil, err
		}
		return cmd, nil

	case ConsoleLogCommand:
		var cmd ConsoleLog
		var values consoleArgs
		if err := decodeArgs(name, args, 1, &cmd.Level, &values); err != nil {
			return nil, err
		}
		cmd.Args = values
		return cmd, nil

	case SetLogLevelCommand:
		var cmd SetLogLevel
		if err := decodeArgs(name, args, 2, &cmd.Resource, &cmd.Level, &cmd.Scope); err != nil {
			return nil, err
		}
		return cmd, nil

	case RegisterLoggerResourceCommand:
		var cmd RegisterLoggerResource
		if err := decodeArgs(name, args, 1, &cmd.Descriptor, &cmd.Scope); err != nil {
			return nil, err
		}
		if cmd.Descriptor.Resource.IsZero() {
			return nil, fmt.Errorf("%w: %s: descriptor without resource", ErrInvalidArguments, name)
		}
		return cmd, nil

	case DeregisterLoggerResourceCommand:
		var cmd DeregisterLoggerResource
		if err := decodeArgs(name, args, 1, &cmd.Resource); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// DecodeSubscription builds the subscription for the event called name.
// scope is the optional client scope; absent, null or zero selects every client.
func DecodeSubscription(name string, scope json.RawMessage) (Subscription, error) {
	var clientScope logging.Scope
	if !isAbsent(scope) {
		if err := json.Unmarshal(scope, &clientScope); err != nil {
			return nil, fmt.Errorf("%w: %s: scope: %w", ErrInvalidArguments, name, err)
		}
	}

	switch name {
	case LoggerResourcesChangedEvent:
		return LoggerResourcesChanged{Scope: clientScope}, nil
	case LogLevelChangedEvent:
		return LogLevelChanged{Scope: clientScope}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

// decodeArgs unmarshals the positional array args into targets.
// The first required targets must be present; later ones are optional.
func decodeArgs(name string, args json.RawMessage, required int, targets ...any) error {
	var positional []json.RawMessage
	if !isAbsent(args) {
		if err := json.Unmarshal(args, &positional); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidArguments, name, err)
		}
	}

	if len(positional) < required {
		return fmt.Errorf("%w: %s: expected at least %d arguments, got %d", ErrInvalidArguments, name, required, len(positional))
	}

	for i, target := range targets {
		if i >= len(positional) || (i >= required && isAbsent(positional[i])) {
			continue
		}

		if err := json.Unmarshal(positional[i], target); err != nil {
			return fmt.Errorf("%w: %s: argument %d: %w", ErrInvalidArguments, name, i, err)
		}
	}

	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// consoleArgs keeps numbers as written by the client.
type consoleArgs []any

func (a *consoleArgs) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var values []any
	if err := decoder.Decode(&values); err != nil {
		return err
	}
	*a = values
	return nil
}
