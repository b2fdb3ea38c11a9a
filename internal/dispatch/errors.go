// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import "errors"

var (
	// ErrUnknownCommand is returned for command names or values outside the supported set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnknownEvent is returned for event names or values outside the supported set.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrLoggerNotFound is returned when writing to a resource whose logger was never created.
	ErrLoggerNotFound = errors.New("logger not created, create the logger before logging")
	// ErrInvalidArguments is returned when the arguments of a command cannot be decoded.
	ErrInvalidArguments = errors.New("invalid arguments")
)
