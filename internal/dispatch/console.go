// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import "github.com/mia-platform/logdispatch/internal/logging"

// ConsoleSink is the console the endpoint mirrors console-log values to.
type ConsoleSink interface {
	Error(args ...any)
	Warn(args ...any)
	Info(args ...any)
	Log(args ...any)
}

type discardSink struct{}

func (discardSink) Error(...any) {}
func (discardSink) Warn(...any)  {}
func (discardSink) Info(...any)  {}
func (discardSink) Log(...any)   {}

// mirror writes args, untouched, to the sink stream matching level.
func mirror(sink ConsoleSink, level logging.Level, args []any) {
	switch level {
	case logging.Error:
		sink.Error(args...)
	case logging.Warning:
		sink.Warn(args...)
	case logging.Info:
		sink.Info(args...)
	default:
		sink.Log(args...)
	}
}
