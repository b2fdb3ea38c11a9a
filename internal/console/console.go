// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package console mirrors console-log values on the standard streams of the process.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/mia-platform/logdispatch/internal/dispatch"
)

var _ dispatch.ConsoleSink = &Sink{}

// Sink writes errors and warnings to the error stream, everything else to the output stream.
type Sink struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	errorColor *color.Color
	warnColor  *color.Color
}

// NewSink returns a sink over out and errOut. Error and warning lines are colored
// when errOut is a terminal.
func NewSink(out, errOut io.Writer) *Sink {
	sink := &Sink{
		out:        out,
		errOut:     errOut,
		errorColor: color.New(color.FgRed),
		warnColor:  color.New(color.FgYellow),
	}

	if isTerminal(errOut) {
		sink.errorColor.EnableColor()
		sink.warnColor.EnableColor()
	} else {
		sink.errorColor.DisableColor()
		sink.warnColor.DisableColor()
	}
	return sink
}

// NewStdSink returns a sink over the standard output and error of the process.
func NewStdSink() *Sink {
	return NewSink(os.Stdout, os.Stderr)
}

func (s *Sink) Error(args ...any) {
	s.print(s.errOut, s.errorColor, args)
}

func (s *Sink) Warn(args ...any) {
	s.print(s.errOut, s.warnColor, args)
}

func (s *Sink) Info(args ...any) {
	s.print(s.out, nil, args)
}

func (s *Sink) Log(args ...any) {
	s.print(s.out, nil, args)
}

func (s *Sink) print(w io.Writer, c *color.Color, args []any) {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = render(arg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c != nil {
		_, _ = c.Fprintln(w, values...)
		return
	}
	_, _ = fmt.Fprintln(w, values...)
}

// render prints objects and arrays as compact JSON and null as null, leaving the other values untouched.
func render(value any) any {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return value
		}
		return string(encoded)
	default:
		return value
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
