// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

var (
	// ErrUsage is returned for shell commands with missing or malformed arguments.
	ErrUsage = errors.New("usage")
	// ErrUnknownShellCommand is returned for lines starting with an unknown shell command.
	ErrUnknownShellCommand = errors.New("unknown shell command")
)

const shellHelp = `
logdispatch client commands:
  Loggers:
    create <uri> [format] [name]         - Create the logger of a resource (format: text, json, cbor)
    log <uri> <level> <message...>       - Write a record to a created logger
    console <level> <values...>          - Mirror values on the server console
    level <uri> <level> [scope]          - Set the log level of a resource

  Resources:
    register <uri> [id] [scope]          - Announce a logger resource
    deregister <uri>                     - Remove a logger resource announcement

  Events:
    listen <event> [scope]               - Subscribe to log-level-changed or logger-resources-changed
    unlisten <id>                        - Close a subscription

  General:
    help                                 - Show this help
    quit                                 - Exit`

// Shell is an interactive prompt issuing commands through a Client.
type Shell struct {
	client *Client
	rl     *readline.Instance

	outMu sync.Mutex
	out   io.Writer

	listenersMu sync.Mutex
	listeners   map[string]*Listener
}

// NewShell returns a shell reading commands from the terminal.
func NewShell(client *Client) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "logdispatch> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	shell := NewShellWithWriter(client, rl.Stdout())
	shell.rl = rl
	return shell, nil
}

// NewShellWithWriter returns a shell without a prompt, for executing command lines with Execute.
func NewShellWithWriter(client *Client, out io.Writer) *Shell {
	return &Shell{
		client:    client,
		out:       out,
		listeners: make(map[string]*Listener),
	}
}

// Run reads and executes commands until quit, end of input or the end of ctx.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()
	defer s.closeListeners(context.WithoutCancel(ctx))

	s.println(shellHelp)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.client.Done():
			s.println("Connection closed")
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			s.println("Exiting...")
			return nil
		}

		if quit, _ := s.Execute(ctx, line); quit {
			s.println("Exiting...")
			return nil
		}
	}
}

// Execute runs a single command line, printing its outcome. It returns true on quit.
func (s *Shell) Execute(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false, nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.println(shellHelp)
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "create":
		err = s.cmdCreate(ctx, args)
	case "log":
		err = s.cmdLog(ctx, args)
	case "console":
		err = s.cmdConsole(ctx, args)
	case "level":
		err = s.cmdLevel(ctx, args)
	case "register":
		err = s.cmdRegister(ctx, args)
	case "deregister":
		err = s.cmdDeregister(ctx, args)
	case "listen":
		err = s.cmdListen(ctx, args)
	case "unlisten":
		err = s.cmdUnlisten(ctx, args)
	default:
		s.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		return false, fmt.Errorf("%w: %s", ErrUnknownShellCommand, cmd)
	}

	if err != nil {
		s.printf("Error: %s\n", err)
		return false, err
	}
	s.println("OK")
	return false, nil
}

func (s *Shell) cmdCreate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: create <uri> [format] [name]", ErrUsage)
	}

	id, err := resource.Parse(args[0])
	if err != nil {
		return err
	}

	options := logging.Options{}
	if len(args) > 1 {
		options.Format = args[1]
	}
	if len(args) > 2 {
		options.Name = strings.Join(args[2:], " ")
	}
	return s.client.Call(ctx, dispatch.CreateLoggerCommand, id, options)
}

func (s *Shell) cmdLog(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: log <uri> <level> <message...>", ErrUsage)
	}

	id, err := resource.Parse(args[0])
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(args[1])
	if err != nil {
		return err
	}

	record := logging.Record{Level: level, Message: strings.Join(args[2:], " ")}
	return s.client.Call(ctx, dispatch.WriteLogCommand, id, []logging.Record{record})
}

func (s *Shell) cmdConsole(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: console <level> <values...>", ErrUsage)
	}

	level, err := logging.ParseLevel(args[0])
	if err != nil {
		return err
	}

	values := make([]any, 0, len(args)-1)
	for _, value := range args[1:] {
		values = append(values, value)
	}
	return s.client.Call(ctx, dispatch.ConsoleLogCommand, int(level), values)
}

func (s *Shell) cmdLevel(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: level <uri> <level> [scope]", ErrUsage)
	}

	id, err := resource.Parse(args[0])
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(args[1])
	if err != nil {
		return err
	}
	scope, err := parseScope(args[2:])
	if err != nil {
		return err
	}
	return s.client.Call(ctx, dispatch.SetLogLevelCommand, id, int(level), int(scope))
}

func (s *Shell) cmdRegister(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: register <uri> [id] [scope]", ErrUsage)
	}

	id, err := resource.Parse(args[0])
	if err != nil {
		return err
	}

	descriptor := logging.ResourceDescriptor{Resource: id, ID: id.String()}
	if len(args) > 1 {
		descriptor.ID = args[1]
	}
	scope, err := parseScope(args[min(len(args), 2):])
	if err != nil {
		return err
	}
	return s.client.Call(ctx, dispatch.RegisterLoggerResourceCommand, descriptor, int(scope))
}

func (s *Shell) cmdDeregister(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: deregister <uri>", ErrUsage)
	}

	id, err := resource.Parse(args[0])
	if err != nil {
		return err
	}
	return s.client.Call(ctx, dispatch.DeregisterLoggerResourceCommand, id)
}

func (s *Shell) cmdListen(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: listen <event> [scope]", ErrUsage)
	}

	scope, err := parseScope(args[1:])
	if err != nil {
		return err
	}

	listener, err := s.client.Listen(ctx, args[0], scope)
	if err != nil {
		return err
	}

	s.listenersMu.Lock()
	s.listeners[listener.ID()] = listener
	s.listenersMu.Unlock()

	s.printf("Subscription %s opened\n", listener.ID())
	go func() {
		for evt := range listener.C() {
			s.printf("[%s] %s %s\n", evt.ID, evt.Event, string(evt.Data))
		}
	}()
	return nil
}

func (s *Shell) cmdUnlisten(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: unlisten <id>", ErrUsage)
	}

	s.listenersMu.Lock()
	listener, ok := s.listeners[args[0]]
	delete(s.listeners, args[0])
	s.listenersMu.Unlock()

	if !ok {
		return fmt.Errorf("unknown subscription %s", args[0])
	}
	return listener.Close(ctx)
}

func (s *Shell) closeListeners(ctx context.Context) {
	s.listenersMu.Lock()
	listeners := s.listeners
	s.listeners = make(map[string]*Listener)
	s.listenersMu.Unlock()

	for _, listener := range listeners {
		_ = listener.Close(ctx)
	}
}

func parseScope(args []string) (logging.Scope, error) {
	if len(args) == 0 {
		return logging.GlobalScope, nil
	}

	value, err := strconv.Atoi(args[0])
	if err != nil || value < 0 {
		return logging.GlobalScope, fmt.Errorf("%w: scope must be a non negative number", ErrUsage)
	}
	return logging.Scope(value), nil
}

func (s *Shell) println(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, text)
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
