// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package client is the Go client of the logdispatch JSON-RPC transport.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.lsp.dev/jsonrpc2"

	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/info"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/transport"
)

const listenerBuffer = 64

var (
	// ErrClientClosed is returned by the operations of a closed client.
	ErrClientClosed = errors.New("client closed")
	ErrDial         = errors.New("cannot connect to logdispatch")
)

// RemoteError is an error returned by the server. It unwraps to the matching dispatch error, if any.
type RemoteError struct {
	Code    jsonrpc2.Code
	Message string

	kind error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}

// Client calls commands and opens subscriptions on a logdispatch server.
type Client struct {
	conn jsonrpc2.Conn

	mu        sync.Mutex
	closed    bool
	listeners map[string]*Listener
}

// Dial connects to the server listening on network and address.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}

	return New(ctx, jsonrpc2.NewStream(conn)), nil
}

// DialWebsocket connects to the websocket server at url.
func DialWebsocket(ctx context.Context, url string) (*Client, error) {
	header := http.Header{}
	header.Set("User-Agent", info.UserAgent())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}

	return New(ctx, transport.NewWebsocketStream(conn)), nil
}

// New returns a client speaking over stream.
func New(ctx context.Context, stream jsonrpc2.Stream) *Client {
	c := &Client{
		conn:      jsonrpc2.NewConn(stream),
		listeners: make(map[string]*Listener),
	}

	c.conn.Go(ctx, c.handle)
	go func() {
		<-c.conn.Done()
		c.shutdown()
	}()
	return c
}

// Call executes command on the server with the positional args.
func (c *Client) Call(ctx context.Context, command string, args ...any) error {
	if args == nil {
		args = []any{}
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrInvalidArguments, err)
	}

	_, err = c.conn.Call(ctx, transport.MethodCall, transport.CallParams{Command: command, Args: encoded}, nil)
	return fromRPCError(err, dispatch.ErrUnknownCommand)
}

// Listen opens a subscription to event for scope.
func (c *Client) Listen(ctx context.Context, event string, scope logging.Scope) (*Listener, error) {
	listener := &Listener{
		client: c,
		id:     uuid.NewString(),
		event:  event,
		ch:     make(chan transport.Event, listenerBuffer),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.listeners[listener.id] = listener
	c.mu.Unlock()

	arg, err := json.Marshal(scope)
	if err != nil {
		c.remove(listener.id)
		return nil, err
	}

	params := transport.ListenParams{Event: event, Arg: arg, ID: listener.id}
	var result transport.ListenResult
	if _, err := c.conn.Call(ctx, transport.MethodListen, params, &result); err != nil {
		c.remove(listener.id)
		return nil, fromRPCError(err, dispatch.ErrUnknownEvent)
	}
	return listener, nil
}

// Close disconnects the client. Every listener channel is closed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.conn.Done()
	c.shutdown()
	return err
}

// Done is closed once the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() != transport.MethodEvent {
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}

	var evt transport.Event
	if err := json.Unmarshal(req.Params(), &evt); err != nil {
		return reply(ctx, nil, nil)
	}

	c.mu.Lock()
	if listener, ok := c.listeners[evt.ID]; ok {
		listener.deliver(evt)
	}
	c.mu.Unlock()
	return reply(ctx, nil, nil)
}

func (c *Client) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	listener, ok := c.listeners[id]
	if !ok {
		return false
	}
	delete(c.listeners, id)
	close(listener.ch)
	return true
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.closed = true
	for id, listener := range c.listeners {
		delete(c.listeners, id)
		close(listener.ch)
	}
}

// Listener receives the events of one subscription.
type Listener struct {
	client  *Client
	id      string
	event   string
	ch      chan transport.Event
	dropped uint64
}

// ID returns the subscription id shared with the server.
func (l *Listener) ID() string {
	return l.id
}

// Event returns the name of the subscribed event.
func (l *Listener) Event() string {
	return l.event
}

// C delivers the events of the subscription. It is closed by Close or when the client disconnects.
func (l *Listener) C() <-chan transport.Event {
	return l.ch
}

// Close ends the subscription on the server.
func (l *Listener) Close(ctx context.Context) error {
	if !l.client.remove(l.id) {
		return nil
	}

	_, err := l.client.conn.Call(ctx, transport.MethodUnlisten, transport.UnlistenParams{ID: l.id}, nil)
	return fromRPCError(err, dispatch.ErrUnknownEvent)
}

// Dropped returns how many events were discarded because C was not drained.
func (l *Listener) Dropped() uint64 {
	l.client.mu.Lock()
	defer l.client.mu.Unlock()
	return l.dropped
}

// deliver is called with the client lock held.
func (l *Listener) deliver(evt transport.Event) {
	select {
	case l.ch <- evt:
	default:
		l.dropped++
	}
}

func fromRPCError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		return err
	}

	remote := &RemoteError{Code: rpcErr.Code, Message: rpcErr.Message}
	switch rpcErr.Code {
	case jsonrpc2.MethodNotFound:
		remote.kind = notFound
	case jsonrpc2.InvalidParams:
		remote.kind = dispatch.ErrInvalidArguments
	case transport.CodeLoggerNotFound:
		remote.kind = dispatch.ErrLoggerNotFound
	}
	return remote
}
