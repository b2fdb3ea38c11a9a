// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"

	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/event"
	"github.com/mia-platform/logdispatch/internal/logger"
	"github.com/mia-platform/logdispatch/internal/logging"
)

// session holds the subscriptions of one connection. Requests are handled one at a time
// on the read loop of the connection; notifications are sent from one goroutine per subscription.
type session struct {
	endpoint *dispatch.Endpoint
	conn     jsonrpc2.Conn

	mu        sync.Mutex
	closed    bool
	listeners map[string]event.Feed[logging.Notification]
	wg        sync.WaitGroup
}

func newSession(endpoint *dispatch.Endpoint, conn jsonrpc2.Conn) *session {
	return &session{
		endpoint:  endpoint,
		conn:      conn,
		listeners: make(map[string]event.Feed[logging.Notification]),
	}
}

func (s *session) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case MethodCall:
		var params CallParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}

		err := s.endpoint.Dispatch(ctx, params.Command, params.Args)
		if err != nil {
			logger.FromContext(ctx).Debug("command failed", "command", params.Command, "error", err.Error())
		}
		return reply(ctx, nil, toRPCError(err))

	case MethodListen:
		var params ListenParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		return s.listen(ctx, reply, params)

	case MethodUnlisten:
		var params UnlistenParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		return reply(ctx, nil, toRPCError(s.unlisten(params.ID)))

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

// listen opens the subscription and starts forwarding it only after the reply is written,
// so the client knows the id before the first event.
func (s *session) listen(ctx context.Context, reply jsonrpc2.Replier, params ListenParams) error {
	feed, err := s.endpoint.Subscribe(ctx, params.Event, params.Arg)
	if err != nil {
		return reply(ctx, nil, toRPCError(err))
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	_, exists := s.listeners[id]
	if s.closed || exists {
		s.mu.Unlock()
		feed.Cancel()
		return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "subscription %s already exists", id))
	}
	s.listeners[id] = feed
	s.wg.Add(1)
	s.mu.Unlock()

	if err := reply(ctx, ListenResult{ID: id}, nil); err != nil {
		s.wg.Done()
		return err
	}

	logger.FromContext(ctx).Trace("subscription opened", "subscription", id, "event", params.Event)
	go s.forward(ctx, id, params.Event, feed)
	return nil
}

func (s *session) forward(ctx context.Context, id, name string, feed event.Feed[logging.Notification]) {
	defer s.wg.Done()

	log := logger.FromContext(ctx)
	for notification := range feed.C() {
		params := eventParams{ID: id, Event: name, Data: notification}
		if err := s.conn.Notify(ctx, MethodEvent, params); err != nil {
			log.Debug("cannot deliver event", "subscription", id, "error", err.Error())
			return
		}
	}

	if dropped := feed.Dropped(); dropped > 0 {
		log.Warn("subscription dropped events", "subscription", id, "dropped", dropped)
	}
}

func (s *session) unlisten(id string) error {
	s.mu.Lock()
	feed, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}
	feed.Cancel()
	return nil
}

// close cancels every subscription of the session and waits for their forwarders.
func (s *session) close() {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	s.listeners = make(map[string]event.Feed[logging.Notification])
	s.mu.Unlock()

	for _, feed := range listeners {
		feed.Cancel()
	}
	s.wg.Wait()
}

func (s *session) subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func decodeParams(req jsonrpc2.Request, target any) error {
	if err := json.Unmarshal(req.Params(), target); err != nil {
		return jsonrpc2.Errorf(jsonrpc2.InvalidParams, "%s: invalid params: %s", req.Method(), err)
	}
	return nil
}
