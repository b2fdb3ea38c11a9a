// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"

	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/logger"
)

const (
	loggerName = "logdispatch:transport"
)

var (
	ErrServerListen = errors.New("rpc server listen error")
)

var _ jsonrpc2.StreamServer = &Server{}

// Server serves a dispatch endpoint, one session per connection.
type Server struct {
	endpoint *dispatch.Endpoint
	log      logger.Logger

	mu             sync.Mutex
	sessions       map[string]*session
	allowedOrigins []string
}

// NewServer returns a server for endpoint logging with the logger carried by ctx.
func NewServer(ctx context.Context, endpoint *dispatch.Endpoint) *Server {
	return &Server{
		endpoint: endpoint,
		log:      logger.Named(ctx, loggerName),
		sessions: make(map[string]*session),
	}
}

// ListenAndServe listens on network and address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, network, address string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.log.Info("rpc server listening", "address", ln.Addr().String())
	err := jsonrpc2.Serve(ctx, ln, s, 0)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ServeStream serves one client connection and blocks until it ends.
// Every subscription of the client is cancelled before it returns.
func (s *Server) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	id := uuid.NewString()
	log := s.log.With("connection", id)
	ctx = logger.WithContext(ctx, log)

	sess := newSession(s.endpoint, conn)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Debug("client connected")
	conn.Go(ctx, requestLogger(sess.handle))

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
	}

	sess.close()
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := conn.Err(); err != nil {
		log.Debug("client disconnected", "reason", err.Error())
	} else {
		log.Debug("client disconnected")
	}
	return nil
}

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Subscriptions returns the number of subscriptions open across every connected client.
func (s *Server) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, sess := range s.sessions {
		total += sess.subscriptions()
	}
	return total
}
