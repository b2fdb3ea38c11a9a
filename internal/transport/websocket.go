// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.lsp.dev/jsonrpc2"
)

const (
	websocketPath = "/rpc"
)

var _ jsonrpc2.Stream = &websocketStream{}

// websocketStream carries one JSON-RPC message per websocket message.
type websocketStream struct {
	conn *websocket.Conn
}

// NewWebsocketStream returns a JSON-RPC stream over conn.
func NewWebsocketStream(conn *websocket.Conn) jsonrpc2.Stream {
	return &websocketStream{conn: conn}
}

func (s *websocketStream) Read(_ context.Context) (jsonrpc2.Message, int64, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, 0, err
	}

	msg, err := jsonrpc2.DecodeMessage(data)
	return msg, int64(len(data)), err
}

// Write is serialized by the owning jsonrpc2.Conn.
func (s *websocketStream) Write(_ context.Context, msg jsonrpc2.Message) (int64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshaling message: %w", err)
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *websocketStream) Close() error {
	return s.conn.Close()
}

// AllowOrigins adds origins to the browser origins accepted by the websocket handler.
// Call it before serving.
func (s *Server) AllowOrigins(origins ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedOrigins = append(s.allowedOrigins, origins...)
}

// checkOrigin accepts requests without an Origin header, same host requests
// and the origins added with AllowOrigins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	s.mu.Lock()
	allowed := slices.Contains(s.allowedOrigins, origin)
	s.mu.Unlock()
	if allowed {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

// WebsocketHandler returns an http.Handler upgrading every request to a websocket client session.
func (s *Server) WebsocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("upgrading to websocket", "origin", r.Header.Get("Origin"), "error", err.Error())
			return
		}

		s.log.Debug("websocket client upgraded", "remote", r.RemoteAddr, "userAgent", r.UserAgent())
		conn := jsonrpc2.NewConn(NewWebsocketStream(wsConn))
		_ = s.ServeStream(ctx, conn)
	})
}

// ListenAndServeWebsocket serves websocket clients on address, at /rpc, until ctx is done.
func (s *Server) ListenAndServeWebsocket(ctx context.Context, address string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}

	return s.ServeWebsocket(ctx, ln)
}

// ServeWebsocket serves websocket clients accepted on ln until ctx is done.
func (s *Server) ServeWebsocket(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(websocketPath, s.WebsocketHandler(ctx))

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.Info("websocket server listening", "address", ln.Addr().String(), "path", websocketPath)
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
