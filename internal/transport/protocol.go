// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"encoding/json"
	"errors"

	"go.lsp.dev/jsonrpc2"

	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

// JSON-RPC methods handled by the server.
const (
	MethodCall     = "call"
	MethodListen   = "listen"
	MethodUnlisten = "unlisten"
)

// MethodEvent is the notification carrying subscription events to the client.
const MethodEvent = "event"

// CodeLoggerNotFound is returned when writing to a resource whose logger was never created.
const CodeLoggerNotFound jsonrpc2.Code = -32010

// ErrUnknownSubscription is returned when closing a subscription the connection does not own.
var ErrUnknownSubscription = errors.New("unknown subscription")

// CallParams are the parameters of the call method.
type CallParams struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// ListenParams are the parameters of the listen method. ID is chosen by the server when empty.
type ListenParams struct {
	Event string          `json:"event"`
	Arg   json.RawMessage `json:"arg,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// ListenResult is the result of the listen method.
type ListenResult struct {
	ID string `json:"id"`
}

// UnlistenParams are the parameters of the unlisten method.
type UnlistenParams struct {
	ID string `json:"id"`
}

// Event is the payload of the event notification.
type Event struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type eventParams struct {
	ID    string               `json:"id"`
	Event string               `json:"event"`
	Data  logging.Notification `json:"data"`
}

// toRPCError maps dispatch and collaborator errors to JSON-RPC errors.
// Errors without a dedicated code keep their message unchanged.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *jsonrpc2.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, dispatch.ErrUnknownCommand), errors.Is(err, dispatch.ErrUnknownEvent):
		return jsonrpc2.NewError(jsonrpc2.MethodNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidArguments),
		errors.Is(err, logging.ErrInvalidLevel),
		errors.Is(err, logging.ErrInvalidRecord),
		errors.Is(err, resource.ErrInvalidIdentifier),
		errors.Is(err, ErrUnknownSubscription):
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	case errors.Is(err, dispatch.ErrLoggerNotFound):
		return jsonrpc2.NewError(CodeLoggerNotFound, err.Error())
	default:
		return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
	}
}
