// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/mia-platform/logdispatch/internal/logger"
)

// requestLogger logs every request received on a connection and, once replied, its outcome and latency.
// Notifications have no reply and are only logged on arrival.
func requestLogger(next jsonrpc2.Handler) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		log := logger.FromContext(ctx)
		start := time.Now()

		fields := []any{"method", req.Method()}
		if call, ok := req.(*jsonrpc2.Call); ok {
			fields = append(fields, "requestId", fmt.Sprint(call.ID()))
		}
		log.WithName("incoming_request").Trace(logger.IncomingRequestMessage, fields...)

		logged := func(ctx context.Context, result any, err error) error {
			completed := append(slices.Clone(fields), "responseTime", float64(time.Since(start).Milliseconds()))
			var rpcErr *jsonrpc2.Error
			if errors.As(err, &rpcErr) {
				completed = append(completed, "code", int32(rpcErr.Code))
			}
			log.WithName("request_completed").Debug(logger.RequestCompletedMessage, completed...)
			return reply(ctx, result, err)
		}

		return next(ctx, logged, req)
	}
}
