// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	forwardedHostHeaderKey = "x-forwarded-host"
	forwardedForHeaderKey  = "x-forwarded-for"
	requestIDHeaderName    = "x-request-id"
	userAgentHeaderName    = "user-agent"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// httpFields groups the request and response attributes of a log line.
type httpFields struct {
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	// StatusCode and Bytes are only set once the request is completed.
	StatusCode int `json:"statusCode,omitempty"`
	Bytes      int `json:"bytes,omitempty"`
}

// hostFields describes who sent the request.
type hostFields struct {
	Hostname      string `json:"hostname,omitempty"`
	ForwardedHost string `json:"forwardedHost,omitempty"`
	IP            string `json:"ip,omitempty"`
}

// statusRequest snapshots the attributes of a fiber request that end up in the logs.
type statusRequest struct {
	id     string
	fields httpFields
	host   hostFields
}

func newStatusRequest(c *fiber.Ctx) statusRequest {
	requestID := c.Get(requestIDHeaderName)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return statusRequest{
		id: requestID,
		fields: httpFields{
			Method:    c.Method(),
			Path:      string(c.Request().URI().RequestURI()),
			UserAgent: c.Get(userAgentHeaderName),
		},
		host: hostFields{
			Hostname:      hostname(string(c.Request().Host())),
			ForwardedHost: c.Get(forwardedHostHeaderKey),
			IP:            c.Get(forwardedForHeaderKey),
		},
	}
}

// completed fills the response attributes, preferring the ones of a fiber error returned by the handlers.
func (r statusRequest) completed(c *fiber.Ctx, err error) httpFields {
	fields := r.fields

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		fields.StatusCode = fiberErr.Code
		fields.Bytes = len(fiberErr.Message)
		return fields
	}

	fields.StatusCode = c.Response().StatusCode()
	fields.Bytes = len(c.Response().Body())
	return fields
}

func hostname(host string) string {
	if name, _, err := net.SplitHostPort(host); err == nil {
		return name
	}
	return host
}

// RequestMiddlewareLogger is a fiber middleware to log all requests whose path does not start with
// one of excludedPrefix. It logs the incoming request and, when request is completed, its outcome
// and latency. The request id is echoed back in the x-request-id response header.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		req := newStatusRequest(c)
		c.Set(requestIDHeaderName, req.id)

		log := logger.With("reqId", req.id)
		c.SetUserContext(WithContext(c.UserContext(), log))

		log.WithName("incoming_request").Trace(IncomingRequestMessage, "http", req.fields, "host", req.host)
		err := c.Next()
		log.WithName("request_completed").Info(RequestCompletedMessage,
			"http", req.completed(c, err),
			"host", req.host,
			"responseTime", float64(time.Since(start).Milliseconds()),
		)

		return err
	}
}
