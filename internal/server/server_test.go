// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logdispatch/internal/info"
)

func TestStatusRoutes(t *testing.T) {
	t.Parallel()
	srv := newServer(t.Context(), Config{DisableStartupMessage: true, HTTPPort: 3000})

	for _, path := range []string{"/-/healthz", "/-/ready"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
			defer response.Body.Close()
			require.Equal(t, http.StatusOK, response.StatusCode)

			var body statusResponse
			require.NoError(t, json.NewDecoder(response.Body).Decode(&body))
			assert.Equal(t, statusResponse{Status: "OK", Name: info.AppName, Version: info.Version}, body)
		})
	}
}

func TestAddRoute(t *testing.T) {
	t.Parallel()
	srv := newServer(t.Context(), Config{DisableStartupMessage: true, HTTPPort: 3000})

	srv.AddRoute(http.MethodGet, "/api/loggers", func(context.Context) (any, error) {
		return []string{"file:///a.log"}, nil
	})
	srv.AddRoute(http.MethodGet, "/api/broken", func(context.Context) (any, error) {
		return nil, errors.New("registry unavailable")
	})

	response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/loggers", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `["file:///a.log"]`, string(body))
	assert.NotEmpty(t, response.Header.Get("x-request-id"))

	response, err = srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/broken", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusInternalServerError, response.StatusCode)
	body, err = io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":500,"error":"Internal Server Error","message":"registry unavailable"}`, string(body))

	response, err = srv.app.Test(httptest.NewRequest(http.MethodGet, "/api/missing", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusNotFound, response.StatusCode)
	body, err = io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":404,"error":"Not Found","message":"Cannot GET /api/missing"}`, string(body))
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStartServer(t *testing.T) {
	t.Parallel()
	srv := newServer(t.Context(), Config{
		DisableStartupMessage: true,
		HTTPHost:              "127.0.0.1",
		HTTPPort:              freePort(t),
		ShutdownTimeout:       time.Second,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	require.Eventually(t, func() bool {
		response, err := http.Get("http://" + net.JoinHostPort(srv.HTTPHost, strconv.Itoa(srv.HTTPPort)) + "/-/healthz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.NoError(t, <-errChan)
}

func TestNewServerFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "0")
	_, err := NewServer(t.Context())
	require.ErrorIs(t, err, ErrEnvVariablesNotValid)

	t.Setenv("HTTP_PORT", "3001")
	srv, err := NewServer(t.Context())
	require.NoError(t, err)
	require.NotNil(t, srv)
}
