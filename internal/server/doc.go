// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package server contains the HTTP status server of logdispatch.
// It sets up the HTTP server using the Fiber framework, configures middleware for logging,
// and defines routes for health checks and for inspecting the loggers known to the service.
package server
