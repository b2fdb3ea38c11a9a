// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package dispatch contains the dispatch endpoint exposing a logging service to remote clients.
//
// The endpoint accepts a closed set of commands and event subscriptions. Commands either
// reach a logger handle kept in the endpoint registry or are delegated to the logging
// service; subscriptions return the change feed of the service, narrowed to a single
// client when a scope is given. Console output is mirrored to an injected sink.
package dispatch
