// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package transport exposes a dispatch endpoint to remote clients over JSON-RPC 2.0.
// Every accepted connection is one client: it can call commands, open subscriptions
// and receives the notifications of its subscriptions until it disconnects.
package transport
