// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package loggerservice is the in-process logging service behind the dispatch endpoint.
// It opens file loggers under a logs home directory, keeps the announced logger resources
// and their levels, and publishes level and resource changes to scoped subscribers.
package loggerservice
