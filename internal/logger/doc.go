// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logger is the structured logger of the dispatch service itself, not the loggers
// created on behalf of remote clients. It wraps hclog behind a small interface and makes the
// logger available through context helpers.
package logger
