// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logging describes the contract of the logging service the dispatch endpoint
// routes to: severity levels, log records, logger options and handles, resource
// announcements and the change notifications the service publishes.
package logging
