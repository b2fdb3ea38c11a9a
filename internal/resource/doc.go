// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package resource defines the canonical identity of a log target.
// Identifiers travel on the wire either as a URI string or as its components and are
// always compared through their canonical string form.
package resource
