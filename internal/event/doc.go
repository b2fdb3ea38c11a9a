// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package event provides typed publish/subscribe primitives.
// An Emitter fans values out to every live Feed; a Feed is a cancellable stream of values
// that stays open until its subscriber cancels it or the emitter is closed.
package event
