// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package info holds the name and the build metadata of logdispatch.
package info

var (
	// AppName is the name used for the binary, the status routes and the client identification.
	AppName = "logdispatch"
	// Version is set at build time, DEV for local builds.
	Version = "DEV"
	// BuildDate is set at build time in the YYYY-MM-DD format.
	BuildDate = ""
)

// UserAgent identifies logdispatch clients towards the server.
func UserAgent() string {
	return AppName + "/" + Version
}
