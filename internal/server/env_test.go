// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentVariables(t *testing.T) {
	t.Run("load environment variables", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "3000")
		t.Setenv("HTTP_HOST", "127.0.0.1")
		envVars, err := LoadServerConfig()
		require.NoError(t, err)
		require.Equal(t, 3000, envVars.HTTPPort)
		require.Equal(t, "127.0.0.1", envVars.HTTPHost)
		require.True(t, envVars.DisableStartupMessage)
		require.Equal(t, 5*time.Second, envVars.ShutdownTimeout)
	})

	t.Run("invalid shutdown timeout", func(t *testing.T) {
		t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "soon")
		_, err := LoadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "655350")
		_, err := LoadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("port not a number", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "http")
		_, err := LoadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})
}

func TestLoadValidateEnvironmentVariables(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		config Config
		valid  bool
	}{
		"negative port":           {config: Config{HTTPHost: "0.0.0.0", HTTPPort: -1}},
		"port too high":           {config: Config{HTTPHost: "0.0.0.0", HTTPPort: 655350}},
		"empty host":              {config: Config{HTTPPort: 3000}},
		"host with port":          {config: Config{HTTPHost: "localhost:3000", HTTPPort: 3000}},
		"negative timeout":        {config: Config{HTTPHost: "0.0.0.0", HTTPPort: 3000, ShutdownTimeout: -time.Second}},
		"valid port":              {config: Config{HTTPHost: "0.0.0.0", HTTPPort: 3000}, valid: true},
		"ipv6 host":               {config: Config{HTTPHost: "::1", HTTPPort: 3000}, valid: true},
		"valid with grace period": {config: Config{HTTPHost: "localhost", HTTPPort: 3000, ShutdownTimeout: time.Second}, valid: true},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := validateEnvironmentVariables(&test.config)
			if test.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrEnvVariablesNotValid)
		})
	}
}
