// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

var (
	ErrEnvVariablesNotValid = errors.New("environment variables not valid")
)

var supportedNetworks = []string{"tcp", "tcp4", "tcp6", "unix"}

// Config holds the listening addresses of the transport.
type Config struct {
	Network string `env:"RPC_NETWORK" envDefault:"tcp"`
	Address string `env:"RPC_ADDRESS" envDefault:"127.0.0.1:7070"`
	// WebsocketAddress enables the websocket listener when not empty.
	WebsocketAddress string `env:"WS_ADDRESS"`
	// AllowedOrigins lists the browser origins accepted by the websocket listener
	// in addition to the origin matching the request host.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// LoadConfig reads the transport configuration from the environment.
func LoadConfig() (*Config, error) {
	var envVars Config
	if err := env.Parse(&envVars); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEnvVariablesNotValid, err.Error())
	}

	if err := ValidateConfig(&envVars); err != nil {
		return nil, err
	}
	return &envVars, nil
}

// ValidateConfig reports every invalid value of config in one error.
func ValidateConfig(config *Config) error {
	envError := make([]string, 0)

	if !slices.Contains(supportedNetworks, config.Network) {
		envError = append(envError, fmt.Sprintf("RPC_NETWORK must be one of %s", strings.Join(supportedNetworks, ", ")))
	}
	if strings.TrimSpace(config.Address) == "" {
		envError = append(envError, "RPC_ADDRESS must not be empty")
	}
	if config.WebsocketAddress != "" {
		if _, _, err := net.SplitHostPort(config.WebsocketAddress); err != nil {
			envError = append(envError, "WS_ADDRESS is not a valid host:port address")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if parsed, err := url.Parse(origin); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			envError = append(envError, fmt.Sprintf("WS_ALLOWED_ORIGINS contains an invalid origin %q", origin))
		}
	}

	if len(envError) > 0 {
		return fmt.Errorf("%w: %s", ErrEnvVariablesNotValid, strings.Join(envError, ", "))
	}
	return nil
}
