// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package loggerservice

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/logdispatch/internal/logging"
)

var (
	ErrEnvVariablesNotValid = errors.New("environment variables not valid")
)

// Config holds the settings of a Service.
type Config struct {
	LogsHome        string `env:"LOGS_HOME" envDefault:"logs"`
	DefaultLogLevel string `env:"DEFAULT_LOG_LEVEL" envDefault:"info"`

	// Fallback receives the entries of loggers whose resource is not a file.
	Fallback io.Writer `env:"-"`
}

// LoadConfig reads the service configuration from the environment.
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

// ValidateConfig reports every invalid value of envVars in one error and cleans LogsHome.
func ValidateConfig(envVars *Config) error {
	envError := make([]string, 0)

	if _, err := logging.ParseLevel(envVars.DefaultLogLevel); err != nil {
		envError = append(envError, "DEFAULT_LOG_LEVEL is not a valid log level")
	}

	if strings.TrimSpace(envVars.LogsHome) == "" {
		envError = append(envError, "LOGS_HOME must not be empty")
	} else {
		envVars.LogsHome = filepath.Clean(envVars.LogsHome)
	}

	if len(envError) > 0 {
		return fmt.Errorf("%w: %s", ErrEnvVariablesNotValid, strings.Join(envError, ", "))
	}
	return nil
}

func (c Config) defaultLevel() logging.Level {
	if c.DefaultLogLevel == "" {
		return logging.Info
	}

	level, err := logging.ParseLevel(c.DefaultLogLevel)
	if err != nil {
		return logging.Info
	}
	return level
}

func (c Config) fallback() io.Writer {
	if c.Fallback != nil {
		return c.Fallback
	}
	return os.Stderr
}
