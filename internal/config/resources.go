// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package config loads the logger resources announced when the server starts.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

const (
	ResourceField = "resource"
	IDField       = "id"
)

var (
	// ErrParsing reports failures that occur while decoding resource files.
	ErrParsing = errors.New("error parsing")
)

// ResourceConfig is one logger resource announcement. A file can hold many of them
// as separate YAML documents.
type ResourceConfig struct {
	Resource  string `json:"resource" yaml:"resource"`
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	Hidden    bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	When      string `json:"when,omitempty" yaml:"when,omitempty"`
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"`
	Scope     int    `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Descriptor converts the configuration into the announcement and the scope it belongs to.
func (c *ResourceConfig) Descriptor() (logging.ResourceDescriptor, logging.Scope, error) {
	id, err := resource.Parse(c.Resource)
	if err != nil {
		return logging.ResourceDescriptor{}, logging.GlobalScope, err
	}

	descriptor := logging.ResourceDescriptor{
		Resource:  id,
		ID:        c.ID,
		Name:      c.Name,
		Hidden:    c.Hidden,
		When:      c.When,
		Extension: c.Extension,
	}

	if c.LogLevel != "" {
		level, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return logging.ResourceDescriptor{}, logging.GlobalScope, err
		}
		descriptor.LogLevel = &level
	}

	return descriptor, logging.Scope(c.Scope), nil
}

func (c *ResourceConfig) validate() []string {
	errorsList := []string{}

	missingFields := []string{}
	if c.Resource == "" {
		missingFields = append(missingFields, ResourceField)
	}
	if c.ID == "" {
		missingFields = append(missingFields, IDField)
	}
	if len(missingFields) > 0 {
		errorsList = append(errorsList, "missing required fields: "+strings.Join(missingFields, ", "))
	}

	if c.Resource != "" {
		if _, err := resource.Parse(c.Resource); err != nil {
			errorsList = append(errorsList, fmt.Sprintf("invalid '%s': %s", ResourceField, err))
		}
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			errorsList = append(errorsList, fmt.Sprintf("invalid 'logLevel': %s", err))
		}
	}
	if c.Scope < 0 {
		errorsList = append(errorsList, "'scope' must not be negative")
	}

	return errorsList
}

// NewResourceConfigsFromPath parses the file at path and returns the resource
// announcements it contains. It reports failures encountered while reading or decoding the data.
func NewResourceConfigsFromPath(path string) ([]*ResourceConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return newResourceConfigs(path, file)
}

func newResourceConfigs(path string, reader io.Reader) ([]*ResourceConfig, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	configs := make([]*ResourceConfig, 0)
	for {
		config := new(ResourceConfig)
		err := decoder.Decode(&config)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("%w %q: %w", ErrParsing, path, err)
		}

		// Skip empty documents.
		if config == nil {
			continue
		}

		if errorsList := config.validate(); len(errorsList) > 0 {
			return nil, fmt.Errorf("%w %q: %s", ErrParsing, path, strings.Join(errorsList, "; "))
		}

		configs = append(configs, config)
	}

	return configs, nil
}
