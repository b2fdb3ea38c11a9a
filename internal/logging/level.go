// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLevel is returned when a value does not name a known severity.
var ErrInvalidLevel = errors.New("invalid log level")

// Level is the severity of a log record. The numeric values are the ones used on the wire.
type Level int

const (
	Off Level = iota
	Trace
	Debug
	Info
	Warning
	Error
)

var levelNames = map[Level]string{
	Off:     "off",
	Trace:   "trace",
	Debug:   "debug",
	Info:    "info",
	Warning: "warning",
	Error:   "error",
}

// ParseLevel returns the level named by s, matching names case-insensitively.
// "warn" is accepted as an alias of "warning".
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warn" {
		return Warning, nil
	}

	for level, levelName := range levelNames {
		if levelName == name {
			return level, nil
		}
	}

	if value, err := strconv.Atoi(name); err == nil && Level(value).Valid() {
		return Level(value), nil
	}

	return Off, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "Level(" + strconv.Itoa(int(l)) + ")"
}

// Enabled reports whether a record of level l passes the threshold. Off never passes
// and an Off threshold lets nothing through.
func (l Level) Enabled(threshold Level) bool {
	if l == Off || threshold == Off {
		return false
	}
	return l >= threshold
}

// UnmarshalJSON accepts both the numeric wire value and the level name.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidLevel, err)
		}

		level, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = level
		return nil
	}

	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLevel, err)
	}
	if !Level(value).Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, value)
	}

	*l = Level(value)
	return nil
}

// UnmarshalText lets levels be read from YAML documents and environment variables.
func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
