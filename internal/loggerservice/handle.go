// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package loggerservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

// Supported values of the format logger option.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

var (
	// ErrUnsupportedFormat is returned when a logger is created with an unknown format.
	ErrUnsupportedFormat = errors.New("unsupported log format")
	// ErrHandleClosed is returned when writing to a logger that was replaced or closed.
	ErrHandleClosed = errors.New("logger closed")
	// ErrOpenLogFile is returned when the file of a logger cannot be opened.
	ErrOpenLogFile = errors.New("cannot open log file")
	// ErrOutsideLogsHome is returned for file resources resolving outside the logs home.
	ErrOutsideLogsHome = errors.New("log file outside the logs home")
)

// entryWriter encodes single entries on the output of a handle.
type entryWriter interface {
	write(level logging.Level, message string) error
}

type hclogWriter struct {
	logger hclog.Logger
}

func (w hclogWriter) write(level logging.Level, message string) error {
	w.logger.Log(hclogLevel(level), message)
	return nil
}

func hclogLevel(level logging.Level) hclog.Level {
	switch level {
	case logging.Trace:
		return hclog.Trace
	case logging.Debug:
		return hclog.Debug
	case logging.Info:
		return hclog.Info
	case logging.Warning:
		return hclog.Warn
	case logging.Error:
		return hclog.Error
	default:
		return hclog.Off
	}
}

// Entry is the record written by the cbor format.
type Entry struct {
	Time    time.Time `cbor:"time"`
	Logger  string    `cbor:"logger,omitempty"`
	Level   string    `cbor:"level"`
	Message string    `cbor:"message"`
}

type cborWriter struct {
	mu      sync.Mutex
	name    string
	encoder *cbor.Encoder
}

func (w *cborWriter) write(level logging.Level, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(Entry{
		Time:    time.Now().UTC(),
		Logger:  w.name,
		Level:   level.String(),
		Message: message,
	})
}

func newEntryWriter(out io.Writer, options logging.Options) (entryWriter, error) {
	format := strings.ToLower(options.Format)
	switch format {
	case "", FormatText, FormatJSON:
		return hclogWriter{
			logger: hclog.New(&hclog.LoggerOptions{
				Name:       options.Name,
				Level:      hclog.Trace,
				Output:     out,
				JSONFormat: format == FormatJSON,
				Color:      hclog.ColorOff,
			}),
		}, nil
	case FormatCBOR:
		return &cborWriter{name: options.Name, encoder: cbor.NewEncoder(out)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, options.Format)
	}
}

// handle is a logger bound to one resource. The effective level is looked up
// on every write so that level changes apply to loggers already created.
type handle struct {
	service  *Service
	resource resource.Identifier
	key      string
	options  logging.Options
	path     string

	mu     sync.Mutex
	closed bool
	file   io.Closer
	writer entryWriter
}

func (h *handle) Resource() resource.Identifier {
	return h.resource
}

func (h *handle) Log(_ context.Context, level logging.Level, message string) error {
	if !level.Enabled(h.service.effectiveLevel(h.key, h.options)) {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: %s", ErrHandleClosed, h.resource)
	}
	return h.writer.write(level, message)
}

func (h *handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	h.closed = true
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}

// resolvePath returns the file a file resource writes to. Relative paths are placed under home.
// resolvePath returns the path of the file resource id inside home.
// Relative paths are joined to home; absolute ones must already be inside it.
func resolvePath(home string, id resource.Identifier) (string, error) {
	filename, err := id.Filename()
	if err != nil {
		return "", err
	}

	root, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOpenLogFile, err)
	}

	path := filepath.Clean(filename)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLogsHome, id)
	}
	return path, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenLogFile, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenLogFile, err)
	}
	return file, nil
}
