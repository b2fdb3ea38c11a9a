// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package loggerservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mia-platform/logdispatch/internal/event"
	"github.com/mia-platform/logdispatch/internal/logger"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

const (
	loggerName = "logdispatch:loggerservice"
)

// ErrServiceClosed is returned by the operations of a closed service.
var ErrServiceClosed = errors.New("logging service closed")

var _ logging.Service = &Service{}

type registration struct {
	descriptor logging.ResourceDescriptor
	scope      logging.Scope
}

// Service is an in-process logging.Service.
type Service struct {
	config       Config
	defaultLevel logging.Level

	mu            sync.RWMutex
	closed        bool
	handles       map[string]*handle
	levels        map[string]logging.Level
	registrations map[string]registration

	levelEvents    *event.Emitter[logging.LevelChange]
	resourceEvents *event.Emitter[logging.ResourcesChange]
}

// New returns a service writing file loggers under config.LogsHome.
func New(config Config) *Service {
	return &Service{
		config:         config,
		defaultLevel:   config.defaultLevel(),
		handles:        make(map[string]*handle),
		levels:         make(map[string]logging.Level),
		registrations:  make(map[string]registration),
		levelEvents:    event.NewEmitter[logging.LevelChange](0),
		resourceEvents: event.NewEmitter[logging.ResourcesChange](0),
	}
}

// CreateLogger opens a logger for id. A logger already open for the same resource is closed.
func (s *Service) CreateLogger(ctx context.Context, id resource.Identifier, options logging.Options) (logging.Handle, error) {
	log := logger.Named(ctx, loggerName)
	key := id.String()

	h := &handle{
		service:  s,
		resource: id,
		key:      key,
		options:  options,
	}

	out := s.config.fallback()
	if id.Scheme == "file" {
		path, err := resolvePath(s.config.LogsHome, id)
		if err != nil {
			return nil, err
		}
		h.path = path
		file, err := openLogFile(h.path)
		if err != nil {
			return nil, err
		}
		h.file = file
		out = file
	}

	writer, err := newEntryWriter(out, options)
	if err != nil {
		if h.file != nil {
			_ = h.file.Close()
		}
		return nil, err
	}
	h.writer = writer

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = h.close()
		return nil, ErrServiceClosed
	}
	previous := s.handles[key]
	s.handles[key] = h
	s.mu.Unlock()

	if previous != nil {
		if err := previous.close(); err != nil {
			log.Warn("error closing replaced logger", "resource", key, "error", err.Error())
		}
	}

	log.Debug("logger created", "resource", key, "path", h.path, "format", options.Format)
	return h, nil
}

// SetLogLevel stores level for id. A global scope is narrowed to the scope that registered id, if any.
func (s *Service) SetLogLevel(ctx context.Context, id resource.Identifier, level logging.Level, scope logging.Scope) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %s", logging.ErrInvalidLevel, level)
	}

	key := id.String()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	s.levels[key] = level
	if scope.IsGlobal() {
		if reg, ok := s.registrations[key]; ok {
			scope = reg.scope
		}
	}
	s.mu.Unlock()

	logger.Named(ctx, loggerName).Debug("log level changed", "resource", key, "level", level.String(), "scope", int(scope))
	s.levelEvents.Emit(logging.LevelChange{Resource: id, Level: level, Scope: scope})
	return nil
}

// RegisterLoggerResource stores the announcement of descriptor, replacing a previous one for the same resource.
func (s *Service) RegisterLoggerResource(ctx context.Context, descriptor logging.ResourceDescriptor, scope logging.Scope) error {
	if descriptor.Resource.IsZero() {
		return fmt.Errorf("%w: missing resource", resource.ErrInvalidIdentifier)
	}

	key := descriptor.Resource.String()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	s.registrations[key] = registration{descriptor: descriptor, scope: scope}
	s.mu.Unlock()

	logger.Named(ctx, loggerName).Debug("logger resource registered", "resource", key, "scope", int(scope))
	s.resourceEvents.Emit(logging.ResourcesChange{Added: []logging.ResourceDescriptor{descriptor}, Scope: scope})
	return nil
}

// DeregisterLoggerResource removes the announcement of id. Unknown resources are ignored.
func (s *Service) DeregisterLoggerResource(ctx context.Context, id resource.Identifier) error {
	key := id.String()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	reg, ok := s.registrations[key]
	delete(s.registrations, key)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	logger.Named(ctx, loggerName).Debug("logger resource deregistered", "resource", key)
	s.resourceEvents.Emit(logging.ResourcesChange{Removed: []logging.ResourceDescriptor{reg.descriptor}, Scope: reg.scope})
	return nil
}

// LoggerResources returns the announcements visible to scope, sorted by resource.
func (s *Service) LoggerResources(scope logging.Scope) []logging.ResourceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptors := make([]logging.ResourceDescriptor, 0, len(s.registrations))
	for _, reg := range s.registrations {
		if scope.IsGlobal() || reg.scope == scope {
			descriptors = append(descriptors, reg.descriptor)
		}
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Resource.String() < descriptors[j].Resource.String()
	})
	return descriptors
}

// LogLevel returns the effective level of a logger created for id with options.
func (s *Service) LogLevel(id resource.Identifier, options logging.Options) logging.Level {
	return s.effectiveLevel(id.String(), options)
}

func (s *Service) OnLogLevelChanged(scope logging.Scope) event.Feed[logging.LevelChange] {
	return s.levelEvents.Subscribe(func(change logging.LevelChange) bool {
		return scope.IsGlobal() || change.Scope == scope
	})
}

func (s *Service) OnLoggerResourcesChanged(scope logging.Scope) event.Feed[logging.ResourcesChange] {
	return s.resourceEvents.Subscribe(func(change logging.ResourcesChange) bool {
		return scope.IsGlobal() || change.Scope == scope
	})
}

// Close closes every open logger and ends every subscription.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := s.handles
	s.handles = make(map[string]*handle)
	s.mu.Unlock()

	s.levelEvents.Close()
	s.resourceEvents.Close()

	var errs []error
	for _, h := range handles {
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// effectiveLevel resolves, in order, the level set for the resource, the level of its
// announcement, the level of the logger options and the service default.
func (s *Service) effectiveLevel(key string, options logging.Options) logging.Level {
	if options.Always {
		return logging.Trace
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if level, ok := s.levels[key]; ok {
		return level
	}
	if reg, ok := s.registrations[key]; ok && reg.descriptor.LogLevel != nil {
		return *reg.descriptor.LogLevel
	}
	if options.LogLevel != nil {
		return *options.LogLevel
	}
	return s.defaultLevel
}
