// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"sync"
	"testing"

	"github.com/mia-platform/logdispatch/internal/event"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

var _ logging.Service = &Service{}

// Write is a record observed by a fake handle.
type Write struct {
	Resource string
	Level    logging.Level
	Message  string
}

// LevelCall records a SetLogLevel invocation.
type LevelCall struct {
	Resource string
	Level    logging.Level
	Scope    logging.Scope
}

// RegisterCall records a RegisterLoggerResource invocation.
type RegisterCall struct {
	Descriptor logging.ResourceDescriptor
	Scope      logging.Scope
}

// Service is an in-memory logging.Service recording every call it receives.
// Level and resource notifications are published only when the test emits them.
type Service struct {
	tb testing.TB

	// CreateErr, when set, is returned by CreateLogger.
	CreateErr error
	// CallErr, when set, is returned by the level and resource operations.
	CallErr error

	lock          sync.Mutex
	Created       []*Handle
	LevelCalls    []LevelCall
	RegisterCalls []RegisterCall
	Deregistered  []string

	levels    *event.Emitter[logging.LevelChange]
	resources *event.Emitter[logging.ResourcesChange]
	writes    []Write
}

// NewService returns an empty fake service.
func NewService(tb testing.TB) *Service {
	tb.Helper()

	return &Service{
		tb:        tb,
		levels:    event.NewEmitter[logging.LevelChange](0),
		resources: event.NewEmitter[logging.ResourcesChange](0),
	}
}

func (s *Service) CreateLogger(_ context.Context, id resource.Identifier, options logging.Options) (logging.Handle, error) {
	s.tb.Helper()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	handle := &Handle{
		service:    s,
		resource:   id,
		Options:    options,
		FailAt:     -1,
		Generation: len(s.Created),
	}
	s.Created = append(s.Created, handle)
	return handle, nil
}

func (s *Service) SetLogLevel(_ context.Context, id resource.Identifier, level logging.Level, scope logging.Scope) error {
	s.tb.Helper()
	if s.CallErr != nil {
		return s.CallErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.LevelCalls = append(s.LevelCalls, LevelCall{Resource: id.String(), Level: level, Scope: scope})
	return nil
}

func (s *Service) RegisterLoggerResource(_ context.Context, descriptor logging.ResourceDescriptor, scope logging.Scope) error {
	s.tb.Helper()
	if s.CallErr != nil {
		return s.CallErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.RegisterCalls = append(s.RegisterCalls, RegisterCall{Descriptor: descriptor, Scope: scope})
	return nil
}

func (s *Service) DeregisterLoggerResource(_ context.Context, id resource.Identifier) error {
	s.tb.Helper()
	if s.CallErr != nil {
		return s.CallErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.Deregistered = append(s.Deregistered, id.String())
	return nil
}

// OnLogLevelChanged returns every level change for the global scope, only the matching ones otherwise.
func (s *Service) OnLogLevelChanged(scope logging.Scope) event.Feed[logging.LevelChange] {
	s.tb.Helper()
	return s.levels.Subscribe(func(change logging.LevelChange) bool {
		return scope.IsGlobal() || change.Scope == scope
	})
}

// OnLoggerResourcesChanged returns every resource change for the global scope, only the matching ones otherwise.
func (s *Service) OnLoggerResourcesChanged(scope logging.Scope) event.Feed[logging.ResourcesChange] {
	s.tb.Helper()
	return s.resources.Subscribe(func(change logging.ResourcesChange) bool {
		return scope.IsGlobal() || change.Scope == scope
	})
}

// EmitLevelChange publishes change to the level subscribers.
func (s *Service) EmitLevelChange(change logging.LevelChange) {
	s.levels.Emit(change)
}

// EmitResourcesChange publishes change to the resource subscribers.
func (s *Service) EmitResourcesChange(change logging.ResourcesChange) {
	s.resources.Emit(change)
}

// LevelSubscribers returns the number of live level subscriptions.
func (s *Service) LevelSubscribers() int {
	return s.levels.Len()
}

// ResourceSubscribers returns the number of live resource subscriptions.
func (s *Service) ResourceSubscribers() int {
	return s.resources.Len()
}

// Writes returns every record written through the handles of this service, in order.
func (s *Service) Writes() []Write {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Write(nil), s.writes...)
}

var _ logging.Handle = &Handle{}

// Handle records the entries written to it.
type Handle struct {
	service  *Service
	resource resource.Identifier

	Options logging.Options
	// Generation is the creation index of the handle in its service.
	Generation int
	// FailAt makes the write with that index fail with Err; -1 disables it.
	FailAt int
	// Err is the error returned by the failing write.
	Err error

	Writes []Write
}

func (h *Handle) Resource() resource.Identifier {
	return h.resource
}

func (h *Handle) Log(_ context.Context, level logging.Level, message string) error {
	h.service.lock.Lock()
	defer h.service.lock.Unlock()

	if h.FailAt == len(h.Writes) {
		return h.Err
	}

	write := Write{Resource: h.resource.String(), Level: level, Message: message}
	h.Writes = append(h.Writes, write)
	h.service.writes = append(h.service.writes, write)
	return nil
}
