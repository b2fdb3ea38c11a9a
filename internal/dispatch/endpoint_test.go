// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/logging/fake"
	"github.com/mia-platform/logdispatch/internal/resource"
)

type consoleLine struct {
	stream string
	args   []any
}

type recordingSink struct {
	lines []consoleLine
}

func (s *recordingSink) Error(args ...any) { s.lines = append(s.lines, consoleLine{"error", args}) }
func (s *recordingSink) Warn(args ...any)  { s.lines = append(s.lines, consoleLine{"warn", args}) }
func (s *recordingSink) Info(args ...any)  { s.lines = append(s.lines, consoleLine{"info", args}) }
func (s *recordingSink) Log(args ...any)   { s.lines = append(s.lines, consoleLine{"log", args}) }

func newTestEndpoint(t *testing.T) (*Endpoint, *fake.Service, *recordingSink) {
	t.Helper()

	service := fake.NewService(t)
	sink := &recordingSink{}
	return NewEndpoint(service, sink), service, sink
}

func TestWriteBeforeCreateFails(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	id := resource.MustParse("file:///a.log")

	err := endpoint.Call(t.Context(), WriteLog{
		Resource: id,
		Records:  []logging.Record{{Level: logging.Info, Message: "hi"}},
	})
	require.ErrorIs(t, err, ErrLoggerNotFound)
	assert.Empty(t, service.Writes())
}

func TestCreateThenWrite(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()

	require.NoError(t, endpoint.Dispatch(ctx, CreateLoggerCommand, json.RawMessage(`["file:///a.log", {}]`)))
	require.NoError(t, endpoint.Dispatch(ctx, WriteLogCommand, json.RawMessage(`["file:///a.log", [[3, "hi"]]]`)))

	require.Len(t, service.Created, 1)
	assert.Equal(t, []fake.Write{{Resource: "file:///a.log", Level: logging.Info, Message: "hi"}}, service.Created[0].Writes)
	assert.Equal(t, []string{"file:///a.log"}, endpoint.Registry().Keys())
}

func TestIdentifiersAreComparedCanonically(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()

	require.NoError(t, endpoint.Dispatch(ctx, CreateLoggerCommand, json.RawMessage(`[{"scheme":"FILE","path":"/a.log"}, null]`)))
	require.NoError(t, endpoint.Dispatch(ctx, WriteLogCommand, json.RawMessage(`["file:///a.log", [[5, "boom"]]]`)))

	require.Len(t, service.Created, 1)
	assert.Len(t, service.Created[0].Writes, 1)
}

func TestCreateReplacesHandle(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()
	id := resource.MustParse("file:///a.log")
	first := logging.Options{Name: "first"}
	second := logging.Options{Name: "second"}

	require.NoError(t, endpoint.Call(ctx, CreateLogger{Resource: id, Options: first}))
	require.NoError(t, endpoint.Call(ctx, CreateLogger{Resource: id, Options: second}))
	require.NoError(t, endpoint.Call(ctx, WriteLog{Resource: id, Records: []logging.Record{{Level: logging.Debug, Message: "m"}}}))

	require.Len(t, service.Created, 2)
	assert.Empty(t, service.Created[0].Writes)
	assert.Equal(t, "second", service.Created[1].Options.Name)
	assert.Len(t, service.Created[1].Writes, 1)
	assert.Equal(t, 1, endpoint.Registry().Len())
}

func TestCreateFailureLeavesRegistryUntouched(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	service.CreateErr = assert.AnError

	err := endpoint.Call(t.Context(), CreateLogger{Resource: resource.MustParse("file:///a.log")})
	require.Same(t, assert.AnError, err)
	assert.Equal(t, 0, endpoint.Registry().Len())
}

func TestWritePreservesOrderAndAbortsOnFailure(t *testing.T) {
	t.Parallel()

	records := []logging.Record{
		{Level: logging.Trace, Message: "one"},
		{Level: logging.Warning, Message: "two"},
		{Level: logging.Error, Message: "three"},
		{Level: logging.Info, Message: "four"},
	}

	t.Run("every record in order", func(t *testing.T) {
		t.Parallel()

		endpoint, service, _ := newTestEndpoint(t)
		id := resource.MustParse("file:///ordered.log")
		require.NoError(t, endpoint.Call(t.Context(), CreateLogger{Resource: id}))
		require.NoError(t, endpoint.Call(t.Context(), WriteLog{Resource: id, Records: records}))

		writes := service.Created[0].Writes
		require.Len(t, writes, len(records))
		for i, record := range records {
			assert.Equal(t, record.Level, writes[i].Level)
			assert.Equal(t, record.Message, writes[i].Message)
		}
	})

	t.Run("failure aborts at the failing record", func(t *testing.T) {
		t.Parallel()

		endpoint, service, _ := newTestEndpoint(t)
		id := resource.MustParse("file:///failing.log")
		require.NoError(t, endpoint.Call(t.Context(), CreateLogger{Resource: id}))

		handle := service.Created[0]
		handle.FailAt = 2
		handle.Err = assert.AnError

		err := endpoint.Call(t.Context(), WriteLog{Resource: id, Records: records})
		require.Same(t, assert.AnError, err)
		assert.Len(t, handle.Writes, 2)
	})
}

func TestConsoleLogStreams(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		level          logging.Level
		expectedStream string
	}{
		"error":   {level: logging.Error, expectedStream: "error"},
		"warning": {level: logging.Warning, expectedStream: "warn"},
		"info":    {level: logging.Info, expectedStream: "info"},
		"debug":   {level: logging.Debug, expectedStream: "log"},
		"trace":   {level: logging.Trace, expectedStream: "log"},
		"off":     {level: logging.Off, expectedStream: "log"},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			endpoint, _, sink := newTestEndpoint(t)
			args := []any{"a", map[string]any{"b": 1}}
			require.NoError(t, endpoint.Call(t.Context(), ConsoleLog{Level: test.level, Args: args}))

			require.Len(t, sink.lines, 1)
			assert.Equal(t, test.expectedStream, sink.lines[0].stream)
			assert.Equal(t, args, sink.lines[0].args)
		})
	}
}

func TestConsoleLogDecodedValues(t *testing.T) {
	t.Parallel()

	endpoint, _, sink := newTestEndpoint(t)
	require.NoError(t, endpoint.Dispatch(t.Context(), ConsoleLogCommand, json.RawMessage(`[5, ["failed", 10.50, {"code": 1}]]`)))

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "error", sink.lines[0].stream)
	assert.Equal(t, []any{"failed", json.Number("10.50"), map[string]any{"code": json.Number("1")}}, sink.lines[0].args)
}

func TestDelegatedCommands(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()

	require.NoError(t, endpoint.Dispatch(ctx, SetLogLevelCommand, json.RawMessage(`["file:///a.log", 2]`)))
	require.NoError(t, endpoint.Dispatch(ctx, SetLogLevelCommand, json.RawMessage(`["file:///a.log", "error", 7]`)))
	require.NoError(t, endpoint.Dispatch(ctx, RegisterLoggerResourceCommand, json.RawMessage(`[{"resource":"file:///b.log","id":"b","name":"B"}, 3]`)))
	require.NoError(t, endpoint.Dispatch(ctx, DeregisterLoggerResourceCommand, json.RawMessage(`["file:///b.log"]`)))

	assert.Equal(t, []fake.LevelCall{
		{Resource: "file:///a.log", Level: logging.Debug, Scope: logging.GlobalScope},
		{Resource: "file:///a.log", Level: logging.Error, Scope: 7},
	}, service.LevelCalls)

	require.Len(t, service.RegisterCalls, 1)
	assert.Equal(t, "b", service.RegisterCalls[0].Descriptor.ID)
	assert.Equal(t, "file:///b.log", service.RegisterCalls[0].Descriptor.Resource.String())
	assert.Equal(t, logging.Scope(3), service.RegisterCalls[0].Scope)

	assert.Equal(t, []string{"file:///b.log"}, service.Deregistered)
}

func TestDelegatedErrorsArePropagated(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	service.CallErr = assert.AnError
	id := resource.MustParse("file:///a.log")

	require.Same(t, assert.AnError, endpoint.Call(t.Context(), SetLogLevel{Resource: id, Level: logging.Info}))
	require.Same(t, assert.AnError, endpoint.Call(t.Context(), RegisterLoggerResource{Descriptor: logging.ResourceDescriptor{Resource: id}}))
	require.Same(t, assert.AnError, endpoint.Call(t.Context(), DeregisterLoggerResource{Resource: id}))
}

func TestDeregisterKeepsHandle(t *testing.T) {
	t.Parallel()

	endpoint, _, _ := newTestEndpoint(t)
	id := resource.MustParse("file:///a.log")

	require.NoError(t, endpoint.Call(t.Context(), CreateLogger{Resource: id}))
	require.NoError(t, endpoint.Call(t.Context(), DeregisterLoggerResource{Resource: id}))
	require.NoError(t, endpoint.Call(t.Context(), WriteLog{Resource: id, Records: []logging.Record{{Level: logging.Info, Message: "still here"}}}))
}

func TestCreateWithUncanonicalAuthority(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	args := json.RawMessage(`[{"scheme":"file","authority":"a b","path":"/x.log"},{}]`)

	var err error
	require.NotPanics(t, func() {
		err = endpoint.Dispatch(t.Context(), CreateLoggerCommand, args)
	})
	require.ErrorIs(t, err, ErrInvalidArguments)
	require.ErrorIs(t, err, resource.ErrInvalidIdentifier)
	assert.Empty(t, service.Created)
	assert.Zero(t, endpoint.Registry().Len())
}

// blockingService holds the first CreateLogger call after the handle is created.
type blockingService struct {
	*fake.Service

	created chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingService) CreateLogger(ctx context.Context, id resource.Identifier, options logging.Options) (logging.Handle, error) {
	handle, err := s.Service.CreateLogger(ctx, id, options)
	if s.calls.Add(1) == 1 {
		close(s.created)
		<-s.release
	}
	return handle, err
}

func TestConcurrentCreatesKeepLastHandle(t *testing.T) {
	t.Parallel()

	service := &blockingService{
		Service: fake.NewService(t),
		created: make(chan struct{}),
		release: make(chan struct{}),
	}
	endpoint := NewEndpoint(service, &recordingSink{})
	id := resource.MustParse("file:///a.log")
	ctx := t.Context()

	first := make(chan error, 1)
	go func() { first <- endpoint.Call(ctx, CreateLogger{Resource: id, Options: logging.Options{Name: "first"}}) }()

	select {
	case <-service.created:
	case <-time.After(time.Second):
		require.FailNow(t, "first logger not created")
	}

	second := make(chan error, 1)
	go func() { second <- endpoint.Call(ctx, CreateLogger{Resource: id, Options: logging.Options{Name: "second"}}) }()

	assert.Never(t, func() bool { return len(second) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(service.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	handle, ok := endpoint.Registry().Get(id)
	require.True(t, ok)
	require.IsType(t, &fake.Handle{}, handle)
	assert.Equal(t, "second", handle.(*fake.Handle).Options.Name)

	require.NoError(t, endpoint.Call(ctx, WriteLog{Resource: id, Records: []logging.Record{{Level: logging.Error, Message: "hi"}}}))
	assert.Equal(t, []fake.Write{{Resource: "file:///a.log", Level: logging.Error, Message: "hi"}}, service.Writes())
}

func TestNilConsoleDiscardsValues(t *testing.T) {
	t.Parallel()

	endpoint := NewEndpoint(fake.NewService(t), nil)
	require.NotPanics(t, func() {
		require.NoError(t, endpoint.Call(t.Context(), ConsoleLog{Level: logging.Error, Args: []any{"dropped"}}))
	})
}

func TestUnknownNames(t *testing.T) {
	t.Parallel()

	endpoint, _, _ := newTestEndpoint(t)

	require.ErrorIs(t, endpoint.Dispatch(t.Context(), "createLoggers", json.RawMessage(`[]`)), ErrUnknownCommand)
	require.ErrorIs(t, endpoint.Call(t.Context(), nil), ErrUnknownCommand)

	_, err := endpoint.Subscribe(t.Context(), "onDidChangeEverything", nil)
	require.ErrorIs(t, err, ErrUnknownEvent)
	_, err = endpoint.Listen(t.Context(), nil)
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func receiveNotification(t *testing.T, feed interface {
	C() <-chan logging.Notification
}) logging.Notification {
	t.Helper()

	select {
	case notification, ok := <-feed.C():
		require.True(t, ok)
		return notification
	case <-time.After(time.Second):
		require.FailNow(t, "no notification received")
	}
	return nil
}

func requireNoNotification(t *testing.T, feed interface {
	C() <-chan logging.Notification
}) {
	t.Helper()

	select {
	case notification := <-feed.C():
		assert.Failf(t, "unexpected notification", "%#v", notification)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogLevelSubscriptionScopes(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()

	global, err := endpoint.Subscribe(ctx, LogLevelChangedEvent, nil)
	require.NoError(t, err)
	defer global.Cancel()

	scoped, err := endpoint.Subscribe(ctx, LogLevelChangedEvent, json.RawMessage(`2`))
	require.NoError(t, err)
	defer scoped.Cancel()

	other := logging.LevelChange{Resource: resource.MustParse("file:///a.log"), Level: logging.Debug, Scope: 1}
	mine := logging.LevelChange{Resource: resource.MustParse("file:///b.log"), Level: logging.Error, Scope: 2}
	service.EmitLevelChange(other)
	service.EmitLevelChange(mine)

	assert.Equal(t, other, receiveNotification(t, global))
	assert.Equal(t, mine, receiveNotification(t, global))
	assert.Equal(t, mine, receiveNotification(t, scoped))
	requireNoNotification(t, scoped)
}

func TestLoggerResourcesSubscriptionScopes(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)
	ctx := t.Context()

	global, err := endpoint.Listen(ctx, LoggerResourcesChanged{})
	require.NoError(t, err)
	defer global.Cancel()

	scoped, err := endpoint.Listen(ctx, LoggerResourcesChanged{Scope: 4})
	require.NoError(t, err)
	defer scoped.Cancel()

	change := logging.ResourcesChange{
		Added: []logging.ResourceDescriptor{{Resource: resource.MustParse("file:///c.log"), ID: "c"}},
		Scope: 9,
	}
	service.EmitResourcesChange(change)

	assert.Equal(t, change, receiveNotification(t, global))
	requireNoNotification(t, scoped)
}

func TestCancelReleasesServiceSubscription(t *testing.T) {
	t.Parallel()

	endpoint, service, _ := newTestEndpoint(t)

	feed, err := endpoint.Listen(t.Context(), LogLevelChanged{Scope: 1})
	require.NoError(t, err)
	require.Equal(t, 1, service.LevelSubscribers())

	feed.Cancel()
	assert.Equal(t, 0, service.LevelSubscribers())
}
