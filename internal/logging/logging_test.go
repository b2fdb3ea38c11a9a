// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logging_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/logging/fake"
	"github.com/mia-platform/logdispatch/internal/resource"
)

func TestLevelStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "off", logging.Off.String())
	assert.Equal(t, "trace", logging.Trace.String())
	assert.Equal(t, "warning", logging.Warning.String())
	assert.Equal(t, "Level(42)", logging.Level(42).String())

	testCases := map[string]struct {
		input    string
		expected logging.Level
		valid    bool
	}{
		"name":          {input: "Debug", expected: logging.Debug, valid: true},
		"warn alias":    {input: "WARN", expected: logging.Warning, valid: true},
		"numeric value": {input: "5", expected: logging.Error, valid: true},
		"unknown name":  {input: "verbose"},
		"out of range":  {input: "9"},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			level, err := logging.ParseLevel(test.input)
			if !test.valid {
				require.ErrorIs(t, err, logging.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, level)
		})
	}
}

func TestLevelEnabled(t *testing.T) {
	t.Parallel()

	assert.True(t, logging.Error.Enabled(logging.Info))
	assert.True(t, logging.Info.Enabled(logging.Info))
	assert.False(t, logging.Debug.Enabled(logging.Info))
	assert.False(t, logging.Error.Enabled(logging.Off))
	assert.False(t, logging.Off.Enabled(logging.Trace))
}

func TestRecordJSON(t *testing.T) {
	t.Parallel()

	var records []logging.Record
	require.NoError(t, json.Unmarshal([]byte(`[[3,"hi"],["error","boom"]]`), &records))
	assert.Equal(t, []logging.Record{
		{Level: logging.Info, Message: "hi"},
		{Level: logging.Error, Message: "boom"},
	}, records)

	encoded, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"hi"]`, string(encoded))

	var record logging.Record
	require.ErrorIs(t, json.Unmarshal([]byte(`[3]`), &record), logging.ErrInvalidRecord)
	require.ErrorIs(t, json.Unmarshal([]byte(`[12,"x"]`), &record), logging.ErrInvalidRecord)
}

func TestOptionsJSON(t *testing.T) {
	t.Parallel()

	t.Run("known keys and verbatim payload", func(t *testing.T) {
		t.Parallel()

		payload := `{"name":"Main","logLevel":2,"hidden":true,"format":"json","extra":{"a":1}}`
		var options logging.Options
		require.NoError(t, json.Unmarshal([]byte(payload), &options))

		assert.Equal(t, "Main", options.Name)
		require.NotNil(t, options.LogLevel)
		assert.Equal(t, logging.Debug, *options.LogLevel)
		assert.True(t, options.Hidden)
		assert.Equal(t, "json", options.Format)

		encoded, err := json.Marshal(options)
		require.NoError(t, err)
		assert.JSONEq(t, payload, string(encoded))
	})

	t.Run("always level", func(t *testing.T) {
		t.Parallel()

		var options logging.Options
		require.NoError(t, json.Unmarshal([]byte(`{"logLevel":"always"}`), &options))
		assert.True(t, options.Always)
		assert.Nil(t, options.LogLevel)
	})

	t.Run("built options are encoded", func(t *testing.T) {
		t.Parallel()

		level := logging.Warning
		encoded, err := json.Marshal(logging.Options{Name: "x", LogLevel: &level})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"x","logLevel":4}`, string(encoded))
	})

	t.Run("null options", func(t *testing.T) {
		t.Parallel()

		var options logging.Options
		require.NoError(t, json.Unmarshal([]byte(`null`), &options))
		assert.Equal(t, logging.Options{}, options)
	})
}

func TestWriteRejectsInvalidLevels(t *testing.T) {
	t.Parallel()

	service := fake.NewService(t)
	handle, err := service.CreateLogger(t.Context(), resource.MustParse("file:///a.log"), logging.Options{})
	require.NoError(t, err)

	require.NoError(t, logging.Write(t.Context(), handle, logging.Record{Level: logging.Info, Message: "hi"}))
	require.ErrorIs(t, logging.Write(t.Context(), handle, logging.Record{Level: logging.Off, Message: "no"}), logging.ErrInvalidLevel)

	assert.Equal(t, []fake.Write{{Resource: "file:///a.log", Level: logging.Info, Message: "hi"}}, service.Writes())
}
