// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerInContext(t *testing.T) {
	t.Parallel()

	stored := NewLogger(new(bytes.Buffer))
	testCases := map[string]struct {
		ctx      context.Context
		expected Logger
	}{
		"nil context returns the null logger": {
			ctx:      nil,
			expected: nullLogger,
		},
		"empty context returns the null logger": {
			ctx:      context.Background(),
			expected: nullLogger,
		},
		"context with a logger returns that logger": {
			ctx:      WithContext(context.Background(), stored),
			expected: stored,
		},
		"context with another value returns the null logger": {
			ctx:      context.WithValue(context.Background(), struct{}{}, stored),
			expected: nullLogger,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()
			assert.Same(t, test.expected, FromContext(test.ctx))
		})
	}
}

func TestNamed(t *testing.T) {
	t.Parallel()

	buffer := new(bytes.Buffer)
	ctx := WithContext(t.Context(), NewLogger(buffer))

	Named(ctx, "logdispatch:test").Info("named line")
	require.Contains(t, buffer.String(), `"@module":"logdispatch:test"`)
	require.Contains(t, buffer.String(), `"@message":"named line"`)

	assert.NotPanics(t, func() {
		Named(t.Context(), "discarded").Error("nobody listens")
	})
}
