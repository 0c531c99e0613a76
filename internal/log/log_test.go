package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "error", want: "error"},
		{input: "WARN", want: "warn"},
		{input: "warning", want: "warn"},
		{input: "", want: "info"},
		{input: "debug", want: "debug"},
		{input: "trace", want: "trace"},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(original) })

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, "debug", GetLogLevel())

	assert.Error(t, SetLogLevel("loud"))
	assert.Equal(t, "debug", GetLogLevel())
}

func TestTraceSuppressedAboveTraceLevel(t *testing.T) {
	original := GetLogLevel()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		_ = SetLogLevel(original)
	})

	require.NoError(t, SetLogLevel("info"))
	buf.Reset()
	LogTraceWithFields("popup", "tick", map[string]any{"attempt": "a1"})
	assert.Empty(t, buf.String())

	require.NoError(t, SetLogLevel("trace"))
	buf.Reset()
	LogTraceWithFields("popup", "tick", map[string]any{"attempt": "a1"})
	assert.Contains(t, buf.String(), "TRACE")
	assert.Contains(t, buf.String(), "component=popup")
	assert.Contains(t, buf.String(), "attempt=a1")
}
