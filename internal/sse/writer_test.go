package sse

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEvent(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteEvent(w, w, "notification", map[string]string{"message": "hi"}))
	assert.Equal(t, "event: notification\ndata: {\"message\":\"hi\"}\n\n", w.Body.String())
	assert.True(t, w.Flushed)
}

func TestWriteMessage(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteMessage(w, w, []int{1, 2}))
	assert.Equal(t, "data: [1,2]\n\n", w.Body.String())
}

func TestWriteComment(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteComment(w, w, "ping"))
	assert.Equal(t, ": ping\n\n", w.Body.String())
}

func TestWriteEvent_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	assert.Error(t, WriteEvent(w, w, "x", make(chan int)))
	assert.Empty(t, w.Body.String())
}
