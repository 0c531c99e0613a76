package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "login required") }, http.StatusUnauthorized, "unauthorized"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad body") }, http.StatusBadRequest, "bad_request"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "Invalid CSRF token") }, http.StatusForbidden, "forbidden"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "no attempt") }, http.StatusNotFound, "not_found"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "busy") }, http.StatusConflict, "conflict"},
		{"bad gateway", func(w http.ResponseWriter) { WriteBadGateway(w, "backend down") }, http.StatusBadGateway, "bad_gateway"},
		{"internal", func(w http.ResponseWriter) { WriteInternalServerError(w, "boom") }, http.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, Write(w, map[string]bool{"ok": true}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
