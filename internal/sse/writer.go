package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WriteMessage writes a SSE message to the response writer
func WriteMessage(w http.ResponseWriter, flusher http.Flusher, data any) error {
	return WriteEvent(w, flusher, "", data)
}

// WriteEvent writes a named SSE event. An empty name writes an unnamed
// message, which clients receive as "message".
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

// WriteComment writes a comment line, used as a keepalive
func WriteComment(w http.ResponseWriter, flusher http.Flusher, text string) error {
	if _, err := io.WriteString(w, ": "+text+"\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
