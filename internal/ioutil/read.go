package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// DefaultSnippetLimit bounds how much of an error body ends up in a message
const DefaultSnippetLimit = 512

// Snippet reads at most limit bytes of an upstream response body and
// returns them on one line for an error message or log field. A body
// longer than limit is cut and marked with "...". A read failure is
// described instead of being dropped.
func Snippet(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}

	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}

	text := strings.Join(strings.Fields(string(body)), " ")
	if truncated {
		text += "..."
	}
	return text
}
