package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to an API base URL. A base that already
// carries a path prefix, such as a GitHub Enterprise "/api/v3", keeps it.
// Query and fragment on the base are rejected since they would silently
// end up in front of the joined path.
func JoinPath(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("base URL %q must not carry a query or fragment", base)
	}

	u.Path = path.Join(append([]string{"/", u.Path}, segments...)...)
	if len(segments) > 0 && strings.HasSuffix(segments[len(segments)-1], "/") && u.Path != "/" {
		u.Path += "/"
	}
	return u.String(), nil
}
