package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		segments []string
		want     string
	}{
		{name: "host only", base: "https://api.github.com", segments: []string{"user"}, want: "https://api.github.com/user"},
		{name: "enterprise prefix", base: "https://github.example.com/api/v3", segments: []string{"/user/orgs"}, want: "https://github.example.com/api/v3/user/orgs"},
		{name: "base trailing slash", base: "https://www.googleapis.com/", segments: []string{"oauth2", "v2", "userinfo"}, want: "https://www.googleapis.com/oauth2/v2/userinfo"},
		{name: "trailing slash kept", base: "https://example.com", segments: []string{"api/"}, want: "https://example.com/api/"},
		{name: "no segments", base: "https://example.com/base", want: "https://example.com/base"},
		{name: "dot segments cleaned", base: "https://example.com/a", segments: []string{"../b"}, want: "https://example.com/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.segments...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinPath_RejectsQueryOnBase(t *testing.T) {
	_, err := JoinPath("https://example.com/api?x=1", "user")
	assert.Error(t, err)

	_, err = JoinPath("://bad", "user")
	assert.Error(t, err)
}
