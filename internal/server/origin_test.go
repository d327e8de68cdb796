package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

// TestOriginPolicy verifies allow-list matching, case-insensitive
// normalization, the wildcard, and rejection of missing or malformed origins.
func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact match", []string{"http://chat.example.com"}, "http://chat.example.com", true},
		{"case insensitive", []string{"http://chat.example.com"}, "HTTP://Chat.Example.COM", true},
		{"not listed", []string{"http://chat.example.com"}, "http://evil.example.com", false},
		{"wildcard", []string{"*"}, "http://anything.example.com", true},
		{"missing origin", []string{"*"}, "", false},
		{"malformed origin", []string{"*"}, "not a url", false},
		{"empty allow list", nil, "http://chat.example.com", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			policy := newOriginPolicy(tc.allowed, zap.NewNop())
			assert.Equal(t, tc.want, policy.check(requestWithOrigin(tc.origin)))
		})
	}
}

// TestOriginPolicySkipsInvalidConfig verifies that unusable entries in the
// configured list are ignored rather than silently allowed.
func TestOriginPolicySkipsInvalidConfig(t *testing.T) {
	policy := newOriginPolicy([]string{"", "   ", "nonsense"}, zap.NewNop())
	assert.False(t, policy.check(requestWithOrigin("http://nonsense")))
}
