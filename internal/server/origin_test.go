package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicyAllowsConfiguredOrigin(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080", "https://Chat.Example.com"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, policy.check(r))

	// Matching is case-insensitive on scheme and host.
	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, policy.check(r))
}

func TestOriginPolicyBlocksUnknownOrigin(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://evil.example.com")
	assert.False(t, policy.check(r))
}

func TestOriginPolicyBlocksMissingOrigin(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, policy.check(r))
}

func TestOriginPolicyWildcardAllowsEverything(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anywhere.example.com")
	assert.True(t, policy.check(r))
}

func TestOriginPolicyIgnoresInvalidConfigEntries(t *testing.T) {
	policy := newOriginPolicy([]string{"", "not a url", "http://valid.example.com"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://valid.example.com")
	assert.True(t, policy.check(r))
}
