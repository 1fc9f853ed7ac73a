// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// originPolicy holds the normalized origin allow-list for the upgrader. A
// configured "*" entry allows every origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      zerolog.Logger
}

func newOriginPolicy(origins []string, log zerolog.Logger) *originPolicy {
	policy := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	if _, exists := p.allowed[normalized]; exists {
		return true
	}

	p.log.Warn().Str("origin", originHeader).Msg("blocked WebSocket connection from disallowed origin")
	return false
}
