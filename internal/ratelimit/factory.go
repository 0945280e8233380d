package ratelimit

import (
	"net/http"
	"strings"

	"github.com/onnwee/bastion/internal/auth"
)

// NewIPLimiter builds a single-rule middleware keyed by client IP. The rule
// applies to every request passing through the returned handler chain.
func NewIPLimiter(store WindowStore, cfg RuleConfig, opts ...func(*Options)) *Limiter {
	return newSingleRuleLimiter(store, Rule{
		Name:   "ip",
		Config: cfg,
	}, opts...)
}

// NewUserLimiter builds a single-rule middleware keyed by the authenticated
// subject of a bearer token, validated by tokens. Requests without a valid
// token fall back to client-IP identity.
func NewUserLimiter(store WindowStore, cfg RuleConfig, tokens *auth.TokenService, opts ...func(*Options)) *Limiter {
	cfg.KeyFunc = UserKeyFunc(tokens)
	return newSingleRuleLimiter(store, Rule{
		Name:   "user",
		Config: cfg,
	}, opts...)
}

// UserKeyFunc resolves identity from a validated bearer token subject,
// falling back to client IP when the credential is absent or unparseable.
func UserKeyFunc(tokens *auth.TokenService) KeyFunc {
	return func(r *http.Request) string {
		if subject := bearerSubject(r, tokens); subject != "" {
			return "user:" + subject
		}
		return "ip:" + ClientIP(r)
	}
}

// bearerSubject extracts and validates the Authorization bearer token,
// returning its subject or "".
func bearerSubject(r *http.Request, tokens *auth.TokenService) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	claims, err := tokens.Validate(header[len(prefix):])
	if err != nil {
		return ""
	}
	return claims.Subject
}

// newSingleRuleLimiter wires one rule into a limiter without a background
// sweep; callers embedding these helpers usually run a full Limiter
// elsewhere and do not need a second sweeper.
func newSingleRuleLimiter(store WindowStore, ru Rule, opts ...func(*Options)) *Limiter {
	o := Options{
		Store:         store,
		Rules:         []Rule{ru},
		SweepInterval: 0,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}
