package middleware

import (
	"net/http"
	"strings"

	"github.com/kozaktomas/checkpoint/internal/config"
)

// originPolicy decides which browser origins may call the API with credentials.
type originPolicy struct {
	allowed        map[string]struct{}
	allowLocalhost bool
}

func newOriginPolicy(cfg config.WebConfig) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{}), allowLocalhost: cfg.AllowLocalhost}
	for _, o := range cfg.AllowedOrigins {
		p.allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return p
}

func isLocalhostOrigin(origin string) bool {
	for _, base := range []string{"http://localhost", "https://localhost"} {
		if rest, ok := strings.CutPrefix(origin, base); ok && (rest == "" || strings.HasPrefix(rest, ":")) {
			return true
		}
	}
	return false
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowLocalhost && isLocalhostOrigin(origin) {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// CORS answers preflight requests and sets credentialed CORS headers for allowed origins.
// The checkpoint desk UI posts multipart probes, so Content-Type and Authorization must pass.
func CORS(cfg config.WebConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if policy.allows(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets headers for a JSON API that also serves reference images.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
