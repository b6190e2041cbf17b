package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"chatsync/pkg/utils"
)

type ctxKey int

const userKey ctxKey = 0

// UserIDFromContext returns the authenticated user id placed by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(userKey)
	s, ok := v.(string)
	return s, ok && s != ""
}

// WithUser injects a user id; used by the websocket handler which
// authenticates during the upgrade handshake.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// Middleware wraps authenticated routes: CORS headers, preflight,
// per-caller rate limiting, bearer verification and context injection.
type Middleware struct {
	svc     *Service
	pool    *limiterPool
	origins []string
}

// NewMiddleware builds the HTTP gate. origins lists allowed CORS origins;
// "*" allows all.
func NewMiddleware(svc *Service, rps float64, burst int, origins []string) *Middleware {
	return &Middleware{svc: svc, pool: newLimiterPool(rps, burst), origins: origins}
}

func (m *Middleware) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, o := range m.origins {
		if o == "*" {
			return "*"
		}
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (m *Middleware) cors(w http.ResponseWriter, r *http.Request) {
	if ao := m.allowOrigin(r.Header.Get("Origin")); ao != "" {
		w.Header().Set("Access-Control-Allow-Origin", ao)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	}
}

// BearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for websocket dials where custom
// headers are awkward.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func limiterKey(r *http.Request, token string) string {
	if token != "" {
		return token
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Public wraps unauthenticated routes (register, login) with CORS and
// rate limiting only.
func (m *Middleware) Public(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.cors(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !m.pool.Allow(limiterKey(r, "")) {
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require wraps routes that need a valid bearer token.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.cors(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		token := BearerToken(r)
		if !m.pool.Allow(limiterKey(r, token)) {
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		userID, err := m.svc.Verify(token)
		if err != nil {
			utils.JSONError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
