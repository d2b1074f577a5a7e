package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const agentIDKey contextKey = "agent_id"

// AgentIDFromContext returns the agent ID set by AgentAuth, if any.
func AgentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(agentIDKey).(string)
	return id
}

type Middleware struct {
	tokens *AgentTokens
}

// NewMiddleware builds the agent auth middleware. A nil tokens disables auth.
func NewMiddleware(tokens *AgentTokens) *Middleware {
	return &Middleware{tokens: tokens}
}

// AgentAuth verifies the agent token from the Authorization header or, since
// browsers can't set headers on a WebSocket upgrade, the token query parameter.
func (m *Middleware) AgentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		agentID, err := m.tokens.Verify(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), agentIDKey, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequestLogger logs every request before passing it on.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			logger.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr, "user_agent", r.UserAgent())
			h.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
