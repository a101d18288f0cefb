package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fleetops/herald/internal/model"
)

// AdminKeyHeader carries the management credential.
const AdminKeyHeader = "X-Herald-Key"

// requireAdmin wraps management handlers. With no admin key configured
// the check is skipped entirely (dev mode).
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.currentAdminKey()
		if key != "" {
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid admin key")
				return
			}
		}
		next(w, r)
	}
}

// bearerToken extracts the sidecar token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// requireAgent resolves the request's bearer token and checks it is
// scoped to agentID. Missing or unknown token is 401; a valid token for
// a different agent is 403.
func (s *Server) requireAgent(w http.ResponseWriter, r *http.Request, agentID string) (model.Agent, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return model.Agent{}, false
	}
	agent, ok := s.registry.ResolveToken(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown token")
		return model.Agent{}, false
	}
	if agentID != "" && agent.AgentID != agentID {
		writeError(w, http.StatusForbidden, "token not valid for this agent")
		return model.Agent{}, false
	}
	return agent, true
}
