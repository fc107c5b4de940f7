package apiServer

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cuer-ai/memory-palace/internal/storage"
	"github.com/cuer-ai/memory-palace/pkg/types"
)

// authContext is the resolved identity of a request: either the palace
// owner (the palace id used as a bearer token) or a guest credential.
type authContext struct {
	PalaceID    string
	Permissions types.Permission
	AgentName   string
	Via         string // "palace_id" or "guest_key"
}

// resolveAuth checks the Authorization header and, for browse agents
// that cannot set headers, the auth query parameter. A revoked guest key
// resolves to nothing, exactly like an unknown one.
func (s *Server) resolveAuth(r *http.Request) (authContext, bool) {
	token := r.URL.Query().Get("auth")
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		return authContext{}, false
	}

	if strings.HasPrefix(token, "gk_") {
		agent, err := s.palace.Store().GetAgentByToken(token)
		if err != nil || !agent.Active {
			return authContext{}, false
		}
		return authContext{
			PalaceID:    agent.PalaceID,
			Permissions: agent.Permissions,
			AgentName:   agent.Name,
			Via:         "guest_key",
		}, true
	}

	p, err := s.palace.Store().GetPalace(token)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("palace lookup failed", "error", err)
		}
		return authContext{}, false
	}
	return authContext{
		PalaceID:    p.ID,
		Permissions: types.PermissionAdmin,
		Via:         "palace_id",
	}, true
}

// resolveOwner accepts only the palace id bearer token, the credential
// for administrative operations like inviting and revoking agents.
func (s *Server) resolveOwner(r *http.Request) (types.Palace, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return types.Palace{}, false
	}
	token := strings.TrimPrefix(header, "Bearer ")

	p, err := s.palace.Store().GetPalace(token)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("palace lookup failed", "error", err)
		}
		return types.Palace{}, false
	}
	return p, true
}

// resolveIngest resolves the guest key of a plaintext ingestion request
// and requires write access.
func (s *Server) resolveIngest(token string) (types.Palace, bool) {
	if !strings.HasPrefix(token, "gk_") {
		return types.Palace{}, false
	}

	agent, err := s.palace.Store().GetAgentByToken(token)
	if err != nil || !agent.Active || !agent.Permissions.CanWrite() {
		return types.Palace{}, false
	}

	p, err := s.palace.Store().GetPalace(agent.PalaceID)
	if err != nil {
		return types.Palace{}, false
	}
	return p, true
}
