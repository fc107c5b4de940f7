package apiServer

import (
	"net/http"
)

// chainEntry is one session in the palace context walk, summarised from
// a plaintext capsule payload. Sealed capsules appear with only their
// stored metadata since the server cannot read them.
type chainEntry struct {
	ShortID    string `json:"short_id"`
	Agent      string `json:"agent"`
	Summary    string `json:"summary,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Room       string `json:"room,omitempty"`
	CreatedAt  string `json:"created_at"`
	CapsuleURL string `json:"capsule_url"`
}

// handlePalaceContext assembles the "walk the palace" overview: the
// palace record, its active agents and a chain of the most recent
// sessions, newest first.
func (s *Server) handlePalaceContext(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.resolveAuth(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or missing auth token.",
			"Pass ?auth=gk_... in the URL or set Authorization: Bearer <token> header.", s.helpURL())
		return
	}

	p, err := s.palace.Store().GetPalace(auth.PalaceID)
	if err != nil {
		s.log.Error("failed to load palace", "error", err, "palace_id", auth.PalaceID)
		writeError(w, http.StatusInternalServerError, "failed to load palace", "", "")
		return
	}

	agents, err := s.palace.Store().ListAgents(p.ID, true)
	if err != nil {
		s.log.Error("failed to list agents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load palace", "", "")
		return
	}
	roster := make([]map[string]string, 0, len(agents))
	for _, a := range agents {
		roster = append(roster, map[string]string{
			"agent_name":  a.Name,
			"permissions": string(a.Permissions),
		})
	}

	capsules, err := s.palace.Store().ListCapsules(p.ID, contextChainDepth)
	if err != nil {
		s.log.Error("failed to list capsules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load palace", "", "")
		return
	}

	chain := make([]chainEntry, 0, len(capsules))
	var rooms []string
	var nextSteps []any
	var repo string
	for _, c := range capsules {
		entry := chainEntry{
			ShortID:    c.ShortID,
			Agent:      c.Agent,
			CreatedAt:  c.CreatedAt.Format("2006-01-02T15:04:05.999999Z07:00"),
			CapsuleURL: s.shortURL(c.ShortID),
		}
		if payload, ok := c.PlaintextPayload(); ok {
			entry.Summary = stringField(payload, "session_name", "")
			entry.Outcome = stringField(payload, "outcome", "")
			if meta, ok := payload["metadata"].(map[string]any); ok {
				entry.Room = stringField(meta, "room", "")
				if rooms == nil {
					if list, ok := meta["rooms"].([]any); ok {
						for _, room := range list {
							if name, ok := room.(string); ok {
								rooms = append(rooms, name)
							}
						}
					}
				}
				if repo == "" {
					repo = stringField(meta, "repo", "")
				}
			}
			if nextSteps == nil {
				if steps, ok := payload["next_steps"].([]any); ok && len(steps) > 0 {
					nextSteps = steps
				}
			}
		}
		chain = append(chain, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"palace": map[string]any{
			"palace_id":  p.ID,
			"name":       p.Name,
			"created_at": p.CreatedAt.Format("2006-01-02T15:04:05.999999Z07:00"),
			"signed":     p.PublicKey != "",
		},
		"roster":     roster,
		"rooms":      rooms,
		"repo":       repo,
		"next_steps": nextSteps,
		"chain":      chain,
		"note":       "Sealed sessions list metadata only. Recall and decrypt locally for full content.",
	})
}
