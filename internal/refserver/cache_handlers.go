package refserver

import (
	"encoding/json"
	"net/http"

	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/wire"
)

// handleSave implements POST /api/v1/cache/cargo/save: the server upserts,
// so a later save for the same unit key replaces prior content.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > wire.MaxSaveRequestBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "save plan too large")
		return
	}

	var body wire.SavePlan
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(body) > wire.MaxUnitsPerSaveRequest {
		writeError(w, http.StatusBadRequest, "too many units in one save request")
		return
	}

	plan := make(map[hashkey.Key]savedunit.SavedUnit, len(body))
	for hex, su := range body {
		key, err := hashkey.FromHex(hex)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		plan[key] = su
	}

	if err := s.store.SaveUnits(r.Context(), orgIDFrom(r.Context()), plan); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleRestore implements POST /api/v1/cache/cargo/restore.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req wire.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(req.Keys) > wire.MaxKeysPerRestoreRequest {
		writeError(w, http.StatusBadRequest, "too many keys in one restore request")
		return
	}

	keys, err := parseHexKeys(req.Keys)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hits, err := s.store.RestoreUnits(r.Context(), orgIDFrom(r.Context()), keys)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := wire.RestoreResponse{Hits: make(map[string]savedunit.SavedUnit, len(hits))}
	for k, su := range hits {
		resp.Hits[k.String()] = su
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReset implements POST /api/v1/cache/cargo/reset: deletes all
// cached data for the caller's organization. Irreversible.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetOrg(r.Context(), orgIDFrom(r.Context())); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetPreview implements the supplemental, read-only
// GET /api/v1/cache/cargo/reset/preview diagnostic endpoint (SPEC_FULL.md):
// reports how many unit keys and content keys a reset would affect,
// without performing it.
func (s *Server) handleResetPreview(w http.ResponseWriter, r *http.Request) {
	unitCount, contentCount, err := s.store.OrgStats(r.Context(), orgIDFrom(r.Context()))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wire.ResetPreviewResponse{
		UnitCount:    unitCount,
		ContentCount: contentCount,
	})
}
