package refserver

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/wire"
)

// handleHeadObject implements HEAD /api/v1/cas/{key}.
func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	key, err := hashkey.FromHex(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	present, err := s.store.ObjectExists(r.Context(), orgIDFrom(r.Context()), key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if present {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleGetObject implements GET /api/v1/cas/{key}.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key, err := hashkey.FromHex(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, found, err := s.store.GetObject(r.Context(), orgIDFrom(r.Context()), key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handlePutObject implements PUT /api/v1/cas/{key}.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	key, err := hashkey.FromHex(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = s.store.PutObject(r.Context(), orgIDFrom(r.Context()), key, body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusCreated)
	case cacheerr.IsKind(err, cacheerr.KindValidation):
		writeError(w, http.StatusConflict, "hash mismatch")
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// handleBulkCheck implements POST /api/v1/cas/bulk-check.
func (s *Server) handleBulkCheck(w http.ResponseWriter, r *http.Request) {
	var req wire.BulkCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	keys, err := parseHexKeys(req.Keys)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	present, err := s.store.BulkCheckObjects(r.Context(), orgIDFrom(r.Context()), keys)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := wire.BulkCheckResponse{}
	for _, k := range keys {
		if present[k] {
			resp.Present = append(resp.Present, k.String())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBulkWrite implements POST /api/v1/cas/bulk-write: a multipart
// body where each part's form field name is the object's hex content key
// and the part body is the object bytes. Order-independent.
func (s *Server) handleBulkWrite(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := wire.BulkWriteResponse{}
	orgID := orgIDFrom(r.Context())

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		hexKey := part.FormName()
		key, err := hashkey.FromHex(hexKey)
		if err != nil {
			resp.Errors = append(resp.Errors, wire.BulkWriteError{Key: hexKey, Error: "invalid key"})
			continue
		}

		body, err := io.ReadAll(part)
		if err != nil {
			resp.Errors = append(resp.Errors, wire.BulkWriteError{Key: hexKey, Error: "read error"})
			continue
		}

		putErr := s.store.PutObject(r.Context(), orgID, key, body)
		switch {
		case putErr == nil:
			resp.Written = append(resp.Written, hexKey)
		case cacheerr.IsKind(putErr, cacheerr.KindValidation):
			resp.Errors = append(resp.Errors, wire.BulkWriteError{Key: hexKey, Error: "hash mismatch"})
		default:
			resp.Errors = append(resp.Errors, wire.BulkWriteError{Key: hexKey, Error: putErr.Error()})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBulkRead implements POST /api/v1/cas/bulk-read: the response is a
// multipart body with one part per found key, plus a trailing "_manifest"
// part listing keys the server could not serve, so the caller can
// diagnose missing blobs per spec.md §4.3.
func (s *Server) handleBulkRead(w http.ResponseWriter, r *http.Request) {
	var req wire.BulkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	keys, err := parseHexKeys(req.Keys)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", mw.FormDataContentType())
	w.WriteHeader(http.StatusOK)
	defer mw.Close()

	orgID := orgIDFrom(r.Context())
	var missing []string

	for _, key := range keys {
		body, found, err := s.store.GetObject(r.Context(), orgID, key)
		if err != nil || !found {
			missing = append(missing, key.String())
			continue
		}

		part, err := mw.CreateFormField(key.String())
		if err != nil {
			return
		}
		if _, err := part.Write(body); err != nil {
			return
		}
	}

	manifest, _ := json.Marshal(struct {
		Missing []string `json:"missing"`
	}{Missing: missing})

	if part, err := mw.CreateFormField("_manifest"); err == nil {
		_, _ = part.Write(manifest)
	}
}

func parseHexKeys(hexes []string) ([]hashkey.Key, error) {
	keys := make([]hashkey.Key, len(hexes))
	for i, h := range hexes {
		k, err := hashkey.FromHex(h)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}
