package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/drive"
	"pidrive-backend/internal/fault"
)

// FileHandler exposes the engine's tree operations to the web client.
type FileHandler struct {
	engine     *drive.Engine
	jwtManager *auth.JWTManager
}

func NewFileHandler(engine *drive.Engine, jwtManager *auth.JWTManager) *FileHandler {
	return &FileHandler{
		engine:     engine,
		jwtManager: jwtManager,
	}
}

// requestCredentials recovers the user name and password for the engine
// from the validated token.
func requestCredentials(r *http.Request, jwtManager *auth.JWTManager) (string, string, error) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		return "", "", fault.New(fault.CodeAuthentication, "missing claims")
	}
	password, err := jwtManager.DecryptPassword(claims.EncryptedPassword)
	if err != nil {
		return "", "", fault.Wrap(fault.CodeAuthentication, "failed to recover credentials", err)
	}
	return claims.Username, password, nil
}

// parseSegments splits the path query parameter into sandbox segments.
// Traversal tokens survive the split; the sandbox rejects them.
func parseSegments(raw string) []string {
	if raw == "" {
		return nil
	}
	var segments []string
	for _, part := range strings.Split(raw, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.engine.List(r.Context(), username, password, parseSegments(r.URL.Query().Get("path")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *FileHandler) Storage(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.engine.Storage(r.Context(), username, password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *FileHandler) ReadContent(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.engine.ReadFile(r.Context(), username, password, parseSegments(r.URL.Query().Get("path")))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (h *FileHandler) WriteContent(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	if err := h.engine.WriteFile(r.Context(), username, password, parseSegments(r.URL.Query().Get("path")), content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func (h *FileHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.engine.CreateFolder(r.Context(), username, password, parseSegments(req.Path), req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type renameRequest struct {
	Path    string `json:"path"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.engine.Rename(r.Context(), username, password, parseSegments(req.Path), req.OldName, req.NewName); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteRequest struct {
	Path  string   `json:"path"`
	Names []string `json:"names"`
}

// Delete always answers with the per-name outcomes; a mixed batch is
// not an HTTP error.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username, password, err := requestCredentials(r, h.jwtManager)
	if err != nil {
		writeError(w, err)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.Names) == 0 {
		writeBadRequest(w, "no names to delete")
		return
	}

	results, err := h.engine.Delete(r.Context(), username, password, parseSegments(req.Path), req.Names)
	if err != nil {
		var partial *fault.PartialError
		if !errors.As(err, &partial) {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
