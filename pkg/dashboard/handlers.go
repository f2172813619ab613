package dashboard

import (
	"encoding/json"
	"net/http"
	"time"
)

// FileInfo is the dashboard's view of one stored artifact.
type FileInfo struct {
	ID              string `json:"id"`
	OriginalName    string `json:"originalName,omitempty"`
	ContentType     string `json:"contentType,omitempty"`
	PlaintextBytes  int64  `json:"plaintextBytes"`
	CiphertextBytes int64  `json:"ciphertextBytes"`
	CreatedAt       string `json:"createdAt"`
	KeyFingerprint  string `json:"keyFingerprint"`
	Compressed      bool   `json:"compressed"`
}

// FileListResponse is the response for listing stored files.
type FileListResponse struct {
	Files []FileInfo `json:"files"`
	Total int        `json:"total"`
}

func (d *Dashboard) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.config.Logger.Error("failed to encode dashboard response", "error", err)
	}
}

// handleListFiles returns every stored envelope, newest first.
// GET /api/files
func (d *Dashboard) handleListFiles(w http.ResponseWriter, r *http.Request) {
	envs, err := d.config.Box.ListFiles(r.Context())
	if err != nil {
		d.config.Logger.Error("dashboard list failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := FileListResponse{Files: make([]FileInfo, 0, len(envs)), Total: len(envs)}
	for _, env := range envs {
		resp.Files = append(resp.Files, FileInfo{
			ID:              env.ID,
			OriginalName:    env.OriginalName,
			ContentType:     env.ContentType,
			PlaintextBytes:  env.PlaintextBytes,
			CiphertextBytes: env.CiphertextBytes,
			CreatedAt:       env.CreatedAt.UTC().Format(time.RFC3339),
			KeyFingerprint:  env.KeyFingerprint,
			Compressed:      env.Compressed,
		})
	}

	d.writeJSON(w, http.StatusOK, resp)
}

// handleFileDetail returns the full envelope record.
// GET /api/files/{id}
func (d *Dashboard) handleFileDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	env, err := d.config.Box.Envelope(r.Context(), id)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	d.writeJSON(w, http.StatusOK, env)
}

// handleFileDelete removes a stored artifact.
// DELETE /api/files/{id}
func (d *Dashboard) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := d.config.Box.DeleteFile(r.Context(), id); err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	d.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleVerify runs the integrity sweep with the configured (or supplied)
// key and returns per-file results.
// POST /api/verify
func (d *Dashboard) handleVerify(w http.ResponseWriter, r *http.Request) {
	secret := r.FormValue("key")
	if secret == "" {
		secret = d.config.MasterSecret
	}
	if secret == "" {
		http.Error(w, "no key available for verification", http.StatusBadRequest)
		return
	}

	results, err := d.config.Box.VerifyAll(r.Context(), secret)
	if err != nil {
		d.config.Logger.Error("dashboard verify failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	d.writeJSON(w, http.StatusOK, results)
}
