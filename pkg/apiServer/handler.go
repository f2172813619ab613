package apiServer

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	sealbox "github.com/sealbox/sealbox"
	"github.com/sealbox/sealbox/pkg/crypt"
)

// maxFormMemory bounds how much of a multipart upload is held in memory;
// larger files spill to temp files and are still streamed into the cipher.
const maxFormMemory = 64 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		http.Error(w, "expected multipart/form-data", http.StatusUnsupportedMediaType)
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	secret := s.secret(r)
	if secret == "" {
		s.log.Error("no master key configured and no key supplied")
		http.Error(w, "no encryption key available", http.StatusInternalServerError)
		return
	}

	opts := sealbox.StoreOptions{
		OriginalName: fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Compress:     r.FormValue("compress") == "true",
	}

	env, err := s.box.EncryptFile(r.Context(), file, secret, opts)
	if err != nil {
		status := statusFor(err)
		s.log.Error("failed to encrypt file", "name", opts.OriginalName, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	writeJSON(w, http.StatusCreated, encryptResponse{
		ID:       env.ID,
		BytesIn:  env.PlaintextBytes,
		BytesOut: env.CiphertextBytes,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	envs, err := s.box.ListFiles(r.Context())
	if err != nil {
		status := statusFor(err)
		s.log.Error("failed to list files", "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	response := listResponse{Files: make([]fileSummary, 0, len(envs))}
	for _, env := range envs {
		response.Files = append(response.Files, fileSummary{
			ID:           env.ID,
			OriginalName: env.OriginalName,
			Bytes:        env.CiphertextBytes,
			CreatedAt:    env.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	env, err := s.box.Envelope(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("failed to load envelope", "id", id, "error", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f, env, err := s.box.OpenCiphertext(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("failed to open ciphertext", "id", id, "error", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", env.CiphertextBytes))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": id + ".enc"}))

	if _, err := io.Copy(w, f); err != nil {
		s.log.Warn("download aborted", "id", id, "error", err)
	}
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	secret := s.secret(r)
	if secret == "" {
		http.Error(w, "no decryption key available", http.StatusBadRequest)
		return
	}

	env, err := s.box.Envelope(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	name := env.OriginalName
	if name == "" {
		name = id + ".bin"
	}
	contentType := env.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// The decrypt pipeline writes nothing before the tag verifies, so the
	// response status is still ours to choose when verification fails.
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	if _, err := s.box.DecryptFile(r.Context(), id, secret, w); err != nil {
		status := statusFor(err)
		if crypt.IsAuthenticationFailed(err) || crypt.IsCorruptPadding(err) {
			s.log.Error("decrypt failed", "id", id, "error", err)
		}
		w.Header().Del("Content-Disposition")
		http.Error(w, http.StatusText(status), status)
		return
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.box.DeleteFile(r.Context(), id); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("failed to delete file", "id", id, "error", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: id})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	secret := s.secret(r)
	if secret == "" {
		http.Error(w, "no key available for verification", http.StatusBadRequest)
		return
	}

	results, err := s.box.VerifyAll(r.Context(), secret)
	if err != nil {
		status := statusFor(err)
		s.log.Error("verify sweep failed", "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	writeJSON(w, http.StatusOK, results)
}
