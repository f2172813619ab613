package apiServer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sealbox "github.com/sealbox/sealbox"
	"github.com/sealbox/sealbox/pkg/crypt"
	"github.com/sealbox/sealbox/pkg/keymat"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// statusFor maps the error taxonomy onto HTTP statuses: caller mistakes are
// 400s, unknown artifacts 404, lifecycle problems 503, the rest 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sealbox.ErrNotFound):
		return http.StatusNotFound
	case keymat.IsInvalidKeyLength(err),
		crypt.IsFingerprintMismatch(err),
		crypt.IsAuthenticationFailed(err):
		return http.StatusBadRequest
	case errors.Is(err, sealbox.ErrNotStarted), errors.Is(err, sealbox.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

func WithAuth(auth AuthFunc) Option {
	return func(s *Server) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// secret picks the per-request key override if supplied, else the configured
// default. Empty means no key is available at all.
func (s *Server) secret(r *http.Request) string {
	if key := r.FormValue("key"); key != "" {
		return key
	}
	return s.masterSecret
}
