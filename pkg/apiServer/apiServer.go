// Package apiServer exposes the sealbox operations over HTTP. Transport,
// storage paths, and access control live here and in the caller, never in the
// crypto engine.
package apiServer

import (
	"log/slog"
	"net/http"

	sealbox "github.com/sealbox/sealbox"
)

type Server struct {
	mux  *http.ServeMux
	box  *sealbox.Sealbox
	log  *slog.Logger
	auth AuthFunc

	// masterSecret is the configured default key. A per-request "key" form
	// field overrides it; that decision belongs to this layer, not pkg/crypt.
	masterSecret string
}

func New(box *sealbox.Sealbox, masterSecret string, opts ...Option) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		box:          box,
		log:          slog.Default(),
		auth:         defaultAuth,
		masterSecret: masterSecret,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /encrypt", s.handleEncrypt)
	s.mux.HandleFunc("GET /files", s.handleList)
	s.mux.HandleFunc("GET /files/{id}", s.handleEnvelope)
	s.mux.HandleFunc("GET /files/{id}/download", s.handleDownload)
	s.mux.HandleFunc("POST /files/{id}/decrypt", s.handleDecrypt)
	s.mux.HandleFunc("DELETE /files/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /verify", s.handleVerify)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	// Fixed CORS header lists so preflight responses stay cacheable.
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Type, Content-Length, Content-Disposition")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path != "/healthz" {
		if err := s.auth(r); err != nil {
			s.log.Warn("authentication failed", "error", err)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	s.mux.ServeHTTP(w, r)
}
