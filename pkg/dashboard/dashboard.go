package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

//go:embed static/*
var staticFiles embed.FS

// Dashboard is a debug web interface over one sealbox instance: browse
// stored files, inspect envelopes, optionally upload, and watch the live log
// stream.
type Dashboard struct {
	config Config
	server *http.Server
	mux    *http.ServeMux

	// actualPort stores the port we're actually listening on
	actualPort atomic.Uint32

	// hub manages WebSocket connections for log streaming
	hub *LogStreamHub

	// uploadTracker tracks upload flow progress
	uploadTracker *UploadFlowTracker

	doneCh chan struct{}
}

// New creates a new Dashboard instance. The dashboard must be started with
// Start() before it will serve requests.
func New(cfg Config) (*Dashboard, error) {
	if cfg.Box == nil {
		return nil, errors.New("dashboard: sealbox handle is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dashboard{
		config:        cfg,
		mux:           http.NewServeMux(),
		hub:           NewLogStreamHub(),
		uploadTracker: NewUploadFlowTracker(),
		doneCh:        make(chan struct{}),
	}

	d.setupRoutes()

	return d, nil
}

// LogHandler returns a slog.Handler that forwards every record to connected
// dashboard clients in addition to the wrapped handler. Install it on the
// application logger to make /ws/logs useful.
func (d *Dashboard) LogHandler(inner slog.Handler) slog.Handler {
	return newHubHandler(inner, d.hub)
}

func (d *Dashboard) setupRoutes() {
	// Static files (HTML, CSS, JS)
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		d.config.Logger.Error("failed to create static fs", "error", err)
	} else {
		d.mux.Handle("/", http.FileServer(http.FS(staticFS)))
	}

	// API routes
	d.mux.HandleFunc("GET /api/files", d.handleListFiles)
	d.mux.HandleFunc("GET /api/files/{id}", d.handleFileDetail)
	d.mux.HandleFunc("DELETE /api/files/{id}", d.handleFileDelete)
	d.mux.HandleFunc("POST /api/verify", d.handleVerify)

	// Upload routes (refused at handler level unless enabled)
	d.mux.HandleFunc("POST /api/upload", d.handleUpload)
	d.mux.HandleFunc("GET /api/upload/{flowId}", d.handleUploadStatus)

	// WebSocket for log streaming
	d.mux.HandleFunc("/ws/logs", d.handleWebSocket)
}

// Start begins serving the dashboard on an available port.
func (d *Dashboard) Start(ctx context.Context) error {
	if !d.config.Enabled {
		return nil
	}

	port, listener, err := d.findAvailablePort()
	if err != nil {
		return fmt.Errorf("dashboard: find port: %w", err)
	}

	d.actualPort.Store(uint32(port))

	d.server = &http.Server{
		Handler:           d.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.hub.Start()

	go func() {
		d.config.Logger.Info("dashboard started",
			"address", d.Address(),
			"uploadEnabled", d.config.AllowUpload)

		if err := d.server.Serve(listener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			d.config.Logger.Error("dashboard server error", "error", err)
		}
		close(d.doneCh)
	}()

	return nil
}

// Stop gracefully shuts down the dashboard.
func (d *Dashboard) Stop(ctx context.Context) error {
	if d.server == nil {
		return nil
	}

	d.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}

	<-d.doneCh
	return nil
}

// Address returns the address the dashboard is listening on.
// Returns empty string if not started.
func (d *Dashboard) Address() string {
	port := d.actualPort.Load()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// Port returns the port the dashboard is listening on, 0 if not started.
func (d *Dashboard) Port() uint16 {
	return uint16(d.actualPort.Load())
}

// findAvailablePort tries the preferred port first, then lets the OS pick.
func (d *Dashboard) findAvailablePort() (uint16, net.Listener, error) {
	preferredPort := d.config.PreferredPort
	if preferredPort == 0 {
		preferredPort = DefaultPort
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", preferredPort))
	if err == nil {
		return preferredPort, listener, nil
	}

	listener, err = net.Listen("tcp", ":0")
	if err != nil {
		return 0, nil, fmt.Errorf("listen on any port: %w", err)
	}

	addr := listener.Addr().(*net.TCPAddr)
	return uint16(addr.Port), listener, nil
}
