// Package dashboard provides an UNSECURE debug dashboard for sealbox.
//
// WARNING: the dashboard is intended for development and debugging only. It
// exposes stored-file metadata and, when upload is enabled, accepts data
// without authentication. Never enable it in production.
package dashboard

import (
	"log/slog"

	sealbox "github.com/sealbox/sealbox"
)

// Config holds the configuration for the dashboard.
type Config struct {
	// Enabled indicates whether the dashboard should be started.
	// Corresponds to the --UNSECURE-dashboard flag.
	Enabled bool

	// AllowUpload indicates whether encrypt-via-dashboard is permitted.
	// Corresponds to the --UNSECURE-upload-via-dashboard flag.
	AllowUpload bool

	// PreferredPort is the port to try first. If 0 or unavailable, the
	// dashboard finds an available port automatically.
	PreferredPort uint16

	// Box is the service handle whose contents the dashboard browses.
	Box *sealbox.Sealbox

	// MasterSecret is the configured default key, used for dashboard uploads
	// and verify sweeps. Per-request overrides are accepted too.
	MasterSecret string

	// Logger is used for dashboard logging.
	Logger *slog.Logger
}

// DefaultPort is used when no preferred port is specified.
const DefaultPort uint16 = 8420
