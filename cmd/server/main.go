package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sealbox "github.com/sealbox/sealbox"
	"github.com/sealbox/sealbox/pkg/apiServer"
	"github.com/sealbox/sealbox/pkg/dashboard"
	"github.com/sealbox/sealbox/pkg/logging"
)

const (
	logKeyListenAddr       = "listenAddr"
	logKeyDataPath         = "dataPath"
	logKeyDashboardEnabled = "dashboardEnabled"
	logKeyUploadEnabled    = "uploadEnabled"
	logKeySignal           = "signal"
	logKeyError            = "error"
	logKeyAddress          = "address"
)

// masterKeyEnv is the environment variable the daemon reads the master
// secret from when the -key flag is empty.
const masterKeyEnv = "SEALBOX_MASTER_KEY"

func main() {
	cfg := parseFlags()

	logLevel := slog.LevelInfo
	if cfg.debug {
		logLevel = slog.LevelDebug
	}
	logger := logging.New(logLevel)

	logger.InfoContext(context.Background(), "starting sealbox daemon",
		logKeyListenAddr, cfg.listenAddr,
		logKeyDataPath, cfg.dataPath,
		logKeyDashboardEnabled, cfg.dashboardEnabled,
		logKeyUploadEnabled, cfg.uploadEnabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.InfoContext(ctx, "received shutdown signal",
			logKeySignal, sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.ErrorContext(context.Background(), "daemon error", logKeyError, err)
		os.Exit(1)
	}
}

// daemonConfig holds the parsed command line configuration.
type daemonConfig struct {
	dataPath         string
	configPath       string
	listenAddr       string
	masterKey        string
	dashboardEnabled bool
	dashboardPort    uint
	uploadEnabled    bool
	debug            bool
}

// parseFlags parses command line flags and returns the configuration.
func parseFlags() daemonConfig {
	cfg := daemonConfig{}

	flag.StringVar(&cfg.dataPath, "data", "./data",
		"Path to data directory")
	flag.StringVar(&cfg.configPath, "config", "",
		"Path to YAML config file (optional)")
	flag.StringVar(&cfg.listenAddr, "listen", ":8520",
		"Address to listen on for the HTTP API")
	flag.StringVar(&cfg.masterKey, "key", "",
		"Master secret (prefer the "+masterKeyEnv+" environment variable)")

	// Dashboard flags (intentionally ugly names to indicate UNSECURE)
	flag.BoolVar(&cfg.dashboardEnabled, "UNSECURE-dashboard", false,
		"Enable debug dashboard (INSECURE - do not use in production)")
	flag.UintVar(&cfg.dashboardPort, "UNSECURE-dashboard-port", uint(dashboard.DefaultPort),
		"Port for debug dashboard")
	flag.BoolVar(&cfg.uploadEnabled, "UNSECURE-upload-via-dashboard", false,
		"Allow uploads via dashboard (INSECURE)")

	flag.BoolVar(&cfg.debug, "debug", false,
		"Enable debug logging")

	flag.Parse()

	if cfg.masterKey == "" {
		cfg.masterKey = os.Getenv(masterKeyEnv)
	}

	return cfg
}

// run is the main daemon logic, separated for testability.
func run(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	boxConf := sealbox.Config{
		Paths: []string{cfg.dataPath},
	}
	if cfg.configPath != "" {
		fileConf, err := sealbox.LoadConfig(cfg.configPath)
		if err != nil {
			return err
		}
		if len(fileConf.Paths) > 0 {
			boxConf.Paths = fileConf.Paths
		}
		boxConf.MinimumFreeGB = fileConf.MinimumFreeGB
		boxConf.VerifyWorkers = fileConf.VerifyWorkers
	}
	boxConf.Logger = logger

	box, err := sealbox.New(boxConf)
	if err != nil {
		return fmt.Errorf("create sealbox: %w", err)
	}
	if err := box.Start(ctx); err != nil {
		return fmt.Errorf("start sealbox: %w", err)
	}
	defer func() {
		if closeErr := box.Close(context.Background()); closeErr != nil {
			logger.WarnContext(context.Background(), "error closing sealbox",
				logKeyError, closeErr)
		}
	}()

	if cfg.dashboardEnabled {
		if cfg.dashboardPort > 65535 {
			return fmt.Errorf("dashboard port invalid: %d", cfg.dashboardPort)
		}

		dash, err := dashboard.New(dashboard.Config{
			Enabled:       true,
			AllowUpload:   cfg.uploadEnabled,
			PreferredPort: uint16(cfg.dashboardPort),
			Box:           box,
			MasterSecret:  cfg.masterKey,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("create dashboard: %w", err)
		}

		if err := dash.Start(ctx); err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
		defer func() { _ = dash.Stop(context.Background()) }()

		// Route all further daemon logs through the dashboard's live stream.
		logger = slog.New(dash.LogHandler(logger.Handler()))

		logger.InfoContext(ctx, "dashboard available",
			logKeyAddress, dash.Address())
	}

	api := apiServer.New(box, cfg.masterKey, apiServer.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http api listening",
			logKeyListenAddr, cfg.listenAddr)
		if err := httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "daemon shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WarnContext(context.Background(), "error shutting down http server",
			logKeyError, err)
	}
	<-errCh

	return nil
}
