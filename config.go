package sealbox

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"
)

// Config configures a Sealbox instance. Only Paths[0] is used at the moment;
// future versions may use multiple paths for tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used; blobs
	// live under Paths[0]/blobs and envelope records under Paths[0]/meta.
	Paths []string
	// MinimumFreeGB is a free-space threshold below which writes are refused.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
	// VerifyWorkers bounds the parallelism of integrity sweeps. 0 means one
	// worker per CPU.
	VerifyWorkers int
}

// fileConfig is the YAML form read by LoadConfig.
type fileConfig struct {
	DataPath      string `yaml:"dataPath"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	VerifyWorkers int    `yaml:"verifyWorkers"`
}

// LoadConfig reads a YAML config file. Fields left empty in the file keep
// their zero value; the caller applies defaults and flag overrides.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sealbox: read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("sealbox: parse config %s: %w", path, err)
	}

	conf := Config{
		MinimumFreeGB: fc.MinimumFreeGB,
		VerifyWorkers: fc.VerifyWorkers,
	}
	if fc.DataPath != "" {
		conf.Paths = []string{fc.DataPath}
	}
	return conf, nil
}

// defaultLogger returns a logger that writes text logs to stderr at Info
// level. Applications can inject their own slog.Logger for JSON, different
// levels, etc.
func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}
