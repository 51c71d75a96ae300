package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// DefaultConfigFile is the config file looked up when no --config flag is
// given.
const DefaultConfigFile = "contractwatch.yaml"

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. YAML config file (explicit path, or contractwatch.yaml if present)
// 3. Environment variable overrides
//
// The returned config is validated; callers get either a startable
// configuration or an error that should abort the process.
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}

	if fileConfig, err := LoadFromFile(path); err == nil {
		l.logger.Debug("Loaded config file", slog.String("path", path))
		config = fileConfig
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		// A missing default file is fine; a missing explicit file or a
		// malformed file is not.
		if explicit {
			return nil, err
		}
		l.logger.Warn("Failed to load config file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
