// Package config loads daemon settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/storyworks/analyzerd/internal/worker"
)

type Config struct {
	Host string
	Port string

	// WorkerBin is the analyzer worker executable the daemon launches.
	WorkerBin string

	// WorkDir is the working directory for worker processes.
	WorkDir string

	// ArtifactDir is where per-job artifact files are written.
	ArtifactDir string

	// CacheDir holds precomputed artifacts. Empty disables the cache.
	CacheDir string

	// KillGrace is the window between graceful termination and forceful
	// kill on deadline. Zero means the manager default.
	KillGrace time.Duration

	// AuthTokens is a "token:role,token:role" list. Empty disables auth.
	AuthTokens string

	// TLS is enabled when all three paths are set.
	TLSCertPath   string
	TLSKeyPath    string
	TLSCACertPath string

	// Deadlines overrides the built-in per-kind execution deadlines.
	Deadlines map[worker.Kind]time.Duration

	Debug bool
}

// Load reads configuration from the environment. A .env file, if present,
// fills in unset variables.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Host:          getenv("ANALYZERD_HOST", "localhost"),
		Port:          getenv("ANALYZERD_PORT", "8443"),
		WorkerBin:     getenv("ANALYZERD_WORKER_BIN", "analyzer-worker"),
		WorkDir:       getenv("ANALYZERD_WORK_DIR", ""),
		ArtifactDir:   getenv("ANALYZERD_ARTIFACT_DIR", os.TempDir()),
		CacheDir:      getenv("ANALYZERD_CACHE_DIR", ""),
		AuthTokens:    getenv("ANALYZERD_AUTH_TOKENS", ""),
		TLSCertPath:   getenv("ANALYZERD_TLS_CERT", ""),
		TLSKeyPath:    getenv("ANALYZERD_TLS_KEY", ""),
		TLSCACertPath: getenv("ANALYZERD_TLS_CA", ""),
		Debug:         getenv("ANALYZERD_DEBUG", "") == "true",
	}

	if v := os.Getenv("ANALYZERD_KILL_GRACE"); v != "" {
		grace, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse ANALYZERD_KILL_GRACE: %w", err)
		}
		cfg.KillGrace = grace
	}

	deadlines, err := deadlineOverrides()
	if err != nil {
		return Config{}, err
	}
	cfg.Deadlines = deadlines

	return cfg, nil
}

// Validate checks the configuration the way a failed startup would: bad
// values are caught here rather than on the first job.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("port string to number: %w", err)
	}

	if port < 1 || port > 65535 {
		return errors.New("port must be in valid range")
	}

	if c.WorkerBin == "" {
		return errors.New("worker binary cannot be empty")
	}

	if c.CacheDir != "" {
		if _, err := os.Stat(c.CacheDir); err != nil {
			return fmt.Errorf("failed to stat cache dir: %w", err)
		}
	}

	if c.TLSEnabled() {
		for name, path := range map[string]string{
			"cert":    c.TLSCertPath,
			"key":     c.TLSKeyPath,
			"ca-cert": c.TLSCACertPath,
		} {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("failed to stat TLS %s: %w", name, err)
			}
		}
	} else if c.TLSCertPath != "" || c.TLSKeyPath != "" || c.TLSCACertPath != "" {
		return errors.New("TLS requires cert, key and ca-cert paths together")
	}

	return nil
}

// TLSEnabled reports whether the daemon should serve over mTLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != "" && c.TLSCACertPath != ""
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func deadlineOverrides() (map[worker.Kind]time.Duration, error) {
	vars := map[worker.Kind]string{
		worker.KindQuick:    "ANALYZERD_DEADLINE_QUICK",
		worker.KindFull:     "ANALYZERD_DEADLINE_FULL",
		worker.KindEnhanced: "ANALYZERD_DEADLINE_ENHANCED",
	}

	deadlines := make(map[worker.Kind]time.Duration)
	for kind, name := range vars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		deadlines[kind] = d
	}

	if len(deadlines) == 0 {
		return nil, nil
	}

	return deadlines, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
