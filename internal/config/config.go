package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"smefit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Store  StoreConfig
	Server ServerConfig
	Paths  PathConfig
	Run    RunConfig
}

// StoreConfig holds result store settings
type StoreConfig struct {
	// Driver selects the backing database: "sqlite" (default) or
	// "postgres".
	Driver string
	// DSN is the connection string. For sqlite it defaults to a file
	// inside the data directory; postgres requires DATABASE_URL.
	DSN string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// PathConfig holds file system paths
type PathConfig struct {
	// DataDir roots the power cache, events workbooks, and the default
	// sqlite database.
	DataDir string
}

// RunConfig holds analysis execution settings
type RunConfig struct {
	// Workers bounds the fit pool; 0 means one per CPU
	Workers int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	dataDir := getEnvOrDefault("SMEFIT_DATA_DIR", DefaultDataDir())

	store, err := loadStoreConfig(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load store configuration")
	}

	cfg := &Config{
		Store: *store,
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Paths: PathConfig{
			DataDir: dataDir,
		},
		Run: RunConfig{
			Workers: getEnvIntOrDefault("SMEFIT_WORKERS", 0),
		},
	}

	if cfg.Run.Workers < 0 {
		return nil, errors.ConfigInvalid("SMEFIT_WORKERS must be >= 0")
	}
	return cfg, nil
}

func loadStoreConfig(dataDir string) (*StoreConfig, error) {
	driver := getEnvOrDefault("SMEFIT_DB_DRIVER", "sqlite")
	switch driver {
	case "sqlite":
		dsn := getEnvOrDefault("SMEFIT_DB_PATH", filepath.Join(dataDir, "smefit.db"))
		return &StoreConfig{Driver: driver, DSN: dsn}, nil
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, errors.ConfigInvalid("DATABASE_URL is required for the postgres driver")
		}
		return &StoreConfig{Driver: driver, DSN: dsn}, nil
	default:
		return nil, errors.ConfigInvalid("unknown database driver " + driver)
	}
}

// DefaultDataDir returns the platform's conventional scratch location:
// /scratch/<user>/smefit on linux cluster nodes, ~/smefit on darwin, and
// the working directory elsewhere.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "linux":
		if user := os.Getenv("USER"); user != "" {
			return filepath.Join("/scratch", user, "smefit")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "smefit")
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "smefit")
	}
	return "smefit"
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
