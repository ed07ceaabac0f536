package config

import (
	"path/filepath"
	"testing"

	"smefit/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SMEFIT_DATA_DIR", "/tmp/smefit-test")
	t.Setenv("SMEFIT_DB_DRIVER", "")
	t.Setenv("SMEFIT_DB_PATH", "")
	t.Setenv("PORT", "")
	t.Setenv("SMEFIT_WORKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Store.Driver)
	}
	if want := filepath.Join("/tmp/smefit-test", "smefit.db"); cfg.Store.DSN != want {
		t.Errorf("dsn = %q, want %q", cfg.Store.DSN, want)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Run.Workers != 0 {
		t.Errorf("workers = %d, want 0", cfg.Run.Workers)
	}
	if cfg.Paths.DataDir != "/tmp/smefit-test" {
		t.Errorf("data dir = %q", cfg.Paths.DataDir)
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("SMEFIT_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://app@localhost/smefit?sslmode=disable")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		t.Error("dsn is empty")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SMEFIT_DB_DRIVER", "oracle")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if errors.GetCode(err) != errors.CodeConfigInvalid {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.CodeConfigInvalid)
	}
}

func TestLoadRejectsNegativeWorkers(t *testing.T) {
	t.Setenv("SMEFIT_DB_DRIVER", "")
	t.Setenv("SMEFIT_WORKERS", "-2")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative workers")
	}
}

func TestDefaultDataDirNotEmpty(t *testing.T) {
	if DefaultDataDir() == "" {
		t.Fatal("default data dir is empty")
	}
}
