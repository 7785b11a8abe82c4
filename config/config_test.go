package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "output" || cfg.Workers != 4 || cfg.Database.Driver != DriverSQLite {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.MaxFileBytes() != 100*1024*1024 {
		t.Fatalf("max bytes = %d", cfg.MaxFileBytes())
	}
	if cfg.MaxPartBytes() != 64*1024*1024 {
		t.Fatalf("max part bytes = %d", cfg.MaxPartBytes())
	}
}

func TestLoad_MaxPart(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "c.yaml", "max_part_mb: 8\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxPartMB != 8 {
		t.Fatalf("yaml max_part_mb = %d", cfg.MaxPartMB)
	}

	t.Setenv("MAX_PART_MB", "2")
	cfg, err = Load(writeFile(t, dir, "c.yaml", "max_part_mb: 8\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxPartBytes() != 2*1024*1024 {
		t.Fatalf("env max part bytes = %d", cfg.MaxPartBytes())
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docharvest.yaml", `
output_dir: /data/out
workers: 8
log_level: debug
database:
  driver: mysql
  host: db.internal
  user: harvest
  password: s3cret
  name: documents
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/data/out" || cfg.Workers != 8 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxFileMB != 100 {
		t.Errorf("unset field lost its default: %d", cfg.MaxFileMB)
	}
	driver, dsn := cfg.Database.DSN()
	if driver != DriverMySQL {
		t.Errorf("driver = %q", driver)
	}
	if !strings.HasPrefix(dsn, "harvest:s3cret@tcp(db.internal:3306)/documents") {
		t.Errorf("dsn = %q", dsn)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/env/out")
	t.Setenv("WORKERS", "2")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_HOST", "mysql.local:3307")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "n")

	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "c.yaml", "output_dir: /yaml/out\nworkers: 16\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/env/out" || cfg.Workers != 2 {
		t.Errorf("env did not win: %+v", cfg)
	}
	if cfg.Database.Host != "mysql.local" || cfg.Database.Port != 3307 {
		t.Errorf("host/port = %s/%d", cfg.Database.Host, cfg.Database.Port)
	}
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("WORKERS", "many")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "WORKERS") {
		t.Fatalf("expected WORKERS error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "DOCHARVEST_TEST_DOTENV=from-file\n")
	t.Setenv("DOCHARVEST_TEST_DOTENV", "")
	os.Unsetenv("DOCHARVEST_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("DOCHARVEST_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file must be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"ok", func(*Config) {}, ""},
		{"no output", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero part cap", func(c *Config) { c.MaxPartMB = 0 }, "max_part_mb"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"mysql without user", func(c *Config) { c.Database.Driver = DriverMySQL }, "database.user"},
		{"none", func(c *Config) { c.Database.Driver = DriverNone; c.Database.Path = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errSub == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}

func TestDatabase_SQLiteDSN(t *testing.T) {
	d := Database{Driver: DriverSQLite, Path: "/var/lib/docs.db"}
	driver, dsn := d.DSN()
	if driver != DriverSQLite || dsn != "/var/lib/docs.db" {
		t.Fatalf("DSN = %q, %q", driver, dsn)
	}
	if !d.Enabled() || (Database{Driver: DriverNone}).Enabled() {
		t.Fatal("Enabled mismatch")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}
