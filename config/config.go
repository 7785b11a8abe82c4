// Package config loads docharvest settings from a YAML file, an optional
// .env file and environment variables, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers. DriverNone disables the relational sink.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// Config holds the full docharvest configuration.
type Config struct {
	OutputDir string   `yaml:"output_dir"`
	Workers   int      `yaml:"workers"`
	MaxFileMB int      `yaml:"max_file_mb"`
	MaxPartMB int      `yaml:"max_part_mb"` // per-part cap inside docx/pptx packages
	LogLevel  string   `yaml:"log_level"` // debug | info | warn | error
	Listen    string   `yaml:"listen"`
	Database  Database `yaml:"database"`
}

// Database configures the relational sink.
type Database struct {
	Driver   string `yaml:"driver"` // sqlite | mysql | none
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "output",
		Workers:   4,
		MaxFileMB: 100,
		MaxPartMB: 64,
		LogLevel:  "info",
		Listen:    ":8090",
		Database: Database{
			Driver: DriverSQLite,
			Path:   "docharvest.db",
			Host:   "localhost",
			Port:   3306,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over
// DefaultConfig, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// ignored. With no arguments it reads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OUTPUT_DIR", &c.OutputDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LISTEN", &c.Listen)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	if v, ok := lookup("DB_HOST"); ok && v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			c.Database.Host = v
		} else {
			c.Database.Host = host
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("env DB_HOST: bad port %q", port)
			}
			c.Database.Port = p
		}
	}
	if err := num("DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	if err := num("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := num("MAX_FILE_MB", &c.MaxFileMB); err != nil {
		return err
	}
	return num("MAX_PART_MB", &c.MaxPartMB)
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.MaxPartMB <= 0 {
		return fmt.Errorf("max_part_mb must be > 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host, database.user and database.name are required for mysql")
		}
	case DriverNone:
	default:
		return fmt.Errorf("unsupported database.driver %q (use sqlite, mysql or none)", c.Database.Driver)
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// MaxPartBytes returns the per-part OOXML cap in bytes.
func (c *Config) MaxPartBytes() int64 { return int64(c.MaxPartMB) * 1024 * 1024 }

// Enabled reports whether a relational sink is configured.
func (d Database) Enabled() bool { return d.Driver != DriverNone && d.Driver != "" }

// DSN returns the database/sql driver name and data source name.
func (d Database) DSN() (driver, dsn string) {
	switch d.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		mc.DBName = d.Name
		return DriverMySQL, mc.FormatDSN()
	default:
		return DriverSQLite, d.Path
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unsupported log_level %q", s)
}
