package docpipe

import "log/slog"

// Config configures the Loader.
type Config struct {
	// MaxFileSize is the maximum document size to load (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxPartSize caps any single part read from an OOXML package
	// (default: 64 MB).
	MaxPartSize int64 `json:"max_part_size" yaml:"max_part_size"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxPartSize <= 0 {
		c.MaxPartSize = 64 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
