package docpipe

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned by the Loader when the path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedFormat is returned for a format tag without a backend.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrFileTooLarge is returned by the Loader above Config.MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
	// ErrParse marks a structural unit (or a whole container) that could not
	// be parsed.
	ErrParse = errors.New("parse error")
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("engine closed")
)

// OpError records the extraction operation and format that failed.
type OpError struct {
	Op     string
	Format Format
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("docpipe: %s (%s): %v", e.Op, e.Format, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
