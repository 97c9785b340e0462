package utils

import (
	"errors"
	"fmt"
)

var (
	ErrRangeMismatch     = errors.New("range response does not start at the requested offset")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// SizeUnavailableError means the remote did not report a definitive length.
type SizeUnavailableError struct {
	URL  string
	Name string
}

func (e *SizeUnavailableError) Error() string {
	return fmt.Sprintf("could not get size of %q from %s", e.Name, e.URL)
}

// WriteError wraps a local filesystem failure for one destination file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
