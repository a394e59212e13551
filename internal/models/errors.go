package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrArchiveUnreadable ErrorType = iota
	ErrEntryCorrupt
	ErrManifestMalformed
	ErrResourceTableMalformed
	ErrFileOp
	ErrInvalidConfig
	ErrCommand
	ErrExport
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrArchiveUnreadable:
		return "ArchiveUnreadable"
	case ErrEntryCorrupt:
		return "EntryCorrupt"
	case ErrManifestMalformed:
		return "ManifestMalformed"
	case ErrResourceTableMalformed:
		return "ResourceTableMalformed"
	case ErrFileOp:
		return "FileOp"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrCommand:
		return "Command"
	case ErrExport:
		return "Export"
	default:
		return "Unknown"
	}
}

// ScanError represents an error while reading or decoding a package archive
type ScanError struct {
	Type ErrorType
	Path string
	Err  error
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewError builds a ScanError from a format string.
func NewError(t ErrorType, format string, args ...interface{}) *ScanError {
	return &ScanError{Type: t, Err: fmt.Errorf(format, args...)}
}

// ErrorTypeOf reports the ErrorType carried by err, if any.
func ErrorTypeOf(err error) (ErrorType, bool) {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Type, true
	}
	return 0, false
}

// Diagnostic renders err as the short reason stored on a failed record:
// the error category followed by the innermost message, without the path.
func Diagnostic(err error) string {
	var se *ScanError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s: %v", se.Type, se.Err)
	}
	return err.Error()
}
