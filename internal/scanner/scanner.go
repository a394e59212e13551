package scanner

import (
	"context"

	"github.com/ralt/dexscope/internal/models"
)

// ArchiveType represents the kind of file found during discovery
type ArchiveType int

const (
	TypeUnknown ArchiveType = iota
	TypeApk
)

// String returns the string representation of ArchiveType
func (t ArchiveType) String() string {
	switch t {
	case TypeApk:
		return "apk"
	default:
		return "unknown"
	}
}

// Scanner discovers package archives to feed the engine
type Scanner interface {
	// Scan recursively scans a directory for package archives
	Scan(ctx context.Context, dir string) ([]models.PackageArchive, error)

	// DetectType determines the archive type of a file
	DetectType(path string) (ArchiveType, error)
}
