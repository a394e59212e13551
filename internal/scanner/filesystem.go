package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ralt/dexscope/internal/models"
	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner for archives pulled off a device
type FileSystemScanner struct{}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner() *FileSystemScanner {
	return &FileSystemScanner{}
}

// Scan recursively scans a directory for package archives
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]models.PackageArchive, error) {
	var archives []models.PackageArchive

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			return nil
		}

		archiveType, err := s.DetectType(path)
		if err != nil {
			logrus.Warnf("Failed to detect type for %s: %v", path, err)
			return nil
		}

		if archiveType == TypeUnknown {
			return nil
		}

		logrus.Debugf("Found %s archive: %s", archiveType, path)

		archives = append(archives, models.PackageArchive{
			Path: path,
			Size: info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].Path < archives[j].Path })

	logrus.Infof("Found %d archives in %s", len(archives), dir)
	return archives, nil
}

// DetectType determines the archive type of a file
func (s *FileSystemScanner) DetectType(path string) (ArchiveType, error) {
	return DetectArchiveType(path)
}
