package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic bytes for archive detection
var (
	// Local file header of a ZIP container
	zipMagic = []byte("PK\x03\x04")
)

// DetectArchiveType determines the archive type based on magic bytes and file extension
func DetectArchiveType(path string) (ArchiveType, error) {
	if !strings.EqualFold(filepath.Ext(path), ".apk") {
		return TypeUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	header := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 && err != io.EOF {
		return TypeUnknown, err
	}

	if bytes.Equal(header[:n], zipMagic) {
		return TypeApk, nil
	}
	return TypeUnknown, nil
}
