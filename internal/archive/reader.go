package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/ralt/dexscope/internal/models"
)

// Entry names inside an Android package archive
const (
	ManifestEntry  = "AndroidManifest.xml"
	ResourcesEntry = "resources.arsc"
)

// Upper bounds on the uncompressed size of the entries we read
const (
	MaxManifestSize  = 64 << 20
	MaxResourcesSize = 256 << 20
)

// Entries holds the raw bytes of the entries extracted from one archive
type Entries struct {
	Manifest      []byte
	ManifestFound bool

	Resources      []byte
	ResourcesFound bool

	// ResourcesErr is set when the resource table entry exists but could
	// not be decompressed. It only costs the label, so it is not returned
	// as an error from Read.
	ResourcesErr error
}

// Read opens the archive at path and extracts the manifest and resource table.
// A missing entry is reported through the Found flags, not as an error.
// A corrupt manifest fails with ErrEntryCorrupt.
func Read(path string) (*Entries, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &models.ScanError{
			Type: models.ErrArchiveUnreadable,
			Path: path,
			Err:  fmt.Errorf("failed to open archive: %w", err),
		}
	}
	defer zr.Close()

	return readEntries(path, &zr.Reader)
}

// ReadFrom extracts the entries from an archive already held by r.
func ReadFrom(r io.ReaderAt, size int64) (*Entries, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &models.ScanError{
			Type: models.ErrArchiveUnreadable,
			Err:  fmt.Errorf("failed to open archive: %w", err),
		}
	}
	return readEntries("", zr)
}

func readEntries(path string, zr *zip.Reader) (*Entries, error) {
	entries := &Entries{}

	// First match wins; some vendor archives carry duplicate names
	var manifest, resources *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case ManifestEntry:
			if manifest == nil {
				manifest = f
			}
		case ResourcesEntry:
			if resources == nil {
				resources = f
			}
		}
	}

	if manifest != nil {
		data, err := readEntry(manifest, MaxManifestSize)
		if err != nil {
			return nil, &models.ScanError{Type: models.ErrEntryCorrupt, Path: path, Err: err}
		}
		entries.Manifest = data
		entries.ManifestFound = true
	}

	if resources != nil {
		entries.ResourcesFound = true
		data, err := readEntry(resources, MaxResourcesSize)
		if err != nil {
			entries.ResourcesErr = &models.ScanError{Type: models.ErrEntryCorrupt, Path: path, Err: err}
		} else {
			entries.Resources = data
		}
	}

	return entries, nil
}

// readEntry decompresses f, verifying its checksum and enforcing limit
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) {
			return nil, fmt.Errorf("%s: checksum mismatch", f.Name)
		}
		return nil, fmt.Errorf("failed to decompress %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, limit)
	}

	return data, nil
}
