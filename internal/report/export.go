package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/signer"
	"github.com/ralt/dexscope/internal/utils"
	"github.com/sirupsen/logrus"
)

// SignatureSuffix is appended to the export path for the detached signature
const SignatureSuffix = ".asc"

// FormatVersion is bumped when the export document changes incompatibly
const FormatVersion = 1

// Document is the exported form of a scan report
type Document struct {
	Version     int                `json:"version"`
	ScanID      string             `json:"scan_id,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Signer      string             `json:"signer,omitempty"`
	Report      *models.ScanReport `json:"report"`
}

// Encode renders the document as indented JSON
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Export writes doc to path, compressed according to the extension
// (.gz, .zst, .xz or none). With a signer, an armored detached signature
// of the written bytes is stored at path + ".asc".
func Export(doc *Document, path string, s signer.Signer) error {
	if s != nil {
		doc.Signer = s.Fingerprint()
	}

	data, err := doc.Encode()
	if err != nil {
		return &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("failed to encode report: %w", err)}
	}

	compression := utils.CompressionFromPath(path)
	data, err = utils.Compress(data, compression)
	if err != nil {
		return &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("failed to compress report: %w", err)}
	}

	if err := utils.WriteFile(path, data, 0644); err != nil {
		return &models.ScanError{Type: models.ErrFileOp, Path: path, Err: fmt.Errorf("failed to write report: %w", err)}
	}
	logrus.Infof("Wrote report to %s (%s)", path, compression)

	if s == nil {
		return nil
	}

	sig, err := s.SignDetached(data)
	if err != nil {
		return &models.ScanError{Type: models.ErrExport, Path: path, Err: err}
	}
	if err := utils.WriteFile(path+SignatureSuffix, sig, 0644); err != nil {
		return &models.ScanError{Type: models.ErrFileOp, Path: path + SignatureSuffix, Err: fmt.Errorf("failed to write signature: %w", err)}
	}
	logrus.Infof("Signed report with key %s", doc.Signer)
	return nil
}

// Load reads a document written by Export
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ScanError{Type: models.ErrFileOp, Path: path, Err: err}
	}
	return decode(path, data)
}

func decode(path string, data []byte) (*Document, error) {
	raw, err := utils.Decompress(data, utils.CompressionFromPath(path))
	if err != nil {
		return nil, &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("failed to decompress report: %w", err)}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("failed to decode report: %w", err)}
	}
	if doc.Version > FormatVersion {
		return nil, &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("unsupported report version %d", doc.Version)}
	}
	if doc.Report == nil {
		return nil, &models.ScanError{Type: models.ErrExport, Path: path, Err: fmt.Errorf("document has no report")}
	}
	return &doc, nil
}

// Verify checks the detached signature next to path against the armored
// public key and returns the loaded document and the signer fingerprint.
func Verify(path string, publicKey []byte) (*Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &models.ScanError{Type: models.ErrFileOp, Path: path, Err: err}
	}
	sig, err := os.ReadFile(path + SignatureSuffix)
	if err != nil {
		return nil, "", &models.ScanError{Type: models.ErrFileOp, Path: path + SignatureSuffix, Err: err}
	}

	fingerprint, err := signer.VerifyDetached(publicKey, data, sig)
	if err != nil {
		return nil, "", &models.ScanError{Type: models.ErrExport, Path: path, Err: err}
	}

	doc, err := decode(path, data)
	if err != nil {
		return nil, "", err
	}
	return doc, fingerprint, nil
}
