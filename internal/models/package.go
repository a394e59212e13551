package models

import "time"

// PackageArchive identifies one on-device application package file
type PackageArchive struct {
	Path string
	Size int64

	// ListedID is the identifier reported by the package lister, empty in directory mode
	ListedID string
}

// Status is the outcome of scanning a single archive
type Status int

const (
	StatusOk Status = iota
	StatusLabelMissing
	StatusParseFailed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusLabelMissing:
		return "label-missing"
	case StatusParseFailed:
		return "parse-failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*s = StatusOk
	case "label-missing":
		*s = StatusLabelMissing
	default:
		*s = StatusParseFailed
	}
	return nil
}

// PackageRecord is the scan result for one archive
type PackageRecord struct {
	// Identity
	ID    string `json:"id"`
	Label string `json:"label"`

	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`

	// Manifest metadata
	VersionName string `json:"version_name,omitempty"`
	VersionCode uint32 `json:"version_code,omitempty"`

	// File information
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`

	// Cross-check against the package lister
	ListedID string `json:"listed_id,omitempty"`
	Mismatch bool   `json:"mismatch,omitempty"`
}

// ScanReport holds one record per scanned archive in a stable order
type ScanReport struct {
	Locale  string          `json:"locale"`
	Records []PackageRecord `json:"records"`
}

// Find returns the first record with the given package identifier.
func (r *ScanReport) Find(id string) (PackageRecord, bool) {
	for _, rec := range r.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return PackageRecord{}, false
}

// Counts returns the number of records per status.
func (r *ScanReport) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, rec := range r.Records {
		counts[rec.Status]++
	}
	return counts
}

// ScanInfo summarizes one stored scan
type ScanInfo struct {
	ID        string
	CreatedAt time.Time
	Locale    string
	Total     int
	Missing   int
	Failed    int
}
