// Package sqlite keeps the history of label scans in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/utils"
	_ "modernc.org/sqlite"
)

// Store reads and writes scan reports
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database. The schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database at path and migrates it
func Open(ctx context.Context, path string) (*Store, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, &models.ScanError{Type: models.ErrFileOp, Path: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return NewStore(db), nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport stores report under a new scan id and returns the id
func (s *Store) SaveReport(ctx context.Context, report *models.ScanReport, source string) (scanID string, err error) {
	scanID = uuid.NewString()
	counts := report.Counts()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans(scan_id, created_at, locale, source, total, missing, failed)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, scanID, time.Now().UnixNano(), report.Locale, source,
		len(report.Records), counts[models.StatusLabelMissing], counts[models.StatusParseFailed])
	if err != nil {
		return "", fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_records(
			scan_id, seq, package_id, label, status, reason, version_name, version_code,
			path, size, sha256, listed_id, mismatch
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range report.Records {
		mismatch := 0
		if rec.Mismatch {
			mismatch = 1
		}
		_, err = stmt.ExecContext(ctx, scanID, i, rec.ID, rec.Label, rec.Status.String(), rec.Reason,
			rec.VersionName, int64(rec.VersionCode), rec.Path, rec.Size, rec.SHA256, rec.ListedID, mismatch)
		if err != nil {
			return "", fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit scan: %w", err)
	}
	return scanID, nil
}

// LatestReport returns the most recent scan, or nil if none is stored
func (s *Store) LatestReport(ctx context.Context) (*models.ScanReport, string, error) {
	var scanID string
	err := s.db.QueryRowContext(ctx, `
		SELECT scan_id FROM scans
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&scanID)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query latest scan: %w", err)
	}

	report, err := s.Report(ctx, scanID)
	if err != nil {
		return nil, "", err
	}
	return report, scanID, nil
}

// Report loads the scan with the given id, or nil if it does not exist
func (s *Store) Report(ctx context.Context, scanID string) (*models.ScanReport, error) {
	report := &models.ScanReport{}
	err := s.db.QueryRowContext(ctx, `SELECT locale FROM scans WHERE scan_id = ?`, scanID).Scan(&report.Locale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan %s: %w", scanID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, label, status, reason, version_name, version_code,
			path, size, sha256, listed_id, mismatch
		FROM scan_records
		WHERE scan_id = ?
		ORDER BY seq
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records of %s: %w", scanID, err)
	}
	defer rows.Close()

	report.Records = []models.PackageRecord{}
	for rows.Next() {
		var rec models.PackageRecord
		var status string
		var versionCode int64
		var mismatch int
		if err := rows.Scan(&rec.ID, &rec.Label, &status, &rec.Reason, &rec.VersionName, &versionCode,
			&rec.Path, &rec.Size, &rec.SHA256, &rec.ListedID, &mismatch); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := rec.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, err
		}
		rec.VersionCode = uint32(versionCode)
		rec.Mismatch = mismatch != 0
		report.Records = append(report.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return report, nil
}

// ListScans returns up to limit scans, newest first. limit <= 0 means all.
func (s *Store) ListScans(ctx context.Context, limit int) ([]models.ScanInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, created_at, locale, total, missing, failed
		FROM scans
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []models.ScanInfo
	for rows.Next() {
		var info models.ScanInfo
		var created int64
		if err := rows.Scan(&info.ID, &created, &info.Locale, &info.Total, &info.Missing, &info.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		info.CreatedAt = time.Unix(0, created)
		scans = append(scans, info)
	}
	return scans, rows.Err()
}
