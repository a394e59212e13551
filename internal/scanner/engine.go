package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/ralt/dexscope/internal/archive"
	"github.com/ralt/dexscope/internal/binres"
	"github.com/ralt/dexscope/internal/label"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/utils"
	"github.com/sirupsen/logrus"
)

// Engine runs the archive -> manifest -> resource table -> label pipeline
// over a batch of archives on a bounded worker pool.
type Engine struct {
	// Workers bounds concurrency; <= 0 means one per CPU
	Workers int

	Resolver *label.Resolver

	// Digest computes the SHA-256 of every archive
	Digest bool
}

// NewEngine creates an engine resolving labels with resolver.
func NewEngine(resolver *label.Resolver, workers int) *Engine {
	return &Engine{Workers: workers, Resolver: resolver}
}

type scanJob struct {
	index   int
	archive models.PackageArchive
}

type scanResult struct {
	index  int
	record models.PackageRecord
}

// Scan processes every archive and returns one record per input, sorted by
// package identifier. A failing archive becomes a ParseFailed record and
// never aborts the batch. If ctx is cancelled the scan stops handing out
// work and returns ctx.Err() without a report.
func (e *Engine) Scan(ctx context.Context, archives []models.PackageArchive) (*models.ScanReport, error) {
	workers := e.workerCount(len(archives))
	logrus.Debugf("Scanning %d archives with %d workers", len(archives), workers)

	jobs := make(chan scanJob)
	results := make(chan scanResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- scanResult{index: job.index, record: e.ScanArchive(job.archive)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, a := range archives {
			select {
			case jobs <- scanJob{index: i, archive: a}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]scanResult, 0, len(archives))
	for res := range results {
		collected = append(collected, res)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(collected, func(i, j int) bool {
		a, b := collected[i].record, collected[j].record
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return collected[i].index < collected[j].index
	})

	report := &models.ScanReport{
		Locale:  e.resolver().Locale.String(),
		Records: make([]models.PackageRecord, len(collected)),
	}
	for i, res := range collected {
		report.Records[i] = res.record
	}

	counts := report.Counts()
	logrus.Infof("Scanned %d archives: %d ok, %d label missing, %d failed",
		len(report.Records), counts[models.StatusOk], counts[models.StatusLabelMissing], counts[models.StatusParseFailed])
	return report, nil
}

func (e *Engine) workerCount(jobs int) int {
	n := e.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if jobs > 0 && n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) resolver() *label.Resolver {
	if e.Resolver == nil {
		return label.NewResolver(label.Locale{})
	}
	return e.Resolver
}

// ScanArchive runs the full pipeline for one archive. It never fails:
// errors are folded into the record status.
func (e *Engine) ScanArchive(a models.PackageArchive) models.PackageRecord {
	rec := models.PackageRecord{
		Path:     a.Path,
		Size:     a.Size,
		ListedID: a.ListedID,
	}

	if e.Digest {
		sum, err := utils.CalculateChecksum(a.Path)
		if err != nil {
			logrus.Warnf("Failed to checksum %s: %v", a.Path, err)
		} else {
			rec.SHA256 = sum.SHA256
			rec.Size = sum.Size
		}
	} else if rec.Size == 0 {
		if info, err := os.Stat(a.Path); err == nil {
			rec.Size = info.Size()
		}
	}

	entries, err := archive.Read(a.Path)
	if err != nil {
		return failed(rec, err)
	}
	if !entries.ManifestFound {
		return failed(rec, &models.ScanError{
			Type: models.ErrManifestMalformed,
			Path: a.Path,
			Err:  fmt.Errorf("archive has no %s", archive.ManifestEntry),
		})
	}

	manifest, err := binres.ParseManifest(entries.Manifest)
	if err != nil {
		return failed(rec, err)
	}
	for _, w := range manifest.Warnings {
		logrus.Debugf("%s: manifest: %s", a.Path, w)
	}

	rec.ID = manifest.Package()
	rec.VersionName = manifest.VersionName()
	rec.VersionCode = manifest.VersionCode()
	if rec.ID == "" {
		rec.ID = fallbackID(a)
		logrus.Warnf("%s: manifest declares no package, using %s", a.Path, rec.ID)
	}

	table, tableErr := loadTable(a.Path, entries)
	if tableErr != nil {
		logrus.Warnf("Failed to decode resource table of %s: %v", a.Path, tableErr)
	}

	res := e.resolver().Resolve(manifest, table)
	rec.Label = res.Label
	rec.Status = res.Status
	rec.Reason = res.Reason
	if res.Status == models.StatusLabelMissing && tableErr != nil {
		rec.Reason = models.Diagnostic(tableErr)
	}
	if rec.Label == "" {
		rec.Label = rec.ID
	}

	if a.ListedID != "" && a.ListedID != rec.ID {
		rec.Mismatch = true
		logrus.Warnf("%s: manifest package %s differs from listed %s", a.Path, rec.ID, a.ListedID)
	}

	logrus.Debugf("%s: %s %q (%s)", a.Path, rec.ID, rec.Label, rec.Status)
	return rec
}

// loadTable decodes the resource table if the archive carries one. A nil
// table with a nil error means there is none.
func loadTable(path string, entries *archive.Entries) (*binres.Table, error) {
	if entries.ResourcesErr != nil {
		return nil, entries.ResourcesErr
	}
	if !entries.ResourcesFound {
		return nil, nil
	}

	table, err := binres.ParseTable(entries.Resources)
	if err != nil {
		return nil, err
	}
	for _, w := range table.Warnings {
		logrus.Debugf("%s: resources: %s", path, w)
	}
	return table, nil
}

func failed(rec models.PackageRecord, err error) models.PackageRecord {
	logrus.Warnf("Failed to parse %s: %v", rec.Path, err)

	rec.ID = fallbackID(models.PackageArchive{Path: rec.Path, ListedID: rec.ListedID})
	rec.Label = rec.ID
	rec.Status = models.StatusParseFailed
	rec.Reason = models.Diagnostic(err)
	return rec
}

// fallbackID names an archive whose manifest gave no identifier
func fallbackID(a models.PackageArchive) string {
	if a.ListedID != "" {
		return a.ListedID
	}
	return filepath.Base(a.Path)
}
