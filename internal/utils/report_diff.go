package utils

import (
	"sort"

	"github.com/ralt/dexscope/internal/models"
)

// Relabel is a package whose resolved label changed between two scans
type Relabel struct {
	ID       string
	OldLabel string
	NewLabel string
}

// ReportDiff lists what changed between two scans of the same device
type ReportDiff struct {
	Added      []models.PackageRecord
	Removed    []models.PackageRecord
	Relabelled []Relabel
}

// Empty reports whether the two scans were identical
func (d *ReportDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Relabelled) == 0
}

// reportIndex maps package identifiers to their first record
func reportIndex(r *models.ScanReport) map[string]models.PackageRecord {
	index := make(map[string]models.PackageRecord)
	if r == nil {
		return index
	}
	for _, rec := range r.Records {
		if _, ok := index[rec.ID]; !ok {
			index[rec.ID] = rec
		}
	}
	return index
}

// DiffReports compares the previous scan with the current one. Either may
// be nil. Results are sorted by package identifier.
func DiffReports(prev, cur *models.ScanReport) *ReportDiff {
	before := reportIndex(prev)
	after := reportIndex(cur)
	diff := &ReportDiff{}

	for id, rec := range after {
		old, ok := before[id]
		if !ok {
			diff.Added = append(diff.Added, rec)
			continue
		}
		if old.Label != rec.Label {
			diff.Relabelled = append(diff.Relabelled, Relabel{ID: id, OldLabel: old.Label, NewLabel: rec.Label})
		}
	}
	for id, rec := range before {
		if _, ok := after[id]; !ok {
			diff.Removed = append(diff.Removed, rec)
		}
	}

	sort.Slice(diff.Added, func(i, j int) bool { return diff.Added[i].ID < diff.Added[j].ID })
	sort.Slice(diff.Removed, func(i, j int) bool { return diff.Removed[i].ID < diff.Removed[j].ID })
	sort.Slice(diff.Relabelled, func(i, j int) bool { return diff.Relabelled[i].ID < diff.Relabelled[j].ID })
	return diff
}
