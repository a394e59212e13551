package device

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ralt/dexscope/internal/models"
)

// UnknownStatus is reported for dexopt lines that carry no status or filter
const UnknownStatus = "unknown"

var (
	// ISA prefixes of the per-artifact dexopt lines
	isaRe = regexp.MustCompile(`(arm64:|arm:)`)

	statusRe = regexp.MustCompile(`\b(?:status|filter)=([^\]\s]+)`)
)

// DexoptInfo is one compiled artifact line of a package
type DexoptInfo struct {
	Line   string
	Status string
}

// DexoptIndex maps package names to their dexopt lines in dump order
type DexoptIndex map[string][]DexoptInfo

// FetchDexoptDump reads `dumpsys package dexopt`
func FetchDexoptDump(ctx context.Context, r Runner) (string, error) {
	out, err := r.Run(ctx, "dumpsys", "package", "dexopt")
	if err != nil {
		return "", &models.ScanError{Type: models.ErrCommand, Err: fmt.Errorf("failed to fetch dexopt dump: %w", err)}
	}
	return out, nil
}

// ParseDexoptDump indexes a dexopt dump. A package section starts with a
// "[name]" line; within it every line naming an arm or arm64 artifact is
// recorded with the value of its status= or filter= field.
func ParseDexoptDump(dump string) DexoptIndex {
	index := make(DexoptIndex)
	current := ""

	s := bufio.NewScanner(strings.NewReader(dump))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}

		if isSectionHeader(line) {
			current = line[1 : len(line)-1]
			continue
		}
		if current == "" || !isaRe.MatchString(line) {
			continue
		}

		status := UnknownStatus
		if m := statusRe.FindStringSubmatch(line); m != nil {
			status = m[1]
		}
		index[current] = append(index[current], DexoptInfo{Line: line, Status: status})
	}
	return index
}

func isSectionHeader(line string) bool {
	return len(line) >= 2 &&
		strings.HasPrefix(line, "[") &&
		strings.HasSuffix(line, "]") &&
		!strings.ContainsAny(line, " =")
}

// Lookup returns the dexopt lines of pkg
func (idx DexoptIndex) Lookup(pkg string) ([]DexoptInfo, bool) {
	infos, ok := idx[pkg]
	return infos, ok
}

// StatusCount is the number of artifacts compiled with one status
type StatusCount struct {
	Status string
	Count  int
}

// Summarize counts artifact statuses over pkgs. It returns the number of
// packages that had dexopt data and the per-status counts sorted by status.
func (idx DexoptIndex) Summarize(pkgs []Package) (int, []StatusCount) {
	seen := 0
	counts := make(map[string]int)
	for _, p := range pkgs {
		infos, ok := idx[p.Name]
		if !ok {
			continue
		}
		seen++
		for _, info := range infos {
			counts[info.Status]++
		}
	}

	stats := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		stats = append(stats, StatusCount{Status: status, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return seen, stats
}
