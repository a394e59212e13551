package device

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ralt/dexscope/internal/models"
)

// AppScope selects which installed packages are listed
type AppScope int

const (
	ScopeUser AppScope = iota
	ScopeSystem
	ScopeAll
)

// String returns the string representation of AppScope
func (s AppScope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeSystem:
		return "system"
	case ScopeAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseAppScope parses "user", "system" or "all"
func ParseAppScope(s string) (AppScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "":
		return ScopeUser, nil
	case "system":
		return ScopeSystem, nil
	case "all":
		return ScopeAll, nil
	default:
		return ScopeUser, fmt.Errorf("unknown app scope %q (want user, system or all)", s)
	}
}

// listArgs returns the pm arguments for the scope
func (s AppScope) listArgs() []string {
	args := []string{"list", "packages", "-f"}
	switch s {
	case ScopeUser:
		args = append(args, "-3")
	case ScopeSystem:
		args = append(args, "-s")
	}
	return args
}

// Package is an installed application as reported by the package manager
type Package struct {
	Name string
	Path string
}

// ListPackages asks the package manager for the installed packages in scope
func ListPackages(ctx context.Context, r Runner, scope AppScope) ([]Package, error) {
	out, err := r.Run(ctx, "pm", scope.listArgs()...)
	if err != nil {
		return nil, &models.ScanError{Type: models.ErrCommand, Err: fmt.Errorf("failed to list packages: %w", err)}
	}
	return ParsePackageList(out), nil
}

// ParsePackageList parses `pm list packages -f` output. Each line has the
// form "package:<path>=<name>"; paths may themselves contain '=' so the
// line is split on the last one. The result is sorted by name.
func ParsePackageList(raw string) []Package {
	var pkgs []Package

	s := bufio.NewScanner(strings.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		rest, ok := strings.CutPrefix(line, "package:")
		if !ok {
			continue
		}
		i := strings.LastIndex(rest, "=")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(rest[i+1:])
		path := strings.TrimSpace(rest[:i])
		if name == "" || path == "" {
			continue
		}
		pkgs = append(pkgs, Package{Name: name, Path: path})
	}

	sort.SliceStable(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs
}

// FilterPackages keeps the packages whose name contains substr
func FilterPackages(pkgs []Package, substr string) []Package {
	if substr == "" {
		return pkgs
	}
	var out []Package
	for _, p := range pkgs {
		if strings.Contains(p.Name, substr) {
			out = append(out, p)
		}
	}
	return out
}

// FindPackage returns the package with the given name
func FindPackage(pkgs []Package, name string) (Package, bool) {
	for _, p := range pkgs {
		if p.Name == name {
			return p, true
		}
	}
	return Package{}, false
}

// Archives converts listed packages into scan engine input
func Archives(pkgs []Package) []models.PackageArchive {
	archives := make([]models.PackageArchive, len(pkgs))
	for i, p := range pkgs {
		archives[i] = models.PackageArchive{Path: p.Path, ListedID: p.Name}
	}
	return archives
}
