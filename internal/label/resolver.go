// Package label resolves the display label of an application from its
// decoded manifest and resource table.
package label

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ralt/dexscope/internal/binres"
	"github.com/ralt/dexscope/internal/models"
)

// maxReferenceHops bounds @string/a -> @string/b alias chains
const maxReferenceHops = 8

// Ranks of a configuration against the resolver locale, best first
const (
	rankExact         = 5 // same language, script and region
	rankLanguage      = 4 // same language, entry has no region or no script
	rankDefault       = 3 // entry has no locale
	rankLanguageOther = 2 // same language, other region or script
	rankOther         = 1
)

// Result is the outcome of resolving one label
type Result struct {
	Label  string
	Status models.Status
	Reason string
}

// Resolver picks the best label for a configured locale. It holds no
// mutable state and may be shared between goroutines.
type Resolver struct {
	Locale Locale

	// RejectClassNames treats labels that look like Java class names
	// (dotted, no spaces) as missing
	RejectClassNames bool
}

// NewResolver creates a resolver for locale.
func NewResolver(locale Locale) *Resolver {
	return &Resolver{Locale: locale}
}

// Resolve returns the label declared by the manifest's <application>
// element. table may be nil. When no label can be found the package
// identifier is returned with StatusLabelMissing.
func (r *Resolver) Resolve(m *binres.Manifest, table *binres.Table) Result {
	pkg := m.Package()
	missing := func(format string, args ...interface{}) Result {
		return Result{Label: pkg, Status: models.StatusLabelMissing, Reason: fmt.Sprintf(format, args...)}
	}

	app := m.Application()
	if app == nil {
		return missing("no <application> element")
	}
	attr, ok := app.AndroidAttr(binres.AttrLabel, "label")
	if !ok {
		return missing("no android:label attribute")
	}

	v := attr.Value
	for hop := 0; ; hop++ {
		switch v.Kind {
		case binres.KindString:
			return r.accept(pkg, v.String)
		case binres.KindReference:
			if hop >= maxReferenceHops {
				return missing("label reference chain longer than %d", maxReferenceHops)
			}
			if table == nil {
				return missing("label references 0x%08x but no resource table is available", v.Data)
			}
			entries := table.Entries(v.Data)
			if len(entries) == 0 {
				return missing("no resource entry for 0x%08x", v.Data)
			}
			v = r.Best(entries).Value
		default:
			return missing("label resolves to a non-string %s value", v.Kind)
		}
	}
}

func (r *Resolver) accept(pkg, raw string) Result {
	clean := Clean(raw)
	if clean == "" {
		return Result{Label: pkg, Status: models.StatusLabelMissing, Reason: "empty label"}
	}
	if r.RejectClassNames && LooksLikeClassName(clean, pkg) {
		return Result{Label: pkg, Status: models.StatusLabelMissing, Reason: fmt.Sprintf("label %q looks like a class name", clean)}
	}
	return Result{Label: clean, Status: models.StatusOk}
}

// Best returns the highest ranked entry. Among equally ranked locale and
// default entries one in the configured script wins, then the one with the
// fewest other qualifiers; remaining
// ties, and all entries of unrelated locales, go to the first in table order.
func (r *Resolver) Best(entries []binres.ResourceEntry) binres.ResourceEntry {
	best := 0
	bestRank := r.Rank(entries[0].Config)
	for i := 1; i < len(entries); i++ {
		rank := r.Rank(entries[i].Config)
		switch {
		case rank > bestRank:
		case rank == bestRank && rank > rankLanguageOther && r.breaksTie(entries[i].Config, entries[best].Config):
		default:
			continue
		}
		best, bestRank = i, rank
	}
	return entries[best]
}

// breaksTie reports whether c beats cur at equal rank: a matching script
// first, then fewer qualifiers.
func (r *Resolver) breaksTie(c, cur binres.Config) bool {
	if m, n := r.scriptMatches(c), r.scriptMatches(cur); m != n {
		return m
	}
	return c.Qualifiers() < cur.Qualifiers()
}

func (r *Resolver) scriptMatches(c binres.Config) bool {
	return normalizeScript(c.Script) == r.Locale.Script
}

// Rank scores how well c matches the resolver locale. An entry naming a
// script other than the configured one never ranks above the default.
func (r *Resolver) Rank(c binres.Config) int {
	lang := strings.ToLower(c.Language)
	script := normalizeScript(c.Script)
	region := strings.ToUpper(c.Region)
	want := r.Locale

	switch {
	case lang == "":
		return rankDefault
	case want.Language == "" || lang != want.Language:
		return rankOther
	case script != "" && want.Script != "" && script != want.Script:
		return rankLanguageOther
	case region == want.Region && script == want.Script:
		return rankExact
	case region == "" || region == want.Region:
		return rankLanguage
	default:
		return rankLanguageOther
	}
}

// Clean trims a label and folds line breaks into spaces.
func Clean(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	return strings.TrimSpace(s)
}

// LooksLikeClassName reports whether label is a dotted identifier such as
// "com.example.MainApplication" that differs from the package id.
func LooksLikeClassName(label, pkg string) bool {
	if label == pkg || !strings.Contains(label, ".") || strings.Contains(label, " ") {
		return false
	}
	for _, r := range label {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' {
			return false
		}
	}
	return true
}
