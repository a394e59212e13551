package label

import (
	"os"
	"strings"
)

// Locale is a language with an optional script and region, all normalized
// ("sr" / "Latn" / "RS"). The zero Locale matches no locale-qualified entry.
type Locale struct {
	Language string
	Script   string
	Region   string
}

// glibc locale modifiers naming a script
var modifierScripts = map[string]string{
	"latin":      "Latn",
	"cyrillic":   "Cyrl",
	"devanagari": "Deva",
}

// ParseLocale accepts "de", "de-DE", "de_DE", "de_DE.UTF-8", "fr-rCA",
// "sr-Latn-RS", "b+sr+Latn", "sr_RS@latin" and "C"/"POSIX" (which yield
// the zero Locale).
func ParseLocale(s string) Locale {
	modifier := ""
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s, modifier = s[:i], strings.ToLower(s[i+1:])
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "C" || s == "POSIX" {
		return Locale{}
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == '+' })
	// Android "b+" qualifier prefix
	if len(parts) > 1 && (parts[0] == "b" || parts[0] == "B") && strings.HasPrefix(s, parts[0]+"+") {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return Locale{}
	}

	loc := Locale{Language: strings.ToLower(parts[0])}
	for _, p := range parts[1:] {
		// Android resource qualifier style "rCA"
		if len(p) == 3 && (p[0] == 'r' || p[0] == 'R') && !isDigits(p) {
			p = p[1:]
		}
		switch {
		case loc.Script == "" && loc.Region == "" && len(p) == 4 && isLetters(p):
			loc.Script = normalizeScript(p)
		case loc.Region == "" && (len(p) == 2 || (len(p) == 3 && isDigits(p))):
			loc.Region = strings.ToUpper(p)
		}
	}
	if loc.Script == "" {
		loc.Script = modifierScripts[modifier]
	}
	return loc
}

// normalizeScript title-cases a script subtag ("latn" -> "Latn")
func normalizeScript(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// LocaleFromEnv reads the locale from LC_ALL, LC_MESSAGES and LANG, in
// that order.
func LocaleFromEnv() Locale {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return ParseLocale(v)
		}
	}
	return Locale{}
}

// String returns the locale tag ("", "de", "de-DE", "sr-Latn-RS").
func (l Locale) String() string {
	if l.Language == "" {
		return ""
	}
	parts := []string{l.Language}
	if l.Script != "" {
		parts = append(parts, l.Script)
	}
	if l.Region != "" {
		parts = append(parts, l.Region)
	}
	return strings.Join(parts, "-")
}
