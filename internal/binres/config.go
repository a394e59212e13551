package binres

import (
	"fmt"
	"strings"
)

// Config is a decoded ResTable_config: the qualifiers selecting one value
// of a resource. The zero Config is the default configuration.
type Config struct {
	MCC      uint16
	MNC      uint16
	Language string
	Region   string

	Orientation uint8
	Touchscreen uint8
	Density     uint16

	Keyboard   uint8
	Navigation uint8
	InputFlags uint8

	ScreenWidth  uint16
	ScreenHeight uint16
	SDKVersion   uint16
	MinorVersion uint16

	ScreenLayout     uint8
	UIMode           uint8
	SmallestWidthDp  uint16
	ScreenWidthDp    uint16
	ScreenHeightDp   uint16
	Script           string
	Variant          string
	ScreenLayout2    uint8
	ColorMode        uint8
	GrammaticalInfl  uint8

	// Extra holds trailing bytes of newer config layouts, so that two
	// configs differing only there still compare unequal.
	Extra string
}

// parseConfig decodes a ResTable_config; b starts at its size field
func parseConfig(b []byte) (Config, error) {
	r := newReader(b, 0)
	size := int(r.u32())
	if r.err != nil {
		return Config{}, r.err
	}
	if size < 4 || size > len(b) {
		return Config{}, fmt.Errorf("config size %d outside %d byte header", size, len(b))
	}
	r.buf = b[:size]

	var c Config
	// Each group is read only when the declared size covers it
	if size >= 8 {
		c.MCC = r.u16()
		c.MNC = r.u16()
	}
	if size >= 12 {
		c.Language = unpackLanguage(r.bytes(2), 'a')
		c.Region = unpackLanguage(r.bytes(2), '0')
	}
	if size >= 16 {
		c.Orientation = r.u8()
		c.Touchscreen = r.u8()
		c.Density = r.u16()
	}
	if size >= 20 {
		c.Keyboard = r.u8()
		c.Navigation = r.u8()
		c.InputFlags = r.u8()
		_ = r.u8()
	}
	if size >= 24 {
		c.ScreenWidth = r.u16()
		c.ScreenHeight = r.u16()
	}
	if size >= 28 {
		c.SDKVersion = r.u16()
		c.MinorVersion = r.u16()
	}
	if size >= 32 {
		c.ScreenLayout = r.u8()
		c.UIMode = r.u8()
		c.SmallestWidthDp = r.u16()
	}
	if size >= 36 {
		c.ScreenWidthDp = r.u16()
		c.ScreenHeightDp = r.u16()
	}
	if size >= 40 {
		c.Script = trimNUL(r.bytes(4))
	}
	if size >= 48 {
		c.Variant = trimNUL(r.bytes(8))
	}
	if size >= 52 {
		c.ScreenLayout2 = r.u8()
		c.ColorMode = r.u8()
		_ = r.u8()
		c.GrammaticalInfl = r.u8()
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if rest := b[r.off:size]; len(rest) > 0 && !allZero(rest) {
		c.Extra = string(rest)
	}

	return c, nil
}

// unpackLanguage decodes a two byte language or region code. Three letter
// codes are packed into 15 bits with the high bit of the first byte set.
func unpackLanguage(b []byte, base byte) string {
	if len(b) != 2 || (b[0] == 0 && b[1] == 0) {
		return ""
	}
	if b[0]&0x80 != 0 {
		first := b[1] & 0x1F
		second := (b[1]&0xE0)>>5 | (b[0]&0x03)<<3
		third := (b[0] & 0x7C) >> 2
		return string([]byte{first + base, second + base, third + base})
	}
	return string(b)
}

func trimNUL(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// IsDefault reports whether c carries no qualifier at all.
func (c Config) IsDefault() bool {
	return c == Config{}
}

// Locale returns the BCP-47 style locale tag of c ("", "fr", "fr-CA",
// "sr-Latn-RS").
func (c Config) Locale() string {
	if c.Language == "" {
		return ""
	}
	parts := []string{strings.ToLower(c.Language)}
	if c.Script != "" {
		parts = append(parts, c.Script)
	}
	if c.Region != "" {
		parts = append(parts, strings.ToUpper(c.Region))
	}
	return strings.Join(parts, "-")
}

// Qualifiers counts the non-locale qualifiers set on c.
func (c Config) Qualifiers() int {
	rest := c
	rest.Language, rest.Region, rest.Script, rest.Variant = "", "", "", ""

	n := 0
	for _, set := range []bool{
		rest.MCC != 0, rest.MNC != 0,
		rest.Orientation != 0, rest.Touchscreen != 0, rest.Density != 0,
		rest.Keyboard != 0, rest.Navigation != 0, rest.InputFlags != 0,
		rest.ScreenWidth != 0, rest.ScreenHeight != 0,
		rest.SDKVersion != 0, rest.MinorVersion != 0,
		rest.ScreenLayout != 0, rest.UIMode != 0,
		rest.SmallestWidthDp != 0, rest.ScreenWidthDp != 0, rest.ScreenHeightDp != 0,
		rest.ScreenLayout2 != 0, rest.ColorMode != 0, rest.GrammaticalInfl != 0,
		rest.Extra != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// String renders c in aapt qualifier notation, e.g. "fr-rCA-hdpi-v21".
func (c Config) String() string {
	if c.IsDefault() {
		return "default"
	}

	var q []string
	if c.MCC != 0 {
		q = append(q, fmt.Sprintf("mcc%d", c.MCC))
	}
	if c.MNC != 0 {
		q = append(q, fmt.Sprintf("mnc%d", c.MNC))
	}
	if c.Language != "" {
		q = append(q, c.Language)
	}
	if c.Region != "" {
		q = append(q, "r"+c.Region)
	}
	if c.Density != 0 {
		q = append(q, densityName(c.Density))
	}
	if c.SDKVersion != 0 {
		q = append(q, fmt.Sprintf("v%d", c.SDKVersion))
	}
	if len(q) == 0 {
		return "qualified"
	}
	return strings.Join(q, "-")
}

func densityName(d uint16) string {
	switch d {
	case 120:
		return "ldpi"
	case 160:
		return "mdpi"
	case 213:
		return "tvdpi"
	case 240:
		return "hdpi"
	case 320:
		return "xhdpi"
	case 480:
		return "xxhdpi"
	case 640:
		return "xxxhdpi"
	case 0xFFFE:
		return "anydpi"
	case 0xFFFF:
		return "nodpi"
	default:
		return fmt.Sprintf("%ddpi", d)
	}
}
