package testutil

import (
	"bytes"
	"strings"
	"unicode/utf16"
)

// Offset table encodings of a type chunk
const (
	Dense = iota
	Sparse
	Offset16
)

// Value is one configuration-qualified value of a resource entry
type Value struct {
	Locale  string // "", "fr", "fr-CA" or "sr-Latn"
	Density uint16
	SDK     uint16
	Type    uint8
	Data    uint32
	Str     string
}

// StringValue returns a string value under locale.
func StringValue(locale, s string) Value {
	return Value{Locale: locale, Type: TypeString, Str: s}
}

// RefValue returns a reference value under locale.
func RefValue(locale string, id uint32) Value {
	return Value{Locale: locale, Type: TypeReference, Data: id}
}

// Entry is a resource entry; its index in Type.Entries is its entry id.
type Entry struct {
	Key    string
	Values []Value
}

// Type is a resource type such as "string"
type Type struct {
	ID       uint8
	Name     string
	Entries  []Entry
	Encoding int
}

// Package is a resource table package
type Package struct {
	ID    uint32
	Name  string
	Types []Type
}

// ResID composes a resource identifier.
func ResID(pkg uint32, typ uint8, entry uint16) uint32 {
	return pkg<<24 | uint32(typ)<<16 | uint32(entry)
}

// BuildTable encodes pkgs as a resources.arsc file.
func BuildTable(pkgs ...Package) []byte {
	values := newStringTable()
	for _, p := range pkgs {
		for _, t := range p.Types {
			for _, e := range t.Entries {
				for _, v := range e.Values {
					if v.Type == TypeString {
						values.add(v.Str)
					}
				}
			}
		}
	}

	var body bytes.Buffer
	body.Write(BuildStringPool(values.strs, true))
	for _, p := range pkgs {
		body.Write(buildPackage(p, values))
	}

	var b bytes.Buffer
	writeHeader(&b, 0x0002, 12, 12+body.Len())
	put32(&b, uint32(len(pkgs)))
	b.Write(body.Bytes())
	return b.Bytes()
}

const fixturePackageHeaderSize = 288

func buildPackage(p Package, values *stringTable) []byte {
	var maxType uint8
	keys := newStringTable()
	for _, t := range p.Types {
		if t.ID > maxType {
			maxType = t.ID
		}
		for _, e := range t.Entries {
			keys.add(e.Key)
		}
	}
	typeNames := make([]string, maxType)
	for _, t := range p.Types {
		typeNames[t.ID-1] = t.Name
	}

	typePool := BuildStringPool(typeNames, false)
	keyPool := BuildStringPool(keys.strs, true)

	var chunks bytes.Buffer
	chunks.Write(typePool)
	chunks.Write(keyPool)
	for _, t := range p.Types {
		chunks.Write(buildTypeSpec(t))
		for _, cfg := range typeConfigs(t) {
			chunks.Write(buildType(t, cfg, values, keys))
		}
	}

	var b bytes.Buffer
	writeHeader(&b, 0x0200, fixturePackageHeaderSize, fixturePackageHeaderSize+chunks.Len())
	put32(&b, p.ID)
	name := utf16.Encode([]rune(p.Name))
	for i := 0; i < 128; i++ {
		var u uint16
		if i < len(name) && i < 127 {
			u = name[i]
		}
		put16(&b, u)
	}
	put32(&b, fixturePackageHeaderSize) // typeStrings
	put32(&b, uint32(maxType))           // lastPublicType
	put32(&b, uint32(fixturePackageHeaderSize+len(typePool)))
	put32(&b, uint32(len(keys.strs))) // lastPublicKey
	put32(&b, 0)                      // typeIdOffset
	b.Write(chunks.Bytes())
	return b.Bytes()
}

func buildTypeSpec(t Type) []byte {
	var b bytes.Buffer
	writeHeader(&b, 0x0202, 16, 16+4*len(t.Entries))
	b.WriteByte(t.ID)
	b.WriteByte(0)
	put16(&b, 0)
	put32(&b, uint32(len(t.Entries)))
	for range t.Entries {
		put32(&b, 0)
	}
	return b.Bytes()
}

// fixtureConfig is the part of ResTable_config fixtures can set
type fixtureConfig struct {
	locale  string
	density uint16
	sdk     uint16
}

func configOf(v Value) fixtureConfig {
	return fixtureConfig{locale: v.Locale, density: v.Density, sdk: v.SDK}
}

// typeConfigs lists the distinct configs of t in order of first use
func typeConfigs(t Type) []fixtureConfig {
	var out []fixtureConfig
	seen := make(map[fixtureConfig]bool)
	for _, e := range t.Entries {
		for _, v := range e.Values {
			c := configOf(v)
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

const fixtureConfigSize = 64

func buildConfig(c fixtureConfig) []byte {
	cfg := make([]byte, fixtureConfigSize)
	cfg[0] = fixtureConfigSize
	parts := strings.Split(c.locale, "-")
	copy(cfg[8:10], parts[0])
	for _, p := range parts[1:] {
		if len(p) == 4 {
			copy(cfg[36:40], p)
		} else {
			copy(cfg[10:12], p)
		}
	}
	cfg[14] = byte(c.density)
	cfg[15] = byte(c.density >> 8)
	cfg[24] = byte(c.sdk)
	cfg[25] = byte(c.sdk >> 8)
	return cfg
}

func buildType(t Type, cfg fixtureConfig, values, keys *stringTable) []byte {
	var entries bytes.Buffer
	offsets := make([]int, len(t.Entries))
	for i, e := range t.Entries {
		offsets[i] = -1
		for _, v := range e.Values {
			if configOf(v) != cfg {
				continue
			}
			offsets[i] = entries.Len()
			data := v.Data
			if v.Type == TypeString {
				data = values.add(v.Str)
			}
			put16(&entries, 8) // entry size
			put16(&entries, 0) // flags
			put32(&entries, keys.add(e.Key))
			put16(&entries, 8) // Res_value size
			entries.WriteByte(0)
			entries.WriteByte(v.Type)
			put32(&entries, data)
			break
		}
	}

	var table bytes.Buffer
	var flags byte
	entryCount := len(t.Entries)
	switch t.Encoding {
	case Sparse:
		flags = 0x01
		entryCount = 0
		for i, off := range offsets {
			if off < 0 {
				continue
			}
			put16(&table, uint16(i))
			put16(&table, uint16(off/4))
			entryCount++
		}
	case Offset16:
		flags = 0x02
		for _, off := range offsets {
			if off < 0 {
				put16(&table, 0xFFFF)
				continue
			}
			put16(&table, uint16(off/4))
		}
		for table.Len()%4 != 0 {
			table.WriteByte(0)
		}
	default:
		for _, off := range offsets {
			if off < 0 {
				put32(&table, 0xFFFFFFFF)
				continue
			}
			put32(&table, uint32(off))
		}
	}

	headerSize := 20 + fixtureConfigSize
	entriesStart := headerSize + table.Len()

	var b bytes.Buffer
	writeHeader(&b, 0x0201, headerSize, entriesStart+entries.Len())
	b.WriteByte(t.ID)
	b.WriteByte(flags)
	put16(&b, 0)
	put32(&b, uint32(entryCount))
	put32(&b, uint32(entriesStart))
	b.Write(buildConfig(cfg))
	b.Write(table.Bytes())
	b.Write(entries.Bytes())
	return b.Bytes()
}

// StringsTable builds a single-package table (id 0x7f) with one "string"
// type (id 1) holding entries.
func StringsTable(entries ...Entry) []byte {
	return BuildTable(Package{
		ID:   0x7f,
		Name: "com.example.app",
		Types: []Type{{
			ID:      1,
			Name:    "string",
			Entries: entries,
		}},
	})
}
