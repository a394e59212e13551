package binres

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/ralt/dexscope/internal/models"
)

const (
	tableHeaderSize   = 12
	packageHeaderSize = 284
	typeHeaderSize    = 20

	noEntry   = 0xFFFFFFFF
	noEntry16 = 0xFFFF

	// ResTable_type flags
	typeFlagSparse   = 0x01
	typeFlagOffset16 = 0x02

	// ResTable_entry flags
	entryFlagComplex = 0x0001
	entryFlagCompact = 0x0008
)

// ResourceEntry is one value of a resource under a specific configuration
type ResourceEntry struct {
	Config Config
	Key    string
	Value  Value
}

// Table is a decoded resources.arsc. It indexes type chunks at parse time
// and materializes entries on lookup; it is never modified after ParseTable
// returns.
type Table struct {
	strings  *StringPool
	packages []*tablePackage

	// Warnings lists the package and type chunks that were skipped
	Warnings []string
}

type tablePackage struct {
	id    uint32
	name  string
	keys  *StringPool
	types map[uint8][]typeChunk
}

// typeChunk is one ResTable_type: the entries of a type under one config
type typeChunk struct {
	config       Config
	flags        uint8
	entryCount   int
	data         []byte
	offsetsStart int
	entriesStart int
}

// ParseTable decodes a compiled resource table.
func ParseTable(data []byte) (*Table, error) {
	hdr, err := readChunk(data, 0)
	if err != nil {
		return nil, malformedTable("bad table header: %v", err)
	}
	if hdr.kind != chunkTable || hdr.headerSize < tableHeaderSize {
		return nil, malformedTable("not a resource table (chunk type %s)", hdr.kind)
	}

	t := &Table{}
	for off := hdr.headerSize; off < len(hdr.data); {
		c, err := readChunk(hdr.data, off)
		if err != nil {
			if t.strings == nil {
				return nil, malformedTable("%v", err)
			}
			t.warnf("stopped at offset 0x%x: %v", off, err)
			break
		}

		switch c.kind {
		case chunkStringPool:
			if t.strings != nil {
				t.warnf("ignoring extra string pool at offset 0x%x", off)
				break
			}
			pool, err := parseStringPool(c)
			if err != nil {
				return nil, malformedTable("global string pool: %v", err)
			}
			t.strings = pool
		case chunkTablePackage:
			if t.strings == nil {
				return nil, malformedTable("package chunk at offset 0x%x precedes the global string pool", off)
			}
			p, err := t.parsePackage(c)
			if err != nil {
				t.warnf("skipped package chunk at offset 0x%x: %v", off, err)
				break
			}
			t.packages = append(t.packages, p)
		default:
			t.warnf("skipped unknown %s chunk at offset 0x%x", c.kind, off)
		}

		off += len(c.data)
	}

	if t.strings == nil {
		return nil, malformedTable("missing global string pool")
	}

	return t, nil
}

func malformedTable(format string, args ...interface{}) error {
	return models.NewError(models.ErrResourceTableMalformed, format, args...)
}

func (t *Table) warnf(format string, args ...interface{}) {
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}

// PackageNames returns the names of the decoded packages in table order.
func (t *Table) PackageNames() []string {
	names := make([]string, 0, len(t.packages))
	for _, p := range t.packages {
		names = append(names, p.name)
	}
	return names
}

func (t *Table) parsePackage(c chunk) (*tablePackage, error) {
	if c.headerSize < packageHeaderSize {
		return nil, fmt.Errorf("header size %d too small", c.headerSize)
	}

	r := newReader(c.data, chunkHeaderSize)
	p := &tablePackage{types: make(map[uint8][]typeChunk)}
	p.id = r.u32()
	p.name = decodeFixedUTF16(r.bytes(256))
	typeStrings := int(r.u32())
	_ = r.u32() // lastPublicType
	keyStrings := int(r.u32())
	_ = r.u32() // lastPublicKey
	var typeIDOffset uint32
	if c.headerSize >= packageHeaderSize+4 {
		typeIDOffset = r.u32()
	}
	if r.err != nil {
		return nil, r.err
	}

	var pools int
	for off := c.headerSize; off < len(c.data); {
		sub, err := readChunk(c.data, off)
		if err != nil {
			return nil, err
		}

		switch sub.kind {
		case chunkStringPool:
			pool, err := parseStringPool(sub)
			if err != nil {
				return nil, fmt.Errorf("string pool at offset 0x%x: %w", off, err)
			}
			// Key strings are found by offset, falling back to pool order
			if off == keyStrings || (off != typeStrings && pools == 1) {
				p.keys = pool
			}
			pools++
		case chunkTableType:
			tc, id, err := parseTypeChunk(sub)
			if err != nil {
				t.warnf("package 0x%02x: skipped type chunk at offset 0x%x: %v", p.id, off, err)
				break
			}
			id += uint8(typeIDOffset)
			p.types[id] = append(p.types[id], tc)
		case chunkTableTypeSpec, chunkTableLibrary, chunkTableOverlayable, chunkTableStagedAlias:
			// not needed to resolve values
		default:
			t.warnf("package 0x%02x: skipped unknown %s chunk at offset 0x%x", p.id, sub.kind, off)
		}

		off += len(sub.data)
	}

	return p, nil
}

func parseTypeChunk(c chunk) (typeChunk, uint8, error) {
	if c.headerSize < typeHeaderSize+4 {
		return typeChunk{}, 0, fmt.Errorf("header size %d too small", c.headerSize)
	}

	r := newReader(c.data, chunkHeaderSize)
	id := r.u8()
	flags := r.u8()
	_ = r.u16()
	entryCount := int64(r.u32())
	entriesStart := int64(r.u32())
	if r.err != nil {
		return typeChunk{}, 0, r.err
	}
	if id == 0 {
		return typeChunk{}, 0, fmt.Errorf("type id 0")
	}

	config, err := parseConfig(c.data[typeHeaderSize:c.headerSize])
	if err != nil {
		return typeChunk{}, 0, err
	}

	width := int64(4)
	if flags&typeFlagOffset16 != 0 && flags&typeFlagSparse == 0 {
		width = 2
	}
	if int64(c.headerSize)+entryCount*width > int64(len(c.data)) {
		return typeChunk{}, 0, fmt.Errorf("%d entry offsets overrun chunk", entryCount)
	}
	if entriesStart > int64(len(c.data)) {
		return typeChunk{}, 0, fmt.Errorf("entries start 0x%x outside chunk", entriesStart)
	}

	return typeChunk{
		config:       config,
		flags:        flags,
		entryCount:   int(entryCount),
		data:         c.data,
		offsetsStart: c.headerSize,
		entriesStart: int(entriesStart),
	}, id, nil
}

// entryOffset locates entry idx relative to entriesStart
func (tc typeChunk) entryOffset(idx int) (int, bool) {
	switch {
	case tc.flags&typeFlagSparse != 0:
		// sorted (index u16, offset/4 u16) pairs
		pos := sort.Search(tc.entryCount, func(i int) bool {
			return int(binary.LittleEndian.Uint16(tc.data[tc.offsetsStart+4*i:])) >= idx
		})
		if pos == tc.entryCount {
			return 0, false
		}
		at := tc.offsetsStart + 4*pos
		if int(binary.LittleEndian.Uint16(tc.data[at:])) != idx {
			return 0, false
		}
		return int(binary.LittleEndian.Uint16(tc.data[at+2:])) * 4, true
	case tc.flags&typeFlagOffset16 != 0:
		if idx >= tc.entryCount {
			return 0, false
		}
		off := binary.LittleEndian.Uint16(tc.data[tc.offsetsStart+2*idx:])
		if off == noEntry16 {
			return 0, false
		}
		return int(off) * 4, true
	default:
		if idx >= tc.entryCount {
			return 0, false
		}
		off := binary.LittleEndian.Uint32(tc.data[tc.offsetsStart+4*idx:])
		if off == noEntry {
			return 0, false
		}
		return int(off), true
	}
}

// value decodes entry idx. ok is false for absent, complex or damaged entries.
func (tc typeChunk) value(idx int, strings, keys *StringPool) (ResourceEntry, bool) {
	off, ok := tc.entryOffset(idx)
	if !ok {
		return ResourceEntry{}, false
	}

	r := newReader(tc.data, tc.entriesStart+off)
	size := r.u16()
	flags := r.u16()
	key := r.u32()
	if r.err != nil {
		return ResourceEntry{}, false
	}

	var dataType uint8
	var data uint32
	switch {
	case flags&entryFlagCompact != 0:
		dataType = uint8(flags >> 8)
		data = key
		key = uint32(size)
	case flags&entryFlagComplex != 0:
		return ResourceEntry{}, false
	default:
		vr := newReader(tc.data, tc.entriesStart+off+int(size))
		_ = vr.u16()
		_ = vr.u8()
		dataType = vr.u8()
		data = vr.u32()
		if vr.err != nil {
			return ResourceEntry{}, false
		}
	}

	v, ok := decodeValue(dataType, data, strings)
	if !ok {
		return ResourceEntry{}, false
	}
	name, _ := keys.String(key)

	return ResourceEntry{Config: tc.config, Key: name, Value: v}, true
}

// Entries returns every value of resource id, in table order. When several
// packages share the package id, a later package replaces an earlier
// default-configuration value only; other configurations are unioned.
func (t *Table) Entries(id uint32) []ResourceEntry {
	if t == nil {
		return nil
	}
	pkgID := id >> 24
	typeID := uint8(id >> 16)
	idx := int(id & 0xFFFF)
	if typeID == 0 {
		return nil
	}

	var out []ResourceEntry
	for _, p := range t.packages {
		if p.id != pkgID {
			continue
		}
		for _, tc := range p.types[typeID] {
			e, ok := tc.value(idx, t.strings, p.keys)
			if !ok {
				continue
			}
			out = mergeEntry(out, e)
		}
	}
	return out
}

func mergeEntry(entries []ResourceEntry, e ResourceEntry) []ResourceEntry {
	for i := range entries {
		if entries[i].Config != e.Config {
			continue
		}
		if e.Config.IsDefault() {
			entries[i] = e
		}
		return entries
	}
	return append(entries, e)
}

func decodeFixedUTF16(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
