package binres

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	stringPoolHeaderSize = 28
	stringPoolUTF8Flag   = 1 << 8
)

// NoIndex marks an absent string pool reference
const NoIndex = 0xFFFFFFFF

// StringPool is a decoded ResStringPool. Strings are decoded on demand and
// never cached, so a pool can be read from several goroutines.
type StringPool struct {
	data    []byte
	offsets []uint32
	start   int
	utf8    bool
}

// parseStringPool validates the pool header and offset array of c
func parseStringPool(c chunk) (*StringPool, error) {
	if c.kind != chunkStringPool {
		return nil, fmt.Errorf("expected string pool, got %s chunk", c.kind)
	}
	if c.headerSize < stringPoolHeaderSize {
		return nil, fmt.Errorf("string pool header size %d too small", c.headerSize)
	}

	r := newReader(c.data, chunkHeaderSize)
	count := r.u32()
	styleCount := r.u32()
	flags := r.u32()
	stringsStart := r.u32()
	_ = r.u32() // stylesStart
	if r.err != nil {
		return nil, r.err
	}

	offsetsEnd := int64(c.headerSize) + 4*int64(count) + 4*int64(styleCount)
	if offsetsEnd > int64(len(c.data)) {
		return nil, fmt.Errorf("string pool declares %d strings, offsets overrun chunk", count)
	}
	if count > 0 && int64(stringsStart) >= int64(len(c.data)) {
		return nil, fmt.Errorf("string pool data start 0x%x outside chunk", stringsStart)
	}

	offsets := make([]uint32, count)
	r.off = c.headerSize
	for i := range offsets {
		offsets[i] = r.u32()
	}

	return &StringPool{
		data:    c.data,
		offsets: offsets,
		start:   int(stringsStart),
		utf8:    flags&stringPoolUTF8Flag != 0,
	}, nil
}

// Len returns the number of strings in the pool.
func (p *StringPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.offsets)
}

// String returns the string at index idx. ok is false for out-of-range
// indexes and for entries whose encoded length runs past the chunk.
func (p *StringPool) String(idx uint32) (string, bool) {
	if p == nil || idx == NoIndex || int64(idx) >= int64(len(p.offsets)) {
		return "", false
	}
	off := int64(p.start) + int64(p.offsets[idx])
	if off >= int64(len(p.data)) {
		return "", false
	}
	if p.utf8 {
		return decodeUTF8(p.data[off:])
	}
	return decodeUTF16(p.data[off:])
}

func decodeUTF16(b []byte) (string, bool) {
	if len(b) < 2 {
		return "", false
	}
	n := int(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if n&0x8000 != 0 {
		if len(b) < 2 {
			return "", false
		}
		n = (n&0x7FFF)<<16 | int(binary.LittleEndian.Uint16(b))
		b = b[2:]
	}
	if n*2 > len(b) {
		return "", false
	}

	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), true
}

func decodeUTF8(b []byte) (string, bool) {
	// UTF-16 length first, then the encoded byte length
	_, b, ok := utf8Length(b)
	if !ok {
		return "", false
	}
	n, b, ok := utf8Length(b)
	if !ok || n > len(b) {
		return "", false
	}

	s := b[:n]
	if !utf8.Valid(s) {
		return strings.ToValidUTF8(string(s), "\uFFFD"), true
	}
	return string(s), true
}

func utf8Length(b []byte) (int, []byte, bool) {
	if len(b) < 1 {
		return 0, nil, false
	}
	n := int(b[0])
	if n&0x80 == 0 {
		return n, b[1:], true
	}
	if len(b) < 2 {
		return 0, nil, false
	}
	return (n&0x7F)<<8 | int(b[1]), b[2:], true
}
