// Package binres decodes the compiled binary formats found in Android
// package archives: the binary XML manifest and the resource table.
package binres

import (
	"encoding/binary"
	"fmt"
)

// chunkKind is the type tag of a ResChunk_header
type chunkKind uint16

const (
	chunkNull              chunkKind = 0x0000
	chunkStringPool        chunkKind = 0x0001
	chunkTable             chunkKind = 0x0002
	chunkXML               chunkKind = 0x0003
	chunkXMLStartNamespace chunkKind = 0x0100
	chunkXMLEndNamespace   chunkKind = 0x0101
	chunkXMLStartElement   chunkKind = 0x0102
	chunkXMLEndElement     chunkKind = 0x0103
	chunkXMLCData          chunkKind = 0x0104
	chunkXMLResourceMap    chunkKind = 0x0180
	chunkTablePackage      chunkKind = 0x0200
	chunkTableType         chunkKind = 0x0201
	chunkTableTypeSpec     chunkKind = 0x0202
	chunkTableLibrary      chunkKind = 0x0203
	chunkTableOverlayable  chunkKind = 0x0204
	chunkTableStagedAlias  chunkKind = 0x0206
)

func (k chunkKind) String() string {
	switch k {
	case chunkNull:
		return "null"
	case chunkStringPool:
		return "string-pool"
	case chunkTable:
		return "table"
	case chunkXML:
		return "xml"
	case chunkXMLStartNamespace:
		return "start-namespace"
	case chunkXMLEndNamespace:
		return "end-namespace"
	case chunkXMLStartElement:
		return "start-element"
	case chunkXMLEndElement:
		return "end-element"
	case chunkXMLCData:
		return "cdata"
	case chunkXMLResourceMap:
		return "resource-map"
	case chunkTablePackage:
		return "package"
	case chunkTableType:
		return "type"
	case chunkTableTypeSpec:
		return "type-spec"
	case chunkTableLibrary:
		return "library"
	case chunkTableOverlayable:
		return "overlayable"
	case chunkTableStagedAlias:
		return "staged-alias"
	default:
		return fmt.Sprintf("0x%04x", uint16(k))
	}
}

const chunkHeaderSize = 8

// chunk is one ResChunk_header together with the bytes it spans
type chunk struct {
	kind       chunkKind
	headerSize int
	data       []byte // whole chunk, header included
}

// body returns the bytes that follow the chunk header
func (c chunk) body() []byte {
	return c.data[c.headerSize:]
}

// readChunk reads the chunk starting at off in buf. The chunk must fit in buf.
func readChunk(buf []byte, off int) (chunk, error) {
	if off < 0 || len(buf)-off < chunkHeaderSize {
		return chunk{}, fmt.Errorf("truncated chunk header at offset 0x%x", off)
	}

	kind := chunkKind(binary.LittleEndian.Uint16(buf[off:]))
	headerSize := int(binary.LittleEndian.Uint16(buf[off+2:]))
	size := int64(binary.LittleEndian.Uint32(buf[off+4:]))

	if headerSize < chunkHeaderSize {
		return chunk{}, fmt.Errorf("%s chunk at offset 0x%x has header size %d", kind, off, headerSize)
	}
	if size < int64(headerSize) {
		return chunk{}, fmt.Errorf("%s chunk at offset 0x%x has size %d smaller than its header", kind, off, size)
	}
	if size > int64(len(buf)-off) {
		return chunk{}, fmt.Errorf("%s chunk at offset 0x%x overruns buffer (%d > %d)", kind, off, size, len(buf)-off)
	}

	return chunk{
		kind:       kind,
		headerSize: headerSize,
		data:       buf[off : off+int(size)],
	}, nil
}

// reader is a bounds-checked little-endian cursor over a byte slice
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte, off int) *reader {
	return &reader{buf: buf, off: off}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off < 0 || n > len(r.buf)-r.off {
		r.err = fmt.Errorf("read of %d bytes at offset 0x%x past end of %d byte buffer", n, r.off, len(r.buf))
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}
