package binres

import (
	"encoding/binary"
	"fmt"

	"github.com/ralt/dexscope/internal/models"
)

// AndroidNS is the namespace URI of the android: attribute prefix
const AndroidNS = "http://schemas.android.com/apk/res/android"

// Framework attribute resource ids
const (
	AttrLabel       = 0x01010001
	AttrName        = 0x01010003
	AttrVersionCode = 0x0101021b
	AttrVersionName = 0x0101021c
)

const (
	xmlNodeHeaderSize = 16
	xmlAttributeSize  = 20
)

// Attribute is one decoded attribute of an element
type Attribute struct {
	Namespace string
	Name      string
	ResID     uint32
	Value     Value
}

// Element is a node of the decoded manifest tree
type Element struct {
	Namespace  string
	Name       string
	Attributes []Attribute
	Children   []*Element
}

// Attr returns the attribute with the given namespace URI and local name.
func (e *Element) Attr(ns, name string) (Attribute, bool) {
	if e == nil {
		return Attribute{}, false
	}
	for _, a := range e.Attributes {
		if a.Namespace == ns && a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttrByID returns the attribute mapped to the framework resource id.
func (e *Element) AttrByID(id uint32) (Attribute, bool) {
	if e == nil {
		return Attribute{}, false
	}
	for _, a := range e.Attributes {
		if a.ResID == id {
			return a, true
		}
	}
	return Attribute{}, false
}

// AndroidAttr looks an android: attribute up by resource id, then by name.
// Obfuscated manifests often strip attribute names but keep the id map.
func (e *Element) AndroidAttr(id uint32, name string) (Attribute, bool) {
	if a, ok := e.AttrByID(id); ok {
		return a, true
	}
	return e.Attr(AndroidNS, name)
}

// Child returns the first child element with the given name.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Manifest is a decoded AndroidManifest.xml
type Manifest struct {
	Root *Element

	// Warnings lists the degradations applied while decoding
	Warnings []string
}

// Package returns the package identifier declared on the root element.
func (m *Manifest) Package() string {
	if a, ok := m.Root.Attr("", "package"); ok {
		return a.Value.Text()
	}
	return ""
}

// Application returns the <application> element, or nil.
func (m *Manifest) Application() *Element {
	return m.Root.Child("application")
}

// VersionName returns android:versionName when it is a literal string.
func (m *Manifest) VersionName() string {
	a, ok := m.Root.AndroidAttr(AttrVersionName, "versionName")
	if !ok || a.Value.Kind != KindString {
		return ""
	}
	return a.Value.String
}

// VersionCode returns android:versionCode, or 0.
func (m *Manifest) VersionCode() uint32 {
	a, ok := m.Root.AndroidAttr(AttrVersionCode, "versionCode")
	if !ok || a.Value.Kind != KindInteger {
		return 0
	}
	return a.Value.Data
}

// manifestDecoder holds the state of a single ParseManifest call
type manifestDecoder struct {
	strings *StringPool
	resIDs  []uint32
	stack   []*Element
	root    *Element
	warn    []string
}

func (d *manifestDecoder) warnf(format string, args ...interface{}) {
	d.warn = append(d.warn, fmt.Sprintf(format, args...))
}

// ParseManifest decodes a binary XML document into an element tree.
func ParseManifest(data []byte) (*Manifest, error) {
	doc, err := readChunk(data, 0)
	if err != nil {
		return nil, malformedManifest("bad document header: %v", err)
	}
	if doc.kind != chunkXML {
		return nil, malformedManifest("not a binary XML document (chunk type %s)", doc.kind)
	}

	d := &manifestDecoder{}
	for off := doc.headerSize; off < len(doc.data); {
		c, err := readChunk(doc.data, off)
		if err != nil {
			return nil, malformedManifest("%v", err)
		}

		switch c.kind {
		case chunkStringPool:
			if d.strings != nil {
				d.warnf("ignoring extra string pool at offset 0x%x", off)
				break
			}
			pool, err := parseStringPool(c)
			if err != nil {
				return nil, malformedManifest("string pool: %v", err)
			}
			d.strings = pool
		case chunkXMLResourceMap:
			d.readResourceMap(c)
		case chunkXMLStartNamespace, chunkXMLEndNamespace, chunkXMLCData:
			// namespace URIs are carried on each attribute; text is not needed
		case chunkXMLStartElement:
			d.startElement(c, off)
		case chunkXMLEndElement:
			d.endElement(c, off)
		default:
			d.warnf("skipped unknown %s chunk at offset 0x%x", c.kind, off)
		}

		off += len(c.data)
	}

	// Close elements left open by a truncated document
	if len(d.stack) > 0 {
		d.warnf("%d element(s) not closed", len(d.stack))
		for len(d.stack) > 0 {
			d.pop()
		}
	}

	if d.root == nil {
		return nil, malformedManifest("document has no elements")
	}
	if d.root.Name != "manifest" {
		return nil, malformedManifest("root element is <%s>, want <manifest>", d.root.Name)
	}

	return &Manifest{Root: d.root, Warnings: d.warn}, nil
}

func malformedManifest(format string, args ...interface{}) error {
	return models.NewError(models.ErrManifestMalformed, format, args...)
}

func (d *manifestDecoder) readResourceMap(c chunk) {
	body := c.body()
	ids := make([]uint32, len(body)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(body[4*i:])
	}
	d.resIDs = ids
}

// str resolves a string index, degrading to "" on a bad index
func (d *manifestDecoder) str(idx uint32, what string) string {
	if idx == NoIndex {
		return ""
	}
	s, ok := d.strings.String(idx)
	if !ok {
		d.warnf("%s: string index %d out of range", what, idx)
	}
	return s
}

func (d *manifestDecoder) startElement(c chunk, off int) {
	if c.headerSize < xmlNodeHeaderSize {
		d.warnf("start-element at offset 0x%x has short header", off)
	}

	r := newReader(c.data, c.headerSize)
	extStart := r.off
	nsIdx := r.u32()
	nameIdx := r.u32()
	attrStart := int(r.u16())
	attrSize := int(r.u16())
	attrCount := int(r.u16())
	if r.err != nil {
		d.warnf("start-element at offset 0x%x truncated: %v", off, r.err)
		return
	}

	el := &Element{
		Namespace: d.str(nsIdx, "element namespace"),
		Name:      d.str(nameIdx, "element name"),
	}

	if attrSize < xmlAttributeSize {
		if attrCount > 0 {
			d.warnf("<%s>: attribute size %d too small, attributes dropped", el.Name, attrSize)
		}
		attrCount = 0
	}

	base := extStart + attrStart
	for i := 0; i < attrCount; i++ {
		ar := newReader(c.data, base+i*attrSize)
		ans := ar.u32()
		aname := ar.u32()
		raw := ar.u32()
		_ = ar.u16() // Res_value size
		_ = ar.u8()
		dataType := ar.u8()
		data := ar.u32()
		if ar.err != nil {
			d.warnf("<%s>: %d of %d attributes fit in chunk", el.Name, i, attrCount)
			break
		}

		attr := Attribute{
			Namespace: d.str(ans, "attribute namespace"),
			Name:      d.str(aname, "attribute name"),
		}
		if aname != NoIndex && int64(aname) < int64(len(d.resIDs)) {
			attr.ResID = d.resIDs[aname]
		}

		v, ok := decodeValue(dataType, data, d.strings)
		if !ok && raw != NoIndex {
			// Some encoders leave data unset and only fill the raw string index
			v.String, ok = d.strings.String(raw)
		}
		if !ok {
			d.warnf("<%s %s>: string value index %d out of range", el.Name, attr.Name, data)
		}
		attr.Value = v

		el.Attributes = append(el.Attributes, attr)
	}

	d.stack = append(d.stack, el)
}

func (d *manifestDecoder) endElement(c chunk, off int) {
	if len(d.stack) == 0 {
		d.warnf("unbalanced end-element at offset 0x%x", off)
		return
	}

	r := newReader(c.data, c.headerSize)
	_ = r.u32()
	nameIdx := r.u32()
	if r.err == nil {
		top := d.stack[len(d.stack)-1]
		if name, _ := d.strings.String(nameIdx); name != top.Name {
			d.warnf("end-element </%s> closes <%s>", name, top.Name)
		}
	}

	d.pop()
}

// pop closes the innermost open element and attaches it to its parent
func (d *manifestDecoder) pop() {
	el := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]

	if len(d.stack) > 0 {
		parent := d.stack[len(d.stack)-1]
		parent.Children = append(parent.Children, el)
		return
	}
	if d.root == nil {
		d.root = el
		return
	}
	d.warnf("ignoring extra top-level element <%s>", el.Name)
}
