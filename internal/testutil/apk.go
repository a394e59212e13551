// Package testutil builds Android package fixtures for tests: binary XML
// manifests, compiled resource tables and the archives holding them.
package testutil

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"unicode/utf16"

	"github.com/klauspost/compress/zip"
)

// AndroidNS is the android: namespace URI
const AndroidNS = "http://schemas.android.com/apk/res/android"

// Res_value types used by fixtures
const (
	TypeReference  = 0x01
	TypeString     = 0x03
	TypeIntDec     = 0x10
	TypeIntBoolean = 0x12
)

// Framework attribute ids
const (
	AttrLabel       = 0x01010001
	AttrVersionCode = 0x0101021b
	AttrVersionName = 0x0101021c
)

// Attr is a manifest attribute. Str is used for TypeString values.
type Attr struct {
	NS    string
	Name  string
	ResID uint32
	Type  uint8
	Data  uint32
	Str   string
}

// Node is a manifest element
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
}

// StringAttr returns an attribute with a literal string value.
func StringAttr(ns, name string, resID uint32, value string) Attr {
	return Attr{NS: ns, Name: name, ResID: resID, Type: TypeString, Str: value}
}

// RefAttr returns an attribute referencing resource id.
func RefAttr(ns, name string, resID, id uint32) Attr {
	return Attr{NS: ns, Name: name, ResID: resID, Type: TypeReference, Data: id}
}

// LiteralLabelManifest builds a manifest for pkg with android:label="label".
func LiteralLabelManifest(pkg, label string) []byte {
	return BuildManifest(&Node{
		Name: "manifest",
		Attrs: []Attr{
			StringAttr("", "package", 0, pkg),
			StringAttr(AndroidNS, "versionName", AttrVersionName, "1.0"),
			{NS: AndroidNS, Name: "versionCode", ResID: AttrVersionCode, Type: TypeIntDec, Data: 1},
		},
		Children: []*Node{{
			Name:  "application",
			Attrs: []Attr{StringAttr(AndroidNS, "label", AttrLabel, label)},
		}},
	})
}

// RefLabelManifest builds a manifest for pkg whose label references id.
func RefLabelManifest(pkg string, id uint32) []byte {
	return BuildManifest(&Node{
		Name:  "manifest",
		Attrs: []Attr{StringAttr("", "package", 0, pkg)},
		Children: []*Node{{
			Name:  "application",
			Attrs: []Attr{RefAttr(AndroidNS, "label", AttrLabel, id)},
		}},
	})
}

// NoLabelManifest builds a manifest for pkg without android:label.
func NoLabelManifest(pkg string) []byte {
	return BuildManifest(&Node{
		Name:     "manifest",
		Attrs:    []Attr{StringAttr("", "package", 0, pkg)},
		Children: []*Node{{Name: "application"}},
	})
}

// stringTable collects pool strings, keeping the resource-mapped names first
type stringTable struct {
	strs  []string
	index map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{index: make(map[string]uint32)}
}

func (s *stringTable) add(v string) uint32 {
	if i, ok := s.index[v]; ok {
		return i
	}
	i := uint32(len(s.strs))
	s.strs = append(s.strs, v)
	s.index[v] = i
	return i
}

func (s *stringTable) ref(v string) uint32 {
	if v == "" {
		return 0xFFFFFFFF
	}
	return s.add(v)
}

// BuildManifest encodes root as a binary XML document.
func BuildManifest(root *Node) []byte {
	st := newStringTable()

	// Attribute names carrying resource ids come first so that their
	// pool index matches their slot in the resource map.
	var resIDs []uint32
	var walkIDs func(n *Node)
	walkIDs = func(n *Node) {
		for _, a := range n.Attrs {
			if a.ResID == 0 {
				continue
			}
			if _, ok := st.index[a.Name]; !ok {
				st.add(a.Name)
				resIDs = append(resIDs, a.ResID)
			}
		}
		for _, c := range n.Children {
			walkIDs(c)
		}
	}
	walkIDs(root)

	usesAndroid := false
	var walkStrings func(n *Node)
	walkStrings = func(n *Node) {
		st.add(n.Name)
		for _, a := range n.Attrs {
			st.add(a.Name)
			if a.NS != "" {
				usesAndroid = true
				st.add(a.NS)
			}
			if a.Type == TypeString {
				st.add(a.Str)
			}
		}
		for _, c := range n.Children {
			walkStrings(c)
		}
	}
	walkStrings(root)
	if usesAndroid {
		st.add("android")
	}

	var body bytes.Buffer
	if usesAndroid {
		writeNamespace(&body, 0x0100, st.ref("android"), st.ref(AndroidNS))
	}
	writeNode(&body, st, root)
	if usesAndroid {
		writeNamespace(&body, 0x0101, st.ref("android"), st.ref(AndroidNS))
	}

	var doc bytes.Buffer
	pool := BuildStringPool(st.strs, false)
	resMap := buildResourceMap(resIDs)
	total := 8 + len(pool) + len(resMap) + body.Len()
	writeHeader(&doc, 0x0003, 8, total)
	doc.Write(pool)
	doc.Write(resMap)
	doc.Write(body.Bytes())
	return doc.Bytes()
}

func writeNamespace(w *bytes.Buffer, kind uint16, prefix, uri uint32) {
	writeHeader(w, kind, 16, 24)
	put32(w, 1)          // line number
	put32(w, 0xFFFFFFFF) // comment
	put32(w, prefix)
	put32(w, uri)
}

func writeNode(w *bytes.Buffer, st *stringTable, n *Node) {
	writeHeader(w, 0x0102, 16, 16+20+20*len(n.Attrs))
	put32(w, 1)
	put32(w, 0xFFFFFFFF)
	put32(w, 0xFFFFFFFF) // element namespace
	put32(w, st.ref(n.Name))
	put16(w, 20) // attributeStart
	put16(w, 20) // attributeSize
	put16(w, uint16(len(n.Attrs)))
	put16(w, 0) // idIndex
	put16(w, 0) // classIndex
	put16(w, 0) // styleIndex

	for _, a := range n.Attrs {
		put32(w, st.ref(a.NS))
		put32(w, st.ref(a.Name))
		data := a.Data
		raw := uint32(0xFFFFFFFF)
		if a.Type == TypeString {
			data = st.add(a.Str)
			raw = data
		}
		put32(w, raw)
		put16(w, 8)
		w.WriteByte(0)
		w.WriteByte(a.Type)
		put32(w, data)
	}

	for _, c := range n.Children {
		writeNode(w, st, c)
	}

	writeHeader(w, 0x0103, 16, 24)
	put32(w, 1)
	put32(w, 0xFFFFFFFF)
	put32(w, 0xFFFFFFFF)
	put32(w, st.ref(n.Name))
}

func buildResourceMap(ids []uint32) []byte {
	if len(ids) == 0 {
		return nil
	}
	var b bytes.Buffer
	writeHeader(&b, 0x0180, 8, 8+4*len(ids))
	for _, id := range ids {
		put32(&b, id)
	}
	return b.Bytes()
}

// BuildStringPool encodes strs as a ResStringPool chunk.
func BuildStringPool(strs []string, useUTF8 bool) []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(data.Len())
		if useUTF8 {
			writeUTF8Len(&data, len(utf16.Encode([]rune(s))))
			writeUTF8Len(&data, len(s))
			data.WriteString(s)
			data.WriteByte(0)
			continue
		}
		units := utf16.Encode([]rune(s))
		if len(units) > 0x7FFF {
			put16(&data, uint16(len(units)>>16)|0x8000)
		}
		put16(&data, uint16(len(units)))
		for _, u := range units {
			put16(&data, u)
		}
		put16(&data, 0)
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	var flags uint32
	if useUTF8 {
		flags |= 1 << 8
	}

	headerSize := 28
	stringsStart := headerSize + 4*len(strs)
	if len(strs) == 0 {
		stringsStart = 0
	}
	var b bytes.Buffer
	writeHeader(&b, 0x0001, headerSize, headerSize+4*len(strs)+data.Len())
	put32(&b, uint32(len(strs)))
	put32(&b, 0) // styleCount
	put32(&b, flags)
	put32(&b, uint32(stringsStart))
	put32(&b, 0) // stylesStart
	for _, o := range offsets {
		put32(&b, o)
	}
	b.Write(data.Bytes())
	return b.Bytes()
}

func writeUTF8Len(w *bytes.Buffer, n int) {
	if n > 0x7F {
		w.WriteByte(byte(n>>8) | 0x80)
	}
	w.WriteByte(byte(n))
}

func writeHeader(w *bytes.Buffer, kind uint16, headerSize, size int) {
	put16(w, kind)
	put16(w, uint16(headerSize))
	put32(w, uint32(size))
}

func put16(w *bytes.Buffer, v uint16) {
	_ = binary.Write(w, binary.LittleEndian, v)
}

func put32(w *bytes.Buffer, v uint32) {
	_ = binary.Write(w, binary.LittleEndian, v)
}

// WriteAPK writes an archive holding files to dir/name and returns its path.
// Entries are written in sorted order; resources.arsc is stored, the rest
// deflated, as the platform packager does.
func WriteAPK(t testing.TB, dir, name string, files map[string][]byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	if err := writeZip(f, files); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// ZipBytes returns an in-memory archive holding files.
func ZipBytes(t testing.TB, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := writeZip(&buf, files); err != nil {
		t.Fatalf("Failed to build archive: %v", err)
	}
	return buf.Bytes()
}

func writeZip(w io.Writer, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	for _, name := range sortedKeys(files) {
		method := zip.Deflate
		if name == "resources.arsc" {
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return err
		}
		if _, err := fw.Write(files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
