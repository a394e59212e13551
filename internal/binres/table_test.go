package binres

import (
	"encoding/binary"
	"testing"

	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsByLocale(entries []ResourceEntry) map[string]string {
	out := make(map[string]string)
	for _, e := range entries {
		out[e.Config.Locale()] = e.Value.String
	}
	return out
}

func TestParseTableLocales(t *testing.T) {
	data := testutil.StringsTable(
		testutil.Entry{Key: "unused", Values: []testutil.Value{testutil.StringValue("", "x")}},
		testutil.Entry{Key: "app_name", Values: []testutil.Value{
			testutil.StringValue("", "Camera"),
			testutil.StringValue("fr", "Appareil photo"),
			testutil.StringValue("pt-BR", "Câmera"),
		}},
	)

	table, err := ParseTable(data)
	require.NoError(t, err)
	assert.Empty(t, table.Warnings)
	assert.Equal(t, []string{"com.example.app"}, table.PackageNames())

	entries := table.Entries(testutil.ResID(0x7f, 1, 1))
	require.Len(t, entries, 3)
	assert.Equal(t, "app_name", entries[0].Key)
	assert.True(t, entries[0].Config.IsDefault())
	assert.Equal(t, map[string]string{
		"":      "Camera",
		"fr":    "Appareil photo",
		"pt-BR": "Câmera",
	}, labelsByLocale(entries))
}

func TestParseTableSparseAbsence(t *testing.T) {
	for _, enc := range []int{testutil.Dense, testutil.Sparse, testutil.Offset16} {
		data := testutil.BuildTable(testutil.Package{
			ID:   0x7f,
			Name: "com.example.sparse",
			Types: []testutil.Type{{
				ID:       2,
				Name:     "string",
				Encoding: enc,
				Entries: []testutil.Entry{
					{Key: "a", Values: []testutil.Value{testutil.StringValue("", "A")}},
					{Key: "b", Values: []testutil.Value{testutil.StringValue("de", "B-de")}},
					{Key: "c", Values: []testutil.Value{testutil.StringValue("", "C"), testutil.StringValue("de", "C-de")}},
				},
			}},
		})

		table, err := ParseTable(data)
		require.NoError(t, err, "encoding %d", enc)

		assert.Equal(t, map[string]string{"": "A"}, labelsByLocale(table.Entries(testutil.ResID(0x7f, 2, 0))), "encoding %d", enc)
		assert.Equal(t, map[string]string{"de": "B-de"}, labelsByLocale(table.Entries(testutil.ResID(0x7f, 2, 1))), "encoding %d", enc)
		assert.Equal(t, map[string]string{"": "C", "de": "C-de"}, labelsByLocale(table.Entries(testutil.ResID(0x7f, 2, 2))), "encoding %d", enc)
		assert.Empty(t, table.Entries(testutil.ResID(0x7f, 2, 3)), "encoding %d", enc)
		assert.Empty(t, table.Entries(testutil.ResID(0x7f, 3, 0)), "encoding %d", enc)
		assert.Empty(t, table.Entries(testutil.ResID(0x01, 2, 0)), "encoding %d", enc)
	}
}

func TestParseTableReferenceAndDensity(t *testing.T) {
	target := testutil.ResID(0x7f, 1, 0)
	data := testutil.StringsTable(
		testutil.Entry{Key: "real_name", Values: []testutil.Value{testutil.StringValue("", "Real")}},
		testutil.Entry{Key: "alias", Values: []testutil.Value{
			testutil.RefValue("", target),
			{Density: 480, Type: testutil.TypeString, Str: "Dense"},
		}},
	)

	table, err := ParseTable(data)
	require.NoError(t, err)

	entries := table.Entries(testutil.ResID(0x7f, 1, 1))
	require.Len(t, entries, 2)
	assert.Equal(t, KindReference, entries[0].Value.Kind)
	assert.Equal(t, target, entries[0].Value.Data)
	assert.Equal(t, uint16(480), entries[1].Config.Density)
	assert.Equal(t, "", entries[1].Config.Locale())
	assert.Equal(t, 1, entries[1].Config.Qualifiers())
	assert.Equal(t, "xxhdpi", entries[1].Config.String())
}

func TestParseTableMergesPackages(t *testing.T) {
	base := testutil.Package{
		ID:   0x7f,
		Name: "com.example.base",
		Types: []testutil.Type{{ID: 1, Name: "string", Entries: []testutil.Entry{{
			Key: "app_name",
			Values: []testutil.Value{
				testutil.StringValue("", "Base"),
				testutil.StringValue("fr", "Base-fr"),
			},
		}}}},
	}
	overlay := testutil.Package{
		ID:   0x7f,
		Name: "com.example.overlay",
		Types: []testutil.Type{{ID: 1, Name: "string", Entries: []testutil.Entry{{
			Key: "app_name",
			Values: []testutil.Value{
				testutil.StringValue("", "Overlay"),
				testutil.StringValue("fr", "Overlay-fr"),
				testutil.StringValue("es", "Overlay-es"),
			},
		}}}},
	}

	table, err := ParseTable(testutil.BuildTable(base, overlay))
	require.NoError(t, err)

	entries := table.Entries(testutil.ResID(0x7f, 1, 0))
	require.Len(t, entries, 3)
	assert.Equal(t, "Overlay", entries[0].Value.String)
	assert.Equal(t, "Base-fr", entries[1].Value.String)
	assert.Equal(t, "Overlay-es", entries[2].Value.String)
}

func TestParseTableSkipsBadPackage(t *testing.T) {
	good := testutil.Package{
		ID:   0x7f,
		Name: "com.example.good",
		Types: []testutil.Type{{ID: 1, Name: "string", Entries: []testutil.Entry{{
			Key: "app_name", Values: []testutil.Value{testutil.StringValue("", "Good")},
		}}}},
	}
	bad := testutil.Package{ID: 0x02, Name: "com.example.bad"}

	data := testutil.BuildTable(bad, good)

	// Shrink the bad package's header size below the minimum
	poolSize := int(binary.LittleEndian.Uint32(data[12+4:]))
	badAt := 12 + poolSize
	require.Equal(t, uint16(0x0200), binary.LittleEndian.Uint16(data[badAt:]))
	binary.LittleEndian.PutUint16(data[badAt+2:], 16)

	table, err := ParseTable(data)
	require.NoError(t, err)
	require.Len(t, table.Warnings, 1)
	assert.Contains(t, table.Warnings[0], "skipped package")
	assert.Equal(t, []string{"com.example.good"}, table.PackageNames())

	entries := table.Entries(testutil.ResID(0x7f, 1, 0))
	require.Len(t, entries, 1)
	assert.Equal(t, "Good", entries[0].Value.String)
}

func TestParseTableSkipsUnknownChunk(t *testing.T) {
	data := testutil.StringsTable(testutil.Entry{Key: "app_name", Values: []testutil.Value{testutil.StringValue("", "Kept")}})

	// An 8 byte chunk of an unassigned type after the package
	data = append(data, 0x99, 0x09, 0x08, 0x00, 0x08, 0x00, 0x00, 0x00)
	binary.LittleEndian.PutUint32(data[4:], uint32(len(data)))

	table, err := ParseTable(data)
	require.NoError(t, err)
	require.Len(t, table.Warnings, 1)
	assert.Contains(t, table.Warnings[0], "skipped unknown 0x0999 chunk")

	entries := table.Entries(testutil.ResID(0x7f, 1, 0))
	require.Len(t, entries, 1)
	assert.Equal(t, "Kept", entries[0].Value.String)
}

func TestParseTableSkipsBadTypeChunk(t *testing.T) {
	data := testutil.StringsTable(testutil.Entry{Key: "app_name", Values: []testutil.Value{
		testutil.StringValue("", "Default"),
		testutil.StringValue("de", "Deutsch"),
	}})

	poolSize := int(binary.LittleEndian.Uint32(data[12+4:]))
	pkgAt := 12 + poolSize
	require.Equal(t, uint16(0x0200), binary.LittleEndian.Uint16(data[pkgAt:]))
	pkgEnd := pkgAt + int(binary.LittleEndian.Uint32(data[pkgAt+4:]))

	// Shrink the header of the first type chunk, the default config one
	typeAt := -1
	for off := pkgAt + int(binary.LittleEndian.Uint16(data[pkgAt+2:])); off < pkgEnd; off += int(binary.LittleEndian.Uint32(data[off+4:])) {
		if binary.LittleEndian.Uint16(data[off:]) == 0x0201 {
			typeAt = off
			break
		}
	}
	require.Greater(t, typeAt, 0)
	binary.LittleEndian.PutUint16(data[typeAt+2:], 8)

	table, err := ParseTable(data)
	require.NoError(t, err)
	require.Len(t, table.Warnings, 1)
	assert.Contains(t, table.Warnings[0], "skipped type chunk")
	assert.Equal(t, []string{"com.example.app"}, table.PackageNames())

	entries := table.Entries(testutil.ResID(0x7f, 1, 0))
	assert.Equal(t, map[string]string{"de": "Deutsch"}, labelsByLocale(entries))
}

func TestParseTableScript(t *testing.T) {
	table, err := ParseTable(testutil.StringsTable(testutil.Entry{Key: "app_name", Values: []testutil.Value{
		testutil.StringValue("sr", "Почетна"),
		testutil.StringValue("sr-Latn", "Početna"),
	}}))
	require.NoError(t, err)

	entries := table.Entries(testutil.ResID(0x7f, 1, 0))
	assert.Equal(t, map[string]string{"sr": "Почетна", "sr-Latn": "Početna"}, labelsByLocale(entries))
	for _, e := range entries {
		if e.Config.Locale() == "sr-Latn" {
			assert.Equal(t, "Latn", e.Config.Script)
			assert.Empty(t, e.Config.Region)
		}
	}
}

func TestParseTableErrors(t *testing.T) {
	valid := testutil.StringsTable(testutil.Entry{Key: "k", Values: []testutil.Value{testutil.StringValue("", "v")}})

	badPool := append([]byte(nil), valid...)
	// string count far beyond the pool chunk
	binary.LittleEndian.PutUint32(badPool[12+8:], 0x00FFFFFF)

	notTable := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(notTable[0:], 0x0003)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)/2]},
		{name: "bad global pool", data: badPool},
		{name: "not a table", data: notTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(tt.data)
			require.Error(t, err)
			kind, ok := models.ErrorTypeOf(err)
			require.True(t, ok)
			assert.Equal(t, models.ErrResourceTableMalformed, kind)
		})
	}
}

func TestParseConfigPackedLanguage(t *testing.T) {
	cfg := make([]byte, 64)
	cfg[0] = 64
	// "fil" packed: f=5, i=8, l=11 -> 0x80 | l<<2 | i>>3, (i&7)<<5 | f
	cfg[8] = 0x80 | 11<<2 | 8>>3
	cfg[9] = (8&7)<<5 | 5
	copy(cfg[10:12], "PH")

	c, err := parseConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "fil", c.Language)
	assert.Equal(t, "fil-PH", c.Locale())
	assert.False(t, c.IsDefault())
}

func TestStringPoolUTF8AndUTF16(t *testing.T) {
	strs := []string{"plain", "héllo", "日本語", ""}
	for _, utf8 := range []bool{false, true} {
		data := testutil.BuildStringPool(strs, utf8)
		c, err := readChunk(data, 0)
		require.NoError(t, err)
		pool, err := parseStringPool(c)
		require.NoError(t, err)
		require.Equal(t, len(strs), pool.Len())

		for i, want := range strs {
			got, ok := pool.String(uint32(i))
			assert.True(t, ok)
			assert.Equal(t, want, got)
		}
		_, ok := pool.String(uint32(len(strs)))
		assert.False(t, ok)
		_, ok = pool.String(NoIndex)
		assert.False(t, ok)
	}
}
