package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureFiles() map[string][]byte {
	return map[string][]byte{
		ManifestEntry:  testutil.LiteralLabelManifest("com.example.app", "Example"),
		ResourcesEntry: testutil.StringsTable(testutil.Entry{Key: "app_name", Values: []testutil.Value{testutil.StringValue("", "Example")}}),
		"classes.dex":  []byte("dex\n035\x00"),
	}
}

// dataOffset returns where the local file data of name starts. The local
// headers written by testutil carry no extra field.
func dataOffset(t *testing.T, zipData []byte, name string) int {
	t.Helper()
	i := bytes.Index(zipData, []byte(name))
	require.Greater(t, i, 0)
	return i + len(name)
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	files := fixtureFiles()
	path := testutil.WriteAPK(t, dir, "app.apk", files)

	entries, err := Read(path)
	require.NoError(t, err)
	assert.True(t, entries.ManifestFound)
	assert.True(t, entries.ResourcesFound)
	assert.NoError(t, entries.ResourcesErr)
	assert.Equal(t, files[ManifestEntry], entries.Manifest)
	assert.Equal(t, files[ResourcesEntry], entries.Resources)
}

func TestReadMissingEntries(t *testing.T) {
	data := testutil.ZipBytes(t, map[string][]byte{"classes.dex": []byte("dex")})

	entries, err := ReadFrom(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.False(t, entries.ManifestFound)
	assert.False(t, entries.ResourcesFound)
	assert.Nil(t, entries.Manifest)
}

func TestReadUnreadable(t *testing.T) {
	dir := t.TempDir()
	valid := testutil.ZipBytes(t, fixtureFiles())

	truncated := filepath.Join(dir, "truncated.apk")
	require.NoError(t, os.WriteFile(truncated, valid[:len(valid)/2], 0644))

	garbage := filepath.Join(dir, "garbage.apk")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a zip archive"), 0644))

	for _, path := range []string{truncated, garbage, filepath.Join(dir, "missing.apk")} {
		_, err := Read(path)
		require.Error(t, err, path)
		kind, ok := models.ErrorTypeOf(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrArchiveUnreadable, kind, path)
	}
}

func TestReadCorruptResourcesIsNotFatal(t *testing.T) {
	data := testutil.ZipBytes(t, fixtureFiles())
	// resources.arsc is stored, so flipping a byte only breaks its checksum
	data[dataOffset(t, data, ResourcesEntry)+4] ^= 0xFF

	entries, err := ReadFrom(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.True(t, entries.ManifestFound)
	assert.True(t, entries.ResourcesFound)
	assert.Nil(t, entries.Resources)
	require.Error(t, entries.ResourcesErr)

	kind, ok := models.ErrorTypeOf(entries.ResourcesErr)
	require.True(t, ok)
	assert.Equal(t, models.ErrEntryCorrupt, kind)
	assert.Contains(t, entries.ResourcesErr.Error(), "checksum")
}

func TestReadCorruptManifest(t *testing.T) {
	data := testutil.ZipBytes(t, fixtureFiles())
	// BFINAL=1 with the reserved block type 0b11
	data[dataOffset(t, data, ManifestEntry)] = 0x07

	_, err := ReadFrom(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	kind, ok := models.ErrorTypeOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrEntryCorrupt, kind)
}
