package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralt/dexscope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat(`{"id":"com.example.app","label":"Example"}`, 64))

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionXz} {
		t.Run(c.String(), func(t *testing.T) {
			packed, err := Compress(data, c)
			require.NoError(t, err)
			if c != CompressionNone {
				assert.Less(t, len(packed), len(data))
			}

			unpacked, err := Decompress(packed, c)
			require.NoError(t, err)
			assert.Equal(t, data, unpacked)
		})
	}
}

func TestCompressionFromPath(t *testing.T) {
	assert.Equal(t, CompressionGzip, CompressionFromPath("report.json.gz"))
	assert.Equal(t, CompressionZstd, CompressionFromPath("/tmp/report.json.zst"))
	assert.Equal(t, CompressionXz, CompressionFromPath("report.xz"))
	assert.Equal(t, CompressionNone, CompressionFromPath("report.json"))
}

func TestCalculateChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.apk")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	sum, err := CalculateChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum.SHA256)
	assert.Equal(t, int64(3), sum.Size)

	_, err = CalculateChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "report.json")
	require.NoError(t, WriteFile(path, []byte("{}"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestXDGDirs(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CONFIG_HOME", "/config")

	data, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "dexscope"), data)

	cfg, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/config", "dexscope"), cfg)
}

func TestDiffReports(t *testing.T) {
	prev := &models.ScanReport{Records: []models.PackageRecord{
		{ID: "com.example.kept", Label: "Kept"},
		{ID: "com.example.gone", Label: "Gone"},
		{ID: "com.example.renamed", Label: "Old"},
	}}
	cur := &models.ScanReport{Records: []models.PackageRecord{
		{ID: "com.example.renamed", Label: "New"},
		{ID: "com.example.kept", Label: "Kept"},
		{ID: "com.example.b", Label: "B"},
		{ID: "com.example.a", Label: "A"},
	}}

	diff := DiffReports(prev, cur)
	require.Len(t, diff.Added, 2)
	assert.Equal(t, "com.example.a", diff.Added[0].ID)
	assert.Equal(t, "com.example.b", diff.Added[1].ID)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "com.example.gone", diff.Removed[0].ID)
	assert.Equal(t, []Relabel{{ID: "com.example.renamed", OldLabel: "Old", NewLabel: "New"}}, diff.Relabelled)
	assert.False(t, diff.Empty())

	assert.True(t, DiffReports(cur, cur).Empty())
	assert.Len(t, DiffReports(nil, cur).Added, 4)
}
