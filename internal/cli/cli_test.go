package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/report"
	"github.com/ralt/dexscope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deviceRunner answers pm, dumpsys and cmd like a small device would
type deviceRunner struct {
	packages string
	dump     string
	calls    []string
}

func (d *deviceRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	d.calls = append(d.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	switch name {
	case "pm":
		return d.packages, nil
	case "dumpsys":
		return d.dump, nil
	case "cmd":
		return "Success\n", nil
	}
	return "", fmt.Errorf("%s: not found", name)
}

// isolate keeps the tests away from the user's config and history
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
}

func execute(t *testing.T, runner *deviceRunner, args ...string) (string, error) {
	t.Helper()
	var cmdRunner device.Runner
	if runner != nil {
		cmdRunner = runner
	}

	cmd := newRootCmd(cmdRunner)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	testutil.WriteAPK(t, dir, "example.apk", map[string][]byte{
		"AndroidManifest.xml": testutil.LiteralLabelManifest("com.example.app", "Example"),
	})
	testutil.WriteAPK(t, dir, "clock.apk", map[string][]byte{
		"AndroidManifest.xml": testutil.RefLabelManifest("com.example.clock", testutil.ResID(0x7f, 1, 0)),
		"resources.arsc": testutil.StringsTable(testutil.Entry{Key: "app_name", Values: []testutil.Value{
			testutil.StringValue("", "Clock"),
			testutil.StringValue("de", "Uhr"),
		}}),
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.apk"), []byte("PK\x03\x04 truncated"), 0644))
	return dir
}

func TestScanDirJSON(t *testing.T) {
	isolate(t)
	dir := fixtureDir(t)

	out, err := execute(t, nil, "scan", "--dir", dir, "--locale", "de", "--json", "--no-history", "--workers", "2")
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.NotNil(t, doc.Report)
	require.Len(t, doc.Report.Records, 3)
	assert.Equal(t, "de", doc.Report.Locale)

	example, ok := doc.Report.Find("com.example.app")
	require.True(t, ok)
	assert.Equal(t, "Example", example.Label)
	assert.Equal(t, models.StatusOk, example.Status)

	clock, ok := doc.Report.Find("com.example.clock")
	require.True(t, ok)
	assert.Equal(t, "Uhr", clock.Label)

	broken, ok := doc.Report.Find("broken.apk")
	require.True(t, ok)
	assert.Equal(t, models.StatusParseFailed, broken.Status)
}

func TestScanDirTableAndFilter(t *testing.T) {
	isolate(t)
	dir := fixtureDir(t)

	out, err := execute(t, nil, "scan", "--dir", dir, "--locale", "en", "--filter", "clock", "--no-history")
	require.NoError(t, err)
	assert.Contains(t, out, "com.example.clock")
	assert.Contains(t, out, "Clock")
	assert.NotContains(t, out, "com.example.app ")
	assert.Contains(t, out, "1 archives: 1 ok, 0 label missing, 0 failed")
}

func TestScanHistoryAndDiff(t *testing.T) {
	isolate(t)
	dir := fixtureDir(t)
	db := filepath.Join(t.TempDir(), "history.db")

	_, err := execute(t, nil, "scan", "--dir", dir, "--db", db)
	require.NoError(t, err)

	testutil.WriteAPK(t, dir, "new.apk", map[string][]byte{
		"AndroidManifest.xml": testutil.LiteralLabelManifest("com.example.new", "Fresh"),
	})
	out, err := execute(t, nil, "scan", "--dir", dir, "--db", db, "--diff")
	require.NoError(t, err)
	assert.Contains(t, out, "+ com.example.new (Fresh)")

	out, err = execute(t, nil, "history", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SCAN")
}

func TestScanExportSignedAndVerify(t *testing.T) {
	isolate(t)
	dir := fixtureDir(t)
	keyDir := t.TempDir()

	entity, err := openpgp.NewEntity("dexscope test", "", "test@example.com", nil)
	require.NoError(t, err)
	writeArmored := func(name, blockType string, serialize func(io.Writer) error) string {
		var buf bytes.Buffer
		w, err := armor.Encode(&buf, blockType, nil)
		require.NoError(t, err)
		require.NoError(t, serialize(w))
		require.NoError(t, w.Close())
		path := filepath.Join(keyDir, name)
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
		return path
	}
	private := writeArmored("private.asc", openpgp.PrivateKeyType, func(w io.Writer) error { return entity.SerializePrivate(w, nil) })
	public := writeArmored("public.asc", openpgp.PublicKeyType, entity.Serialize)

	output := filepath.Join(t.TempDir(), "report.json.xz")
	_, err = execute(t, nil, "scan", "--dir", dir, "--no-history", "--output", output, "--sign-key", private)
	require.NoError(t, err)
	assert.FileExists(t, output+report.SignatureSuffix)

	out, err := execute(t, nil, "verify", output, "--key", public)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Good signature from %X", entity.PrimaryKey.Fingerprint))
	assert.Contains(t, out, "com.example.app")

	_, err = execute(t, nil, "verify", output)
	assert.Error(t, err)
}

func TestScanRejectsBadFlags(t *testing.T) {
	isolate(t)

	_, err := execute(t, nil, "scan", "--dir", t.TempDir(), "--sign-key", "k.asc")
	assert.Error(t, err)

	_, err = execute(t, nil, "scan", "--dir", t.TempDir(), "--workers", "-2")
	assert.Error(t, err)

	_, err = execute(t, nil, "scan", "--dir", t.TempDir(), "--diff", "--no-history")
	assert.Error(t, err)
}

func deviceFixture(t *testing.T) *deviceRunner {
	t.Helper()
	dir := fixtureDir(t)
	return &deviceRunner{
		packages: fmt.Sprintf("package:%s=com.example.app\npackage:%s=com.example.clock\n",
			filepath.Join(dir, "example.apk"), filepath.Join(dir, "clock.apk")),
		dump: `[com.example.app]
  arm64: [status=speed-profile] [reason=install]
[com.example.clock]
  arm64: [status=verify] [reason=boot]
`,
	}
}

func TestStatus(t *testing.T) {
	isolate(t)
	runner := deviceFixture(t)

	out, err := execute(t, runner, "status", "--type", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 packages.")
	assert.Contains(t, out, "com.example.app")
	assert.Contains(t, out, "arm64: [status=verify] [reason=boot]")
	assert.Contains(t, out, "DEXOPT ANALYSIS SUMMARY")
	assert.Contains(t, out, "All")
	assert.Equal(t, []string{"pm list packages -f", "dumpsys package dexopt"}, runner.calls)
}

func TestStatusDetailsResolvesLabels(t *testing.T) {
	isolate(t)
	runner := deviceFixture(t)

	out, err := execute(t, runner, "status", "--details", "--locale", "de", "--filter", "clock")
	require.NoError(t, err)
	assert.Contains(t, out, "Uhr (com.example.clock)")
	assert.NotContains(t, out, "com.example.app")
	assert.Equal(t, "pm list packages -f -3", runner.calls[0])
}

func TestLabelsNeedLocalArchives(t *testing.T) {
	isolate(t)

	_, err := execute(t, nil, "--adb", "status", "--details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--details")

	_, err = execute(t, nil, "--serial", "emulator-5554", "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dir")
}

func TestScanDevice(t *testing.T) {
	isolate(t)
	runner := deviceFixture(t)

	out, err := execute(t, runner, "scan", "--json", "--no-history", "--locale", "de")
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Report.Records, 2)
	for _, rec := range doc.Report.Records {
		assert.Equal(t, rec.ID, rec.ListedID)
		assert.False(t, rec.Mismatch)
	}
}

func TestCompile(t *testing.T) {
	isolate(t)
	runner := deviceFixture(t)

	out, err := execute(t, runner, "compile", "--package", "com.example.app", "--mode", "speed", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Success")
	assert.Contains(t, runner.calls, "cmd package compile -m speed -f com.example.app")

	_, err = execute(t, runner, "compile", "--all")
	require.NoError(t, err)
	assert.Contains(t, runner.calls, "cmd package compile -m speed-profile -a")

	_, err = execute(t, runner, "compile", "--package", "com.example.missing")
	assert.Error(t, err)

	_, err = execute(t, runner, "compile")
	assert.Error(t, err)

	_, err = execute(t, runner, "compile", "--all", "--mode", "turbo")
	assert.Error(t, err)
}

func TestConfigFileSetsDefaults(t *testing.T) {
	isolate(t)
	dir := fixtureDir(t)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("locale: de\n"), 0644))

	out, err := execute(t, nil, "--config", cfgPath, "scan", "--dir", dir, "--json", "--no-history")
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	clock, ok := doc.Report.Find("com.example.clock")
	require.True(t, ok)
	assert.Equal(t, "Uhr", clock.Label)

	_, err = execute(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "history")
	assert.Error(t, err)
}
