package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ralt/dexscope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and replies with canned output
type fakeRunner struct {
	calls  []string
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.output, f.err
}

const packageList = `package:/data/app/~~abc==/com.example.zeta-1/base.apk=com.example.zeta
package:/system/app/Clock/Clock.apk=com.android.clock
WARNING: linker: something noisy
package:/data/app/com.example.alpha-2/base.apk=com.example.alpha

package:/broken/no-name.apk=
`

func TestParsePackageList(t *testing.T) {
	pkgs := ParsePackageList(packageList)
	assert.Equal(t, []Package{
		{Name: "com.android.clock", Path: "/system/app/Clock/Clock.apk"},
		{Name: "com.example.alpha", Path: "/data/app/com.example.alpha-2/base.apk"},
		{Name: "com.example.zeta", Path: "/data/app/~~abc==/com.example.zeta-1/base.apk"},
	}, pkgs)

	assert.Empty(t, ParsePackageList(""))
}

func TestListPackagesScopes(t *testing.T) {
	tests := []struct {
		scope AppScope
		want  string
	}{
		{scope: ScopeUser, want: "pm list packages -f -3"},
		{scope: ScopeSystem, want: "pm list packages -f -s"},
		{scope: ScopeAll, want: "pm list packages -f"},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			r := &fakeRunner{output: packageList}
			pkgs, err := ListPackages(context.Background(), r, tt.scope)
			require.NoError(t, err)
			assert.Len(t, pkgs, 3)
			assert.Equal(t, []string{tt.want}, r.calls)
		})
	}

	_, err := ListPackages(context.Background(), &fakeRunner{err: errors.New("pm: not found")}, ScopeAll)
	require.Error(t, err)
	kind, ok := models.ErrorTypeOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrCommand, kind)
}

func TestParseAppScope(t *testing.T) {
	for in, want := range map[string]AppScope{"": ScopeUser, "user": ScopeUser, "System": ScopeSystem, "all": ScopeAll} {
		got, err := ParseAppScope(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAppScope("vendor")
	assert.Error(t, err)
}

func TestFilterAndArchives(t *testing.T) {
	pkgs := ParsePackageList(packageList)

	filtered := FilterPackages(pkgs, "example")
	require.Len(t, filtered, 2)
	assert.Len(t, FilterPackages(pkgs, ""), 3)

	p, ok := FindPackage(pkgs, "com.android.clock")
	require.True(t, ok)
	assert.Equal(t, "/system/app/Clock/Clock.apk", p.Path)
	_, ok = FindPackage(pkgs, "com.missing")
	assert.False(t, ok)

	archives := Archives(filtered)
	assert.Equal(t, []models.PackageArchive{
		{Path: "/data/app/com.example.alpha-2/base.apk", ListedID: "com.example.alpha"},
		{Path: "/data/app/~~abc==/com.example.zeta-1/base.apk", ListedID: "com.example.zeta"},
	}, archives)
}

const dexoptDump = `Dexopt state:
  [com.example.alpha]
    path: /data/app/com.example.alpha-2/base.apk
      arm64: [status=speed-profile] [reason=bg-dexopt] [primary-abi]
      arm: [status=verify] [reason=install]
  [com.example.zeta]
    path: /data/app/com.example.zeta-1/base.apk
      arm64: /data/app/com.example.zeta-1/oat/arm64/base.odex[filter=quicken]
      x86_64: [status=speed]
  [not a header]
      arm64: [status=error]
  [com.example.plain]
      arm64: compiled without details
`

func TestParseDexoptDump(t *testing.T) {
	index := ParseDexoptDump(dexoptDump)

	alpha, ok := index.Lookup("com.example.alpha")
	require.True(t, ok)
	require.Len(t, alpha, 2)
	assert.Equal(t, "speed-profile", alpha[0].Status)
	assert.Equal(t, "arm64: [status=speed-profile] [reason=bg-dexopt] [primary-abi]", alpha[0].Line)
	assert.Equal(t, "verify", alpha[1].Status)

	// the "[not a header]" section does not reset the current package
	zeta, ok := index.Lookup("com.example.zeta")
	require.True(t, ok)
	require.Len(t, zeta, 2)
	assert.Equal(t, "quicken", zeta[0].Status)
	assert.Equal(t, "error", zeta[1].Status)

	plain, ok := index.Lookup("com.example.plain")
	require.True(t, ok)
	assert.Equal(t, UnknownStatus, plain[0].Status)

	_, ok = index.Lookup("com.example.none")
	assert.False(t, ok)

	seen, stats := index.Summarize([]Package{
		{Name: "com.example.alpha"}, {Name: "com.example.zeta"}, {Name: "com.example.none"},
	})
	assert.Equal(t, 2, seen)
	assert.Equal(t, []StatusCount{
		{Status: "error", Count: 1},
		{Status: "quicken", Count: 1},
		{Status: "speed-profile", Count: 1},
		{Status: "verify", Count: 1},
	}, stats)
}

func TestFetchDexoptDump(t *testing.T) {
	r := &fakeRunner{output: dexoptDump}
	dump, err := FetchDexoptDump(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, dexoptDump, dump)
	assert.Equal(t, []string{"dumpsys package dexopt"}, r.calls)
}

func TestDispatcherCompile(t *testing.T) {
	r := &fakeRunner{output: "Success\n"}
	d := NewDispatcher(r)

	out, err := d.Compile(context.Background(), "com.example.alpha", "speed", true)
	require.NoError(t, err)
	assert.Equal(t, "Success", out)

	_, err = d.Compile(context.Background(), "com.example.alpha", "", false)
	require.NoError(t, err)

	_, err = d.CompileAll(context.Background(), "verify", false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cmd package compile -m speed -f com.example.alpha",
		"cmd package compile -m speed-profile com.example.alpha",
		"cmd package compile -m verify -a",
	}, r.calls)
}

func TestDispatcherRejectsBadInput(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(r)

	_, err := d.Compile(context.Background(), "com.example.alpha", "turbo", false)
	require.Error(t, err)
	kind, _ := models.ErrorTypeOf(err)
	assert.Equal(t, models.ErrInvalidConfig, kind)

	for _, name := range []string{"", "alpha", "com.example; reboot", "-a", "com..x"} {
		_, err = d.Compile(context.Background(), name, "speed", false)
		assert.Error(t, err, name)
	}
	assert.Empty(t, r.calls)

	_, err = NewDispatcher(&fakeRunner{err: errors.New("Failure")}).Compile(context.Background(), "com.example.alpha", "speed", false)
	require.Error(t, err)
	kind, _ = models.ErrorTypeOf(err)
	assert.Equal(t, models.ErrCommand, kind)
}

func TestADBRunner(t *testing.T) {
	inner := &fakeRunner{output: "ok"}
	r := &ADBRunner{Runner: inner, Serial: "emulator-5554"}

	out, err := r.Run(context.Background(), "pm", "list", "packages")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"adb -s emulator-5554 shell pm list packages"}, inner.calls)
}

func TestExecRunner(t *testing.T) {
	out, err := NewExecRunner().Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Skipf("echo not available: %v", err)
	}
	assert.Equal(t, "hello\n", out)

	_, err = NewExecRunner().Run(context.Background(), "dexscope-definitely-missing-binary")
	assert.Error(t, err)
}
