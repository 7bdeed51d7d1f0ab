package software

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taucmdr/internal/errs"
	"taucmdr/internal/target"
)

// recordingMake appends "make" and its arguments to args.log. It fails when
// given -j and $FAIL_PARALLEL is set, or always when $FAIL_ALWAYS is set.
const recordingMake = `#!/bin/sh
echo "make $*" >> args.log
[ -n "$FAIL_ALWAYS" ] && exit 1
if [ -n "$FAIL_PARALLEL" ]; then
  for a in "$@"; do [ "$a" = -j ] && exit 1; done
fi
exit 0
`

func newAutotools(t *testing.T) *Autotools {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeScript(t, filepath.Join(src, "configure"), fakeConfigure)
	makeCmd := filepath.Join(dir, "make")
	writeScript(t, makeCmd, recordingMake)
	return &Autotools{
		Title:     "Counter",
		SrcDir:    src,
		Prefix:    filepath.Join(dir, "prefix"),
		Compilers: target.CompilerSet{Family: "GNU", Commands: map[string]string{"CC": "/opt/gcc/bin/gcc"}},
		MakeCmd:   makeCmd,
		Jobs:      4,
		Scrub:     append(target.RoleKeywords(target.Roles), "TAU"),
		Output:    &bytes.Buffer{},
	}
}

func makeArgs(t *testing.T, a *Autotools) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(a.SrcDir, "args.log"))
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestConfigurePassesPrefixAndCompilers(t *testing.T) {
	t.Setenv("CC", "/usr/bin/should-not-leak")
	a := newAutotools(t)
	env := map[string]string{}
	if err := a.Configure(context.Background(), []string{"--disable-nls"}, env); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if env["CC"] != "/opt/gcc/bin/gcc" || env["CXX"] != "g++" {
		t.Errorf("env = %v", env)
	}
	prefix, _ := os.ReadFile(filepath.Join(a.SrcDir, ".prefix"))
	if strings.TrimSpace(string(prefix)) != a.Prefix {
		t.Errorf("configure saw prefix %q", prefix)
	}
	cc, _ := os.ReadFile(filepath.Join(a.SrcDir, ".configure_env"))
	if strings.TrimSpace(string(cc)) != "CC=/opt/gcc/bin/gcc" {
		t.Errorf("configure saw %q", cc)
	}
}

func TestConfigureFailure(t *testing.T) {
	a := newAutotools(t)
	writeScript(t, filepath.Join(a.SrcDir, "configure"), "#!/bin/sh\nexit 1\n")
	a.LogPath = "/tmp/build.log"
	err := a.Configure(context.Background(), nil, map[string]string{})
	var pkgErr *errs.SoftwarePackageError
	if !errors.As(err, &pkgErr) || pkgErr.Value != "Counter configure failed" {
		t.Fatalf("err = %v", err)
	}
	if len(pkgErr.Hints) != 1 || !strings.Contains(pkgErr.Hints[0], "/tmp/build.log") {
		t.Errorf("hints = %v", pkgErr.Hints)
	}
}

func TestMakeRetriesSeriallyOnce(t *testing.T) {
	t.Setenv("FAIL_PARALLEL", "1")
	a := newAutotools(t)
	if err := a.Make(context.Background(), []string{"all"}, map[string]string{}, true); err != nil {
		t.Fatalf("Make: %v", err)
	}
	got := makeArgs(t, a)
	if len(got) != 2 || got[0] != "make -j 4 all" || got[1] != "make all" {
		t.Errorf("make invocations = %q", got)
	}
}

func TestMakeFailsAfterSerialRetry(t *testing.T) {
	t.Setenv("FAIL_ALWAYS", "1")
	a := newAutotools(t)
	err := a.Make(context.Background(), nil, map[string]string{}, true)
	var pkgErr *errs.SoftwarePackageError
	if !errors.As(err, &pkgErr) || pkgErr.Value != "Counter compilation failed" {
		t.Fatalf("err = %v", err)
	}
	if got := makeArgs(t, a); len(got) != 2 {
		t.Errorf("make invocations = %q, want 2", got)
	}
}

func TestMakeSerialFailureIsNotRetried(t *testing.T) {
	t.Setenv("FAIL_ALWAYS", "1")
	a := newAutotools(t)
	if err := a.Make(context.Background(), nil, map[string]string{}, false); err == nil {
		t.Fatal("Make succeeded")
	}
	if got := makeArgs(t, a); len(got) != 1 {
		t.Errorf("make invocations = %q, want 1", got)
	}
}

func TestMakeInstallLinksLib64(t *testing.T) {
	a := newAutotools(t)
	if err := os.MkdirAll(filepath.Join(a.Prefix, "lib64"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := a.MakeInstall(context.Background(), nil, map[string]string{}, false); err != nil {
		t.Fatalf("MakeInstall: %v", err)
	}
	if got := makeArgs(t, a); len(got) != 1 || got[0] != "make install" {
		t.Errorf("make invocations = %q", got)
	}
	if link, err := os.Readlink(filepath.Join(a.Prefix, "lib")); err != nil || link != "lib64" {
		t.Errorf("lib -> %q, %v", link, err)
	}
}

func TestMakeInstallKeepsExistingLib(t *testing.T) {
	a := newAutotools(t)
	for _, d := range []string{"lib", "lib64"} {
		if err := os.MkdirAll(filepath.Join(a.Prefix, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.MakeInstall(context.Background(), nil, map[string]string{}, false); err != nil {
		t.Fatal(err)
	}
	st, err := os.Lstat(filepath.Join(a.Prefix, "lib"))
	if err != nil || st.Mode()&os.ModeSymlink != 0 {
		t.Errorf("lib replaced: %v %v", st, err)
	}
}
