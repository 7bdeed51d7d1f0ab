package cli

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testEnv struct {
	user, system, fast string
	config             string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		user:   filepath.Join(dir, "user"),
		system: filepath.Join(dir, "system"),
		fast:   filepath.Join(dir, "fast"),
		config: filepath.Join(dir, "taucmdr.conf"),
	}
	for _, d := range []string{env.user, env.system, env.fast} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	conf := strings.Join([]string{
		"TAUCMDR_USER_PREFIX=" + env.user,
		"TAUCMDR_SYSTEM_PREFIX=" + env.system,
		"TAUCMDR_FAST_BUILD_DIR=" + env.fast,
		"TAUCMDR_NO_PAGER=1",
		"",
	}, "\n")
	if err := os.WriteFile(env.config, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

// run executes the command line and returns stdout, stderr and the error.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// libunwindPrefix creates a complete libunwind installation outside any
// storage level.
func libunwindPrefix(t *testing.T) string {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), "libunwind")
	for _, f := range []string{"lib/libunwind.a", "include/libunwind.h", "include/unwind.h"} {
		path := filepath.Join(prefix, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return prefix
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, _, err := env.run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "taucmdr "+Version+"\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestPrefixUsesHighestWritableLevel(t *testing.T) {
	env := newTestEnv(t)
	src := "https://example.com/binutils-2.23.2.tar.gz"
	out, _, err := env.run(t, "prefix", "binutils", "--source", "binutils="+src)
	if err != nil {
		t.Fatal(err)
	}
	sum := md5.Sum([]byte(src))
	want := filepath.Join(env.user, "software", "binutils", hex.EncodeToString(sum[:]))
	if strings.TrimSpace(out) != want {
		t.Errorf("prefix = %q, want %q", strings.TrimSpace(out), want)
	}
}

func TestVerifyPreinstalled(t *testing.T) {
	env := newTestEnv(t)
	prefix := libunwindPrefix(t)

	out, _, err := env.run(t, "verify", "libunwind", "--source", "libunwind="+prefix)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "libunwind\tOK\t"+prefix) {
		t.Errorf("verify output = %q", out)
	}

	if err := os.Remove(filepath.Join(prefix, "include", "unwind.h")); err != nil {
		t.Fatal(err)
	}
	_, _, err = env.run(t, "verify", "libunwind", "--source", "libunwind="+prefix)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if !strings.Contains(err.Error(), "Invalid libunwind installation") || !strings.Contains(err.Error(), "unwind.h") {
		t.Errorf("error = %v", err)
	}
}

func TestRuntimeEnv(t *testing.T) {
	env := newTestEnv(t)
	prefix := libunwindPrefix(t)
	t.Setenv("LD_LIBRARY_PATH", "")
	t.Setenv("DYLD_LIBRARY_PATH", "")

	out, _, err := env.run(t, "env", "libunwind", "--runtime", "--source", "libunwind="+prefix)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "_LIBRARY_PATH="+filepath.Join(prefix, "lib")) {
		t.Errorf("env output = %q", out)
	}

	out, _, err = env.run(t, "env", "libunwind", "--source", "libunwind="+prefix)
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("compile-time env of a package without bin = %q, want empty", out)
	}
}

func TestInstallUnknownPackage(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "install", "tau2")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "tau2") {
		t.Errorf("error = %v", err)
	}
}

func TestInstallWithoutPackages(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "install")
	if err == nil || !strings.Contains(err.Error(), "No packages given") {
		t.Errorf("error = %v", err)
	}
}

func TestListAndClean(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No installations found") {
		t.Errorf("list output = %q", out)
	}

	prefix := filepath.Join(env.user, "software", "papi", "0123abcd")
	archive := filepath.Join(env.user, "src", "papi-5.4.1.tar.gz")
	build := filepath.Join(env.fast, "taucmdr-build-123")
	for _, d := range []string{prefix, build, filepath.Dir(archive)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(archive, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err = env.run(t, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "papi") || !strings.Contains(out, "0123abcd") || !strings.Contains(out, "user") {
		t.Errorf("list output = %q", out)
	}

	if _, _, err := env.run(t, "clean", "--archives"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Errorf("archive still present: %v", err)
	}
	if _, err := os.Stat(build); err != nil {
		t.Errorf("build dir removed by --archives: %v", err)
	}

	if _, _, err := env.run(t, "clean"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(build); !os.IsNotExist(err) {
		t.Errorf("build dir still present: %v", err)
	}
	if _, err := os.Stat(prefix); err != nil {
		t.Errorf("clean removed an installation: %v", err)
	}
}

func TestExecuteReportsHints(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"--config", filepath.Join(t.TempDir(), "none.conf"), "install"}
	if code := execute(context.Background(), args, &stdout, &stderr); code != 1 {
		t.Fatalf("exit status = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "No packages given") || !strings.Contains(stderr.String(), "hint: ") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
