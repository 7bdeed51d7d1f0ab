package software

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"

	"taucmdr/internal/fetch"
	"taucmdr/internal/storage"
	"taucmdr/internal/target"
)

const fakeConfigure = `#!/bin/sh
for a in "$@"; do
  case "$a" in
    --prefix=*) echo "${a#--prefix=}" > .prefix ;;
  esac
done
echo "CC=$CC" > .configure_env
`

// fakeMake records each compile in $TEST_BUILD_LOG and runs the tree's
// install.sh for "make install".
const fakeMake = `#!/bin/sh
for a in "$@"; do
  if [ "$a" = install ]; then
    exec sh ./install.sh "$(cat .prefix)"
  fi
done
echo "$(basename "$PWD")" >> "$TEST_BUILD_LOG"
`

type fixture struct {
	t        *testing.T
	dir      string
	system   storage.Level
	user     storage.Level
	buildLog string
	registry *Registry
	fetcher  *countingFetcher
	makeCmd  string
}

func newFixture(t *testing.T, pkgs ...*Package) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		t:        t,
		dir:      dir,
		system:   storage.Level{Name: "system", Root: filepath.Join(dir, "system"), Writable: false},
		user:     storage.Level{Name: "user", Root: filepath.Join(dir, "user"), Writable: true},
		buildLog: filepath.Join(dir, "builds.log"),
		registry: NewRegistry(pkgs...),
		fetcher:  &countingFetcher{inner: fetch.New(fetch.WithProgress(false))},
		makeCmd:  filepath.Join(dir, "tools", "make"),
	}
	for _, d := range []string{"shm", "sources", "tools", "system", "user"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeScript(t, f.makeCmd, fakeMake)
	t.Setenv("TEST_BUILD_LOG", f.buildLog)
	return f
}

func (f *fixture) options(sources map[string]string) Options {
	return Options{
		Target: &target.Target{
			Arch:      target.X86_64,
			OS:        target.Linux,
			Compilers: target.CompilerSet{Family: "GNU"},
			Sources:   sources,
		},
		Levels:       storage.New(f.system, f.user),
		Registry:     f.registry,
		Fetcher:      f.fetcher,
		Subsystem:    "software",
		FastBuildDir: filepath.Join(f.dir, "shm"),
		MakeJobs:     2,
		Make:         f.makeCmd,
	}
}

// builds returns the source trees compiled so far, in order.
func (f *fixture) builds() []string {
	data, err := os.ReadFile(f.buildLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		f.t.Fatal(err)
	}
	return strings.Fields(string(data))
}

// sourceArchive writes <name>-1.0.tar.gz whose install.sh creates every
// file pkg requires. With lib64 set, libraries go to lib64 only.
func (f *fixture) sourceArchive(pkg *Package, lib64 bool) string {
	f.t.Helper()
	var sh strings.Builder
	sh.WriteString("#!/bin/sh\nset -e\np=\"$1\"\n")
	libDir := "lib"
	if lib64 {
		libDir = "lib64"
	}
	fmt.Fprintf(&sh, "mkdir -p \"$p/bin\" \"$p/%s\" \"$p/include\"\n", libDir)
	for _, c := range pkg.Commands.Lookup(target.X86_64, target.Linux) {
		fmt.Fprintf(&sh, "printf '#!/bin/sh\\n' > \"$p/bin/%s\"\nchmod +x \"$p/bin/%s\"\n", c, c)
	}
	for _, l := range pkg.Libraries.Lookup(target.X86_64, target.Linux) {
		fmt.Fprintf(&sh, ": > \"$p/%s/%s\"\n", libDir, l)
	}
	for _, h := range pkg.Headers.Lookup(target.X86_64, target.Linux) {
		fmt.Fprintf(&sh, "mkdir -p \"$(dirname \"$p/include/%s\")\"\n: > \"$p/include/%s\"\n", h, h)
	}

	top := pkg.Name + "-1.0"
	path := filepath.Join(f.dir, "sources", top+".tar.gz")
	writeTarGz(f.t, path, map[string]string{
		top + "/configure":  fakeConfigure,
		top + "/install.sh": sh.String(),
	})
	return path
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

// populate creates the files pkg requires under prefix.
func populate(t *testing.T, prefix string, pkg *Package) {
	t.Helper()
	for _, c := range pkg.Commands.Lookup(target.X86_64, target.Linux) {
		writeScript(t, filepath.Join(prefix, "bin", c), "#!/bin/sh\n")
	}
	for _, l := range pkg.Libraries.Lookup(target.X86_64, target.Linux) {
		writeFile(t, filepath.Join(prefix, "lib", l))
	}
	for _, h := range pkg.Headers.Lookup(target.X86_64, target.Linux) {
		writeFile(t, filepath.Join(prefix, "include", h))
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

type countingFetcher struct {
	inner Downloader
	calls []string
}

func (c *countingFetcher) Download(ctx context.Context, src, dest string) error {
	c.calls = append(c.calls, src)
	return c.inner.Download(ctx, src, dest)
}

func (c *countingFetcher) count(src string) int {
	n := 0
	for _, s := range c.calls {
		if s == src {
			n++
		}
	}
	return n
}

func testPackage(name string, deps ...Dependency) *Package {
	return &Package{
		Name:         name,
		Title:        strings.ToUpper(name),
		Sources:      target.Universal("http://example.invalid/" + name + "-1.0.tar.gz"),
		Commands:     target.Universal([]string{name + "-tool"}),
		Libraries:    target.Universal([]string{"lib" + name + ".a"}),
		Headers:      target.Universal([]string{name + ".h"}),
		Dependencies: deps,
	}
}
