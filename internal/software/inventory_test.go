package software

import (
	"os"
	"path/filepath"
	"testing"

	"taucmdr/internal/storage"
)

func TestScanAndClean(t *testing.T) {
	dir := t.TempDir()
	system := storage.Level{Name: "system", Root: filepath.Join(dir, "system")}
	user := storage.Level{Name: "user", Root: filepath.Join(dir, "user"), Writable: true}
	levels := storage.New(system, user)

	for _, p := range []string{
		system.Prefix("software", "papi", "aaa"),
		user.Prefix("software", "papi", "bbb"),
		user.Prefix("software", "binutils", "ccc"),
		filepath.Join(user.ArchiveDir(), BuildDirPattern+"papi-1"),
		filepath.Join(user.ArchiveDir(), "papi-5.4.1", "src"),
		filepath.Join(system.ArchiveDir(), BuildDirPattern+"papi-2"),
	} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(user.ArchiveDir(), "papi-5.4.1.tar.gz"))
	writeFile(t, filepath.Join(user.ArchiveDir(), "papi-5.4.1.tar.gz"+DigestSuffix))
	writeFile(t, filepath.Join(system.ArchiveDir(), "papi-5.4.1.tar.gz"))

	recs := Scan(levels, "software")
	if len(recs) != 3 {
		t.Fatalf("Scan = %v", recs)
	}
	if recs[0].Package != "binutils" || recs[1].Level.Name != "user" || recs[2].Level.Name != "system" {
		t.Errorf("Scan order = %+v", recs)
	}

	n, err := CleanArchives(levels, nil)
	if err != nil || n != 2 {
		t.Errorf("CleanArchives = %d, %v; want 2", n, err)
	}
	if _, err := os.Stat(filepath.Join(system.ArchiveDir(), "papi-5.4.1.tar.gz")); err != nil {
		t.Error("archive removed from a read-only level")
	}

	fast := filepath.Join(dir, "shm")
	if err := os.MkdirAll(filepath.Join(fast, BuildDirPattern+"scorep-3"), 0o755); err != nil {
		t.Fatal(err)
	}
	n, err = CleanBuilds(levels, fast, nil)
	if err != nil || n != 3 {
		t.Errorf("CleanBuilds = %d, %v; want 3", n, err)
	}
	if _, err := os.Stat(filepath.Join(system.ArchiveDir(), BuildDirPattern+"papi-2")); err != nil {
		t.Error("build directory removed from a read-only level")
	}
}
