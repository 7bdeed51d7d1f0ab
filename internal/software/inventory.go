package software

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taucmdr/internal/storage"
	"taucmdr/internal/ui"
)

// Record is an install prefix found on disk.
type Record struct {
	Level   storage.Level
	Package string
	Hash    string
	Prefix  string
}

// Scan lists the install prefixes under subsystem in every level, highest
// precedence first.
func Scan(levels *storage.Hierarchy, subsystem string) []Record {
	var out []Record
	for _, lvl := range levels.Search() {
		root := lvl.Prefix(subsystem)
		pkgs, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, p := range pkgs {
			if !p.IsDir() {
				continue
			}
			hashes, err := os.ReadDir(filepath.Join(root, p.Name()))
			if err != nil {
				continue
			}
			for _, h := range hashes {
				if !h.IsDir() {
					continue
				}
				out = append(out, Record{
					Level:   lvl,
					Package: p.Name(),
					Hash:    h.Name(),
					Prefix:  filepath.Join(root, p.Name(), h.Name()),
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Package < out[j].Package
	})
	return out
}

// CleanArchives removes cached source archives and their digests from every
// writable level. It returns the number of files removed.
func CleanArchives(levels *storage.Hierarchy, log *ui.Logger) (int, error) {
	removed := 0
	for _, lvl := range levels.Search() {
		if !lvl.Writable {
			continue
		}
		entries, err := os.ReadDir(lvl.ArchiveDir())
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(lvl.ArchiveDir(), e.Name())
			log.Debugf("Removing '%s'", path)
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// CleanBuilds removes what failed or interrupted installs leave behind:
// temporary build directories in the fast build directory and staged source
// trees in every writable level's src directory.
func CleanBuilds(levels *storage.Hierarchy, fastDir string, log *ui.Logger) (int, error) {
	dirs := []string{fastDir}
	for _, lvl := range levels.Search() {
		if lvl.Writable {
			dirs = append(dirs, lvl.ArchiveDir())
		}
	}
	removed := 0
	for i, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			// src directories only hold archives besides staged trees.
			if i == 0 && !strings.HasPrefix(e.Name(), BuildDirPattern) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			log.Debugf("Removing '%s'", path)
			if err := os.RemoveAll(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
