// Package storage resolves the ordered storage levels (system, user, ...)
// that hold installations and cached source archives.
package storage

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"taucmdr/internal/config"
	"taucmdr/internal/errs"
)

// ErrNotFound is returned by FindFirstValid when no level satisfies the predicate.
var ErrNotFound = errors.New("no storage level matched")

// Level is a named filesystem root. Read-only levels are searched but never
// written to.
type Level struct {
	Name     string
	Root     string
	Writable bool
}

// ArchiveDir is the shared source archive cache of the level.
func (l Level) ArchiveDir() string {
	return filepath.Join(l.Root, "src")
}

// Prefix joins parts under the level root.
func (l Level) Prefix(parts ...string) string {
	return filepath.Join(append([]string{l.Root}, parts...)...)
}

func (l Level) String() string {
	return l.Name + " (" + l.Root + ")"
}

// Hierarchy is an ordered set of levels, stored lowest precedence first.
type Hierarchy struct {
	levels []Level
}

// New builds a hierarchy from levels given lowest to highest precedence.
func New(levels ...Level) *Hierarchy {
	return &Hierarchy{levels: append([]Level(nil), levels...)}
}

// Search returns every level, highest precedence first.
func (h *Hierarchy) Search() []Level {
	out := make([]Level, 0, len(h.levels))
	for i := len(h.levels) - 1; i >= 0; i-- {
		out = append(out, h.levels[i])
	}
	return out
}

// FindFirstValid returns the highest-precedence level for which valid
// returns nil.
func (h *Hierarchy) FindFirstValid(valid func(Level) error) (Level, error) {
	for _, lvl := range h.Search() {
		if err := valid(lvl); err == nil {
			return lvl, nil
		}
	}
	return Level{}, ErrNotFound
}

// HighestWritable returns the highest-precedence writable level.
func (h *Hierarchy) HighestWritable() (Level, error) {
	for _, lvl := range h.Search() {
		if lvl.Writable {
			return lvl, nil
		}
	}
	return Level{}, errs.Configuration("No writable storage level is available",
		"Set "+config.KeyUserPrefix+" or "+config.KeySystemPrefix+" to a directory you can write to")
}

// Owner returns the level whose root contains path.
func (h *Hierarchy) Owner(path string) (Level, bool) {
	for _, lvl := range h.Search() {
		rel, err := filepath.Rel(lvl.Root, path)
		if err == nil && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel) {
			return lvl, true
		}
	}
	return Level{}, false
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Detect builds the default hierarchy: system (lowest) then user (highest).
func Detect(cfg *config.Config) *Hierarchy {
	system := cfg.SystemPrefix()
	user := cfg.UserPrefix()
	return New(
		Level{Name: "system", Root: system, Writable: IsWritable(system)},
		Level{Name: "user", Root: user, Writable: IsWritable(user)},
	)
}

// IsWritable reports whether path, or its nearest existing ancestor when path
// does not exist yet, is writable by this process.
func IsWritable(path string) bool {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return unix.Access(p, unix.W_OK) == nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}
