// Package software installs third-party packages into a content-addressed
// prefix inside the storage hierarchy, reusing valid installations found
// at any storage level.
package software

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taucmdr/internal/config"
	"taucmdr/internal/errs"
	"taucmdr/internal/fetch"
	"taucmdr/internal/storage"
	"taucmdr/internal/target"
	"taucmdr/internal/ui"
)

// DownloadKeyword selects the package's default source for the target.
const DownloadKeyword = "download"

// LockFile is the lock marker kept at the root of every install prefix.
const LockFile = ".tau_lock"

// Downloader copies a source specifier to a local file.
type Downloader interface {
	Download(ctx context.Context, src, dest string) error
}

// Options carries everything an Installation needs from its caller.
type Options struct {
	Target   *target.Target
	Levels   *storage.Hierarchy
	Registry *Registry
	Fetcher  Downloader
	Log      *ui.Logger

	// Subsystem is the directory under each storage root holding packages.
	Subsystem string
	// FastBuildDir is tried first for temporary build trees.
	FastBuildDir string
	// MakeJobs is the parallel make job count.
	MakeJobs int
	// Make is the make command.
	Make string
	// Roles is the compiler role table. Inherited variables named after a
	// role keyword are removed from build environments.
	Roles []target.Role
}

func (o *Options) setDefaults() {
	if o.Target == nil {
		o.Target = target.Host()
	}
	if o.Levels == nil {
		o.Levels = storage.Detect(nil)
	}
	if o.Registry == nil {
		o.Registry = defaultRegistry
	}
	if o.Fetcher == nil {
		o.Fetcher = fetch.New(fetch.WithLogger(o.Log))
	}
	if o.Subsystem == "" {
		o.Subsystem = "software"
	}
	if o.FastBuildDir == "" {
		o.FastBuildDir = "/dev/shm"
	}
	if o.MakeJobs <= 0 {
		o.MakeJobs = config.DefaultMakeJobs()
	}
	if o.Make == "" {
		o.Make = "make"
	}
	if o.Roles == nil {
		o.Roles = target.Roles
	}
}

// Installation is one package's installation for one target.
type Installation struct {
	Name      string
	Title     string
	Arch      target.Architecture
	OS        target.OperatingSystem
	Compilers target.CompilerSet

	// Src is the resolved source specifier. Empty means the package was
	// installed by someone else and is only ever verified.
	Src string
	// Prefix is the install prefix, SrcPrefix the staged source tree.
	Prefix    string
	SrcPrefix string

	Commands  []string
	Libraries []string
	Headers   []string

	// IsInstalled is set by a successful Verify.
	IsInstalled bool

	Dependencies map[string]*Installation
	depOrder     []string

	pkg   *Package
	uid   string
	level storage.Level
	opts  Options
}

// New resolves the installation of the named package. Dependencies are
// resolved first through the registry. The install prefix is the first
// storage level, highest precedence first, holding a valid installation,
// or else the highest writable level.
func New(name string, opts Options) (*Installation, error) {
	opts.setDefaults()
	return newInstallation(name, opts, nil)
}

func newInstallation(name string, opts Options, chain []string) (*Installation, error) {
	for _, n := range chain {
		if n == name {
			return nil, errs.Configurationf("Dependency cycle: %s -> %s", strings.Join(chain, " -> "), name)
		}
	}
	chain = append(chain, name)

	pkg, err := opts.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	tgt := opts.Target
	inst := &Installation{
		Name:         pkg.Name,
		Title:        pkg.Title,
		Arch:         tgt.Arch,
		OS:           tgt.OS,
		Compilers:    tgt.Compilers,
		Commands:     pkg.Commands.Lookup(tgt.Arch, tgt.OS),
		Libraries:    pkg.Libraries.Lookup(tgt.Arch, tgt.OS),
		Headers:      pkg.Headers.Lookup(tgt.Arch, tgt.OS),
		Dependencies: make(map[string]*Installation),
		pkg:          pkg,
		opts:         opts,
	}

	for _, dep := range pkg.Dependencies {
		if _, named := tgt.Sources[dep.Name]; dep.Optional && !named {
			continue
		}
		d, err := newInstallation(dep.Name, opts, chain)
		if err != nil {
			return nil, err
		}
		inst.Dependencies[dep.Name] = d
		inst.depOrder = append(inst.depOrder, dep.Name)
	}

	if err := inst.resolvePrefix(sourceFor(tgt, name)); err != nil {
		return nil, err
	}
	inst.log().Debugf("%s installation prefix is %s", inst.Name, inst.Prefix)
	return inst, nil
}

func sourceFor(tgt *target.Target, name string) string {
	if src := strings.TrimSpace(tgt.Sources[name]); src != "" {
		return src
	}
	return DownloadKeyword
}

func (inst *Installation) resolvePrefix(src string) error {
	log := inst.log()
	if st, err := os.Stat(src); err == nil && st.IsDir() {
		// An existing directory is an installation made outside taucmdr.
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		level, ok := inst.opts.Levels.Owner(abs)
		if !ok {
			level = storage.Level{Name: "external", Root: abs}
		}
		inst.setPrefix(abs, level)
		if err := inst.Verify(); err != nil {
			log.Debugf("%v", err)
		}
		return nil
	}

	if strings.EqualFold(src, DownloadKeyword) {
		src = inst.pkg.Sources.Lookup(inst.Arch, inst.OS)
		if src == "" {
			return errs.Configuration(
				fmt.Sprintf("No default source for %s on %s %s", inst.Title, inst.Arch, inst.OS),
				"Specify source code path or URL for "+inst.Name)
		}
	}
	inst.Src = src
	inst.uid = PrefixHash(src)

	level, err := inst.opts.Levels.FindFirstValid(func(l storage.Level) error {
		inst.setPrefix(inst.prefixAt(l), l)
		err := inst.Verify()
		if err != nil {
			log.Debugf("%v", err)
		}
		return err
	})
	if err == nil {
		log.Debugf("Found %s installation at %s level", inst.Name, level.Name)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	level, err = inst.opts.Levels.HighestWritable()
	if err != nil {
		return err
	}
	inst.setPrefix(inst.prefixAt(level), level)
	return nil
}

// PrefixHash is the directory name identifying a source specifier: the
// lowercase hex MD5 of the string.
func PrefixHash(src string) string {
	sum := md5.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

func (inst *Installation) prefixAt(l storage.Level) string {
	return l.Prefix(inst.opts.Subsystem, inst.Name, inst.uid)
}

func (inst *Installation) setPrefix(prefix string, level storage.Level) {
	inst.Prefix = prefix
	inst.level = level
	inst.IsInstalled = false
}

// Level is the storage level holding the install prefix.
func (inst *Installation) Level() storage.Level { return inst.level }

// Package returns the package description.
func (inst *Installation) Package() *Package { return inst.pkg }

// DependencyList returns the dependencies in declaration order.
func (inst *Installation) DependencyList() []*Installation {
	out := make([]*Installation, 0, len(inst.depOrder))
	for _, n := range inst.depOrder {
		out = append(out, inst.Dependencies[n])
	}
	return out
}

func (inst *Installation) BinPath() string     { return filepath.Join(inst.Prefix, "bin") }
func (inst *Installation) LibPath() string     { return filepath.Join(inst.Prefix, "lib") }
func (inst *Installation) IncludePath() string { return filepath.Join(inst.Prefix, "include") }

func (inst *Installation) log() *ui.Logger { return inst.opts.Log }
