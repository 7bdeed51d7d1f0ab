package software

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"taucmdr/internal/errs"
	"taucmdr/internal/target"
)

// Dependency names another package a package is built against. Optional
// dependencies are only installed when the target names a source for them.
type Dependency struct {
	Name     string
	Optional bool
}

// Package is the static description of an installable package.
type Package struct {
	Name  string
	Title string

	// Sources holds the URLs used for the "download" source keyword.
	Sources target.Table[string]

	// Files that must exist in a valid installation, relative to bin, lib
	// (or lib64) and include.
	Commands  target.Table[[]string]
	Libraries target.Table[[]string]
	Headers   target.Table[[]string]

	Dependencies []Dependency

	// SourceSubdir is the directory of the unpacked tree holding configure.
	SourceSubdir string
	// PrefixFlag formats the install prefix for configure. Defaults to --prefix=%s.
	PrefixFlag string

	// ConfigureFlags returns extra configure flags. Dependencies are
	// installed when it is called.
	ConfigureFlags func(inst *Installation) []string
	MakeFlags      []string
	InstallFlags   []string
}

func (p *Package) prefixFlag() string {
	if p.PrefixFlag == "" {
		return "--prefix=%s"
	}
	return p.PrefixFlag
}

// Registry maps package names to packages.
type Registry struct {
	mu   sync.RWMutex
	pkgs map[string]*Package
}

// NewRegistry returns a registry holding pkgs.
func NewRegistry(pkgs ...*Package) *Registry {
	r := &Registry{pkgs: make(map[string]*Package)}
	for _, p := range pkgs {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any package of the same name.
func (r *Registry) Register(p *Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pkgs[p.Name] = p
}

// Lookup returns the package called name.
func (r *Registry) Lookup(name string) (*Package, error) {
	r.mu.RLock()
	p, ok := r.pkgs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.Configuration(fmt.Sprintf("Unknown software package '%s'", name),
			"Known packages are: "+strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names returns the registered package names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pkgs))
	for n := range r.pkgs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry(builtinPackages()...)

// Register adds p to the default registry.
func Register(p *Package) { defaultRegistry.Register(p) }

// Lookup finds a package in the default registry.
func Lookup(name string) (*Package, error) { return defaultRegistry.Lookup(name) }

// Names lists the packages of the default registry.
func Names() []string { return defaultRegistry.Names() }
