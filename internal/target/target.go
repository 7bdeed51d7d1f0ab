// Package target describes what software is built for: the architecture,
// the operating system and the compiler set.
package target

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Architecture names a CPU architecture as reported by uname -m.
type Architecture string

// OperatingSystem names an operating system as reported by uname -s.
type OperatingSystem string

const (
	X86_64  Architecture = "x86_64"
	AArch64 Architecture = "aarch64"
	PPC64LE Architecture = "ppc64le"

	Linux  OperatingSystem = "Linux"
	Darwin OperatingSystem = "Darwin"
)

var goArch = map[string]Architecture{
	"amd64":   X86_64,
	"arm64":   AArch64,
	"ppc64le": PPC64LE,
}

var goOS = map[string]OperatingSystem{
	"linux":  Linux,
	"darwin": Darwin,
}

// HostArch returns the architecture of the running host.
func HostArch() Architecture {
	if a, ok := goArch[runtime.GOARCH]; ok {
		return a
	}
	return Architecture(runtime.GOARCH)
}

// HostOS returns the operating system of the running host.
func HostOS() OperatingSystem {
	if o, ok := goOS[runtime.GOOS]; ok {
		return o
	}
	return OperatingSystem(runtime.GOOS)
}

// Target is a build target together with the package sources to use for it.
type Target struct {
	Arch      Architecture      `yaml:"arch"`
	OS        OperatingSystem   `yaml:"os"`
	Compilers CompilerSet       `yaml:"compilers"`
	Sources   map[string]string `yaml:"sources"`
}

// Host returns a target for the running host with the default compilers.
func Host() *Target {
	return &Target{
		Arch:      HostArch(),
		OS:        HostOS(),
		Compilers: CompilerSet{Family: "system"},
		Sources:   map[string]string{},
	}
}

// Load reads a YAML target descriptor. Missing fields default to the host.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target %s: %w", path, err)
	}
	t := Host()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse target %s: %w", path, err)
	}
	if t.Arch == "" {
		t.Arch = HostArch()
	}
	if t.OS == "" {
		t.OS = HostOS()
	}
	if t.Compilers.Family == "" {
		t.Compilers.Family = "system"
	}
	if t.Sources == nil {
		t.Sources = map[string]string{}
	}
	return t, nil
}

// SetSource records the source specifier for a package. Specs have the
// form name=source.
func (t *Target) SetSource(spec string) error {
	name, src, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	src = strings.TrimSpace(src)
	if !ok || name == "" || src == "" {
		return fmt.Errorf("invalid source %q: expected name=source", spec)
	}
	if t.Sources == nil {
		t.Sources = map[string]string{}
	}
	t.Sources[name] = src
	return nil
}

// Key selects an entry of a Table. Empty fields match any value.
type Key struct {
	Arch Architecture
	OS   OperatingSystem
}

// Table holds values keyed by architecture and OS. The entry under the
// zero Key is the universal default.
type Table[T any] map[Key]T

// Lookup returns the value for (arch, os), falling back to (arch, any) and
// then to the universal default. The zero value is returned when none exist.
func (t Table[T]) Lookup(arch Architecture, os OperatingSystem) T {
	if v, ok := t[Key{arch, os}]; ok {
		return v
	}
	if v, ok := t[Key{Arch: arch}]; ok {
		return v
	}
	return t[Key{}]
}

// Universal returns a table holding only a default value.
func Universal[T any](v T) Table[T] {
	return Table[T]{Key{}: v}
}
