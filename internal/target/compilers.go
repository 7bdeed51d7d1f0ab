package target

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a compiler's function within a compiler set, e.g. the C compiler.
// Keyword is the environment variable conventionally naming it.
type Role struct {
	Keyword string
	Name    string
}

// Roles is the compiler role table.
var Roles = []Role{
	{Keyword: "CC", Name: "C"},
	{Keyword: "CXX", Name: "C++"},
	{Keyword: "FC", Name: "Fortran"},
	{Keyword: "F77", Name: "FORTRAN77"},
	{Keyword: "F90", Name: "Fortran90"},
	{Keyword: "UPC", Name: "Universal Parallel C"},
	{Keyword: "MPI_CC", Name: "MPI C"},
	{Keyword: "MPI_CXX", Name: "MPI C++"},
	{Keyword: "MPI_FC", Name: "MPI Fortran"},
}

// RoleKeywords returns the keyword of every role.
func RoleKeywords(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Keyword)
	}
	return out
}

// Family default compiler commands.
var familyCommands = map[string]map[string]string{
	"GNU":   {"CC": "gcc", "CXX": "g++", "FC": "gfortran"},
	"Intel": {"CC": "icc", "CXX": "icpc", "FC": "ifort"},
	"PGI":   {"CC": "pgcc", "CXX": "pgCC", "FC": "pgfortran"},
}

// CompilerSet is a compiler family and the executable used for each role.
// Roles missing from Commands fall back to the family defaults; the
// "system" family sets nothing and lets configure pick.
type CompilerSet struct {
	Family   string
	Commands map[string]string
}

// UnmarshalYAML accepts {family: GNU, CC: /usr/bin/gcc, ...}.
func (c *CompilerSet) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	c.Commands = map[string]string{}
	for k, v := range raw {
		if strings.EqualFold(k, "family") {
			c.Family = v
			continue
		}
		c.Commands[strings.ToUpper(k)] = v
	}
	return nil
}

// MarshalYAML writes the inverse of UnmarshalYAML.
func (c CompilerSet) MarshalYAML() (any, error) {
	out := map[string]string{"family": c.Family}
	for k, v := range c.Commands {
		out[k] = v
	}
	return out, nil
}

// Command returns the executable for role keyword kw.
func (c CompilerSet) Command(kw string) (string, bool) {
	if cmd, ok := c.Commands[kw]; ok && cmd != "" {
		return cmd, true
	}
	cmd, ok := familyCommands[c.Family][kw]
	return cmd, ok
}

// Env returns KEY=command assignments for the C, C++ and Fortran roles.
func (c CompilerSet) Env() map[string]string {
	env := map[string]string{}
	for _, kw := range []string{"CC", "CXX", "FC"} {
		if cmd, ok := c.Command(kw); ok {
			env[kw] = cmd
		}
	}
	return env
}

func (c CompilerSet) String() string {
	if len(c.Commands) == 0 {
		return c.Family
	}
	keys := make([]string, 0, len(c.Commands))
	for k := range c.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.Commands[k]))
	}
	return c.Family + " (" + strings.Join(parts, ", ") + ")"
}
