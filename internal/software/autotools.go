package software

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"taucmdr/internal/errs"
	"taucmdr/internal/executor"
	"taucmdr/internal/target"
	"taucmdr/internal/ui"
)

// Autotools drives ./configure, make and make install in a staged source
// tree. The env map passed to each step is shared, so variables set while
// configuring are seen by the later steps.
type Autotools struct {
	Title      string
	SrcDir     string // Directory holding configure
	Prefix     string
	PrefixFlag string
	Compilers  target.CompilerSet
	MakeCmd    string
	Jobs       int
	Scrub      []string  // Inherited variable prefixes removed from the environment
	Output     io.Writer // Receives configure and make output
	LogPath    string    // Named in error hints when set
	Log        *ui.Logger
}

// Configure runs configure with flags and the install prefix flag. The
// compiler set's CC, CXX and FC are added to env unless already set.
func (a *Autotools) Configure(ctx context.Context, flags []string, env map[string]string) error {
	for k, v := range a.Compilers.Env() {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	prefixFlag := a.PrefixFlag
	if prefixFlag == "" {
		prefixFlag = "--prefix=%s"
	}
	args := append(append([]string{}, flags...), fmt.Sprintf(prefixFlag, a.Prefix))

	a.Log.Debugf("Configuring %s at '%s'", a.Title, a.SrcDir)
	a.Log.Infof("Configuring %s...", a.Title)
	if err := a.run(ctx, filepath.Join(a.SrcDir, "configure"), args, env); err != nil {
		return a.failed(fmt.Sprintf("%s configure failed", a.Title), err)
	}
	return nil
}

// Make compiles. A failed parallel build is retried once without -j.
func (a *Autotools) Make(ctx context.Context, flags []string, env map[string]string, parallel bool) error {
	par := a.parallelFlags(parallel)
	a.Log.Debugf("Making %s at '%s'", a.Title, a.SrcDir)
	a.Log.Infof("Compiling %s...", a.Title)

	err := a.run(ctx, a.MakeCmd, append(par, flags...), env)
	if err != nil && len(par) > 0 && ctx.Err() == nil {
		a.Log.Debugf("Parallel make of %s failed: %v; retrying serially", a.Title, err)
		err = a.run(ctx, a.MakeCmd, append([]string{}, flags...), env)
	}
	if err != nil {
		return a.failed(fmt.Sprintf("%s compilation failed", a.Title), err)
	}
	return nil
}

// MakeInstall runs make install, then links lib to lib64 when the package
// only installed lib64.
func (a *Autotools) MakeInstall(ctx context.Context, flags []string, env map[string]string, parallel bool) error {
	args := append(a.parallelFlags(parallel), flags...)
	args = append(args, "install")

	a.Log.Debugf("Installing %s at '%s' to '%s'", a.Title, a.SrcDir, a.Prefix)
	a.Log.Infof("Installing %s...", a.Title)
	if err := a.run(ctx, a.MakeCmd, args, env); err != nil {
		return a.failed(fmt.Sprintf("%s installation failed", a.Title), err)
	}

	lib := filepath.Join(a.Prefix, "lib")
	lib64 := filepath.Join(a.Prefix, "lib64")
	if isDir(lib64) {
		if _, err := os.Lstat(lib); os.IsNotExist(err) {
			if err := os.Symlink("lib64", lib); err != nil {
				return a.failed(fmt.Sprintf("Cannot link '%s' to '%s'", lib, lib64), err)
			}
		}
	}
	return nil
}

func (a *Autotools) parallelFlags(parallel bool) []string {
	if !parallel {
		return []string{}
	}
	jobs := a.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	return []string{"-j", strconv.Itoa(jobs)}
}

func (a *Autotools) run(ctx context.Context, name string, args []string, env map[string]string) error {
	out := a.Output
	if out == nil {
		out = io.Discard
	}
	if a.Log.Debug() {
		out = io.MultiWriter(out, a.Log.Writer())
	}
	fmt.Fprintf(out, "+ %s %v\n", name, args)

	e := executor.New(ctx, a.Scrub...)
	cmd := exec.Command(name, args...)
	cmd.Dir = a.SrcDir
	cmd.Env = e.Environ(env)
	cmd.Stdout = out
	cmd.Stderr = out
	return e.Run(cmd)
}

func (a *Autotools) failed(msg string, err error) error {
	pkgErr := &errs.SoftwarePackageError{Value: msg, Err: err}
	if a.LogPath != "" {
		pkgErr.Hints = []string{"See the build log at " + a.LogPath}
	}
	a.Log.Debugf("%s: %v", msg, err)
	return pkgErr
}
