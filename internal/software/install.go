package software

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"taucmdr/internal/errs"
	"taucmdr/internal/target"
)

// BuildLog is the name of the build output file kept in the install prefix.
const BuildLog = ".tau_build.log"

// BuildDirPattern prefixes the temporary build directories.
const BuildDirPattern = "taucmdr-build-"

// Install installs the dependencies, then builds the package unless it
// already verifies and force is false. The final Verify decides success.
func (inst *Installation) Install(ctx context.Context, force bool) error {
	for _, dep := range inst.DependencyList() {
		if err := dep.Install(ctx, force); err != nil {
			return err
		}
	}
	log := inst.log()

	if inst.Src == "" {
		if err := inst.Verify(); err != nil {
			return &errs.ConfigurationError{
				Value: fmt.Sprintf("Invalid %s installation at '%s': %v", inst.Title, inst.Prefix, err),
				Hints: []string{"Specify source code path or URL to enable broken package reinstallation."},
				Err:   err,
			}
		}
		return nil
	}

	if !force {
		err := inst.Verify()
		if err == nil {
			log.Debugf("%s is already installed at '%s'", inst.Title, inst.Prefix)
			return nil
		}
		log.Debugf("%v", err)
	}

	if !inst.level.Writable {
		level, err := inst.opts.Levels.HighestWritable()
		if err != nil {
			return err
		}
		log.Debugf("'%s' is on read-only storage, installing at %s level", inst.Prefix, level.Name)
		inst.setPrefix(inst.prefixAt(level), level)
	}

	release, err := inst.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	// Another process may have finished the build while we waited.
	if !force && inst.Verify() == nil {
		return nil
	}

	log.Infof("Installing %s at '%s'", inst.Title, inst.Prefix)
	if err := inst.cleanPrefix(); err != nil {
		return err
	}

	buildPrefix, cleanup, err := inst.buildPrefix()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := inst.build(ctx, buildPrefix); err != nil {
		log.Infof("%s installation failed: %v", inst.Title, err)
		return err
	}

	log.Debugf("Deleting '%s'", inst.SrcPrefix)
	if err := os.RemoveAll(inst.SrcPrefix); err != nil {
		log.Warnf("Cannot remove %s source files at '%s': %v", inst.Title, inst.SrcPrefix, err)
	}
	inst.SrcPrefix = ""

	if err := inst.Verify(); err != nil {
		return err
	}
	log.Infof("%s installation complete", inst.Title)
	return nil
}

func (inst *Installation) build(ctx context.Context, buildPrefix string) error {
	srcDir, err := inst.stage(ctx, buildPrefix, true)
	if err != nil {
		return err
	}
	if inst.pkg.SourceSubdir != "" {
		srcDir = filepath.Join(srcDir, inst.pkg.SourceSubdir)
	}

	logPath := filepath.Join(inst.Prefix, BuildLog)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log: %w", err)
	}
	defer logFile.Close()

	at := &Autotools{
		Title:      inst.Title,
		SrcDir:     srcDir,
		Prefix:     inst.Prefix,
		PrefixFlag: inst.pkg.prefixFlag(),
		Compilers:  inst.Compilers,
		MakeCmd:    inst.opts.Make,
		Jobs:       inst.opts.MakeJobs,
		Scrub:      append(target.RoleKeywords(inst.opts.Roles), "TAU"),
		Output:     logFile,
		LogPath:    logPath,
		Log:        inst.log(),
	}

	var flags []string
	if inst.pkg.ConfigureFlags != nil {
		flags = inst.pkg.ConfigureFlags(inst)
	}
	env := map[string]string{}
	if err := at.Configure(ctx, flags, env); err != nil {
		return err
	}
	if err := at.Make(ctx, inst.pkg.MakeFlags, env, true); err != nil {
		return err
	}
	return at.MakeInstall(ctx, inst.pkg.InstallFlags, env, false)
}

// buildPrefix creates a temporary build directory in the fast build
// directory. When that fails the highest writable level's src directory is
// used directly: the cached archive is unpacked in place and the staged
// tree outlives a failed build so the next attempt can reuse it. cleanup
// only removes temporary directories and logs failures.
func (inst *Installation) buildPrefix() (dir string, cleanup func(), err error) {
	log := inst.log()
	dir, err = os.MkdirTemp(inst.opts.FastBuildDir, BuildDirPattern+inst.Name+"-")
	if err == nil {
		log.Debugf("Building %s in '%s'", inst.Name, dir)
		return dir, func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warnf("Cannot remove build directory '%s': %v", dir, err)
			}
		}, nil
	}

	log.Debugf("Cannot use '%s' for building: %v", inst.opts.FastBuildDir, err)
	level, err := inst.opts.Levels.HighestWritable()
	if err != nil {
		return "", nil, err
	}
	dir = level.ArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	log.Debugf("Building %s in '%s'", inst.Name, dir)
	return dir, func() {}, nil
}
