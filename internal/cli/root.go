// Package cli implements the taucmdr command line.
package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taucmdr/internal/config"
	"taucmdr/internal/errs"
	"taucmdr/internal/fetch"
	"taucmdr/internal/software"
	"taucmdr/internal/storage"
	"taucmdr/internal/target"
	"taucmdr/internal/ui"
)

// Version is set at link time.
var Version = "dev"

// app holds state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	debug      bool

	cfg    *config.Config
	log    *ui.Logger
	levels *storage.Hierarchy
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		a.logger().Errorf("%s", errs.Describe(err))
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taucmdr",
		Short:         "Install and configure performance measurement software",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Print debug output")

	cmd.AddCommand(newInstallCmd(a))
	cmd.AddCommand(newVerifyCmd(a))
	cmd.AddCommand(newPrefixCmd(a))
	cmd.AddCommand(newEnvCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newCleanCmd(a))
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return errs.Configuration(err.Error(), "Fix or remove "+path)
	}
	a.cfg = cfg
	a.log = ui.New(a.stderr, a.debug || cfg.Debug())
	a.levels = storage.Detect(cfg)
	for _, l := range a.levels.Search() {
		a.log.Debugf("storage level %s at '%s' writable=%v", l.Name, l.Root, l.Writable)
	}
	return nil
}

func (a *app) logger() *ui.Logger {
	if a.log == nil {
		a.log = ui.New(a.stderr, a.debug)
	}
	return a.log
}

// targetFlags select the target and package sources.
type targetFlags struct {
	file    string
	sources []string
	arch    string
	os      string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "target", "", "YAML target descriptor")
	cmd.Flags().StringArrayVar(&f.sources, "source", nil, "Package source as name=path|URL|download (repeatable)")
	cmd.Flags().StringVar(&f.arch, "arch", "", "Target architecture (default: host)")
	cmd.Flags().StringVar(&f.os, "os", "", "Target operating system (default: host)")
}

func (f *targetFlags) load() (*target.Target, error) {
	tgt := target.Host()
	if f.file != "" {
		var err error
		if tgt, err = target.Load(f.file); err != nil {
			return nil, errs.Configuration(err.Error(), "Check the target descriptor passed with --target")
		}
	}
	if f.arch != "" {
		tgt.Arch = target.Architecture(f.arch)
	}
	if f.os != "" {
		tgt.OS = target.OperatingSystem(f.os)
	}
	for _, s := range f.sources {
		if err := tgt.SetSource(s); err != nil {
			return nil, errs.Configuration(err.Error())
		}
	}
	return tgt, nil
}

func (a *app) options(ctx context.Context, tgt *target.Target) (software.Options, error) {
	fopts := []fetch.Option{
		fetch.WithLogger(a.log),
		fetch.WithUserAgent("taucmdr/" + Version),
	}
	for _, src := range tgt.Sources {
		if strings.HasPrefix(src, "s3://") {
			client, err := fetch.NewS3Client(ctx, a.cfg)
			if err != nil {
				return software.Options{}, errs.Configuration(err.Error(),
					"Set "+config.KeyS3Region+", "+config.KeyS3AccessKey+" and "+config.KeyS3SecretKey)
			}
			fopts = append(fopts, fetch.WithS3(client))
			break
		}
	}
	return software.Options{
		Target:       tgt,
		Levels:       a.levels,
		Fetcher:      fetch.New(fopts...),
		Log:          a.log,
		Subsystem:    a.cfg.Subsystem(),
		FastBuildDir: a.cfg.FastBuildDir(),
		MakeJobs:     a.cfg.MakeJobs(),
		Roles:        target.Roles,
	}, nil
}

// resolve constructs the installations of the named packages. Without
// names, every package named in the target's sources is used.
func (a *app) resolve(ctx context.Context, tf *targetFlags, names []string) ([]*software.Installation, error) {
	tgt, err := tf.load()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = sortedKeys(tgt.Sources)
	}
	if len(names) == 0 {
		return nil, errs.Configuration("No packages given",
			"Name packages on the command line or give sources with --source name=spec")
	}
	opts, err := a.options(ctx, tgt)
	if err != nil {
		return nil, err
	}
	out := make([]*software.Installation, 0, len(names))
	for _, name := range names {
		inst, err := software.New(name, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
