package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"taucmdr/internal/config"
	"taucmdr/internal/errs"
	"taucmdr/internal/software"
	"taucmdr/internal/ui"
)

func newInstallCmd(a *app) *cobra.Command {
	var (
		tf    targetFlags
		force bool
	)
	cmd := &cobra.Command{
		Use:   "install [package...]",
		Short: "Install packages and their dependencies",
		Long: "Install packages and their dependencies. A package whose installation\n" +
			"already verifies is not rebuilt unless --force is given.\n\n" +
			"Known packages: " + strings.Join(software.Names(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := a.resolve(cmd.Context(), &tf, args)
			if err != nil {
				return err
			}
			for _, inst := range insts {
				if err := inst.Install(cmd.Context(), force); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", inst.Name, inst.Prefix)
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even if a valid installation exists")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var tf targetFlags
	cmd := &cobra.Command{
		Use:   "verify [package...]",
		Short: "Check that packages are correctly installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := a.resolve(cmd.Context(), &tf, args)
			if err != nil {
				return err
			}
			var failed error
			for _, inst := range insts {
				if err := inst.Verify(); err != nil {
					a.log.Errorf("%s: %v", inst.Name, err)
					if failed == nil {
						failed = invalid(inst, err)
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tOK\t%s\n", inst.Name, inst.Prefix)
			}
			return failed
		},
	}
	tf.register(cmd)
	return cmd
}

func newPrefixCmd(a *app) *cobra.Command {
	var tf targetFlags
	cmd := &cobra.Command{
		Use:   "prefix package...",
		Short: "Print the install prefix of packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := a.resolve(cmd.Context(), &tf, args)
			if err != nil {
				return err
			}
			for _, inst := range insts {
				fmt.Fprintln(cmd.OutOrStdout(), inst.Prefix)
			}
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newEnvCmd(a *app) *cobra.Command {
	var (
		tf      targetFlags
		runtime bool
	)
	cmd := &cobra.Command{
		Use:   "env package",
		Short: "Print the environment changes needed to use a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := a.resolve(cmd.Context(), &tf, args)
			if err != nil {
				return err
			}
			inst := insts[0]
			base := environ()
			var env map[string]string
			if runtime {
				_, env = inst.RuntimeConfig(nil, base)
			} else {
				_, env = inst.CompiletimeConfig(nil, base)
			}
			for _, k := range sortedKeys(env) {
				if base[k] != env[k] {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, env[k])
				}
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&runtime, "runtime", false, "Print the runtime environment instead of the compile-time one")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installations in every storage level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs := software.Scan(a.levels, a.cfg.Subsystem())
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No installations found.")
				return nil
			}
			tbl := ui.Table{
				Title:   "Installations",
				Columns: []string{"PACKAGE", "LEVEL", "HASH", "PREFIX"},
			}
			for _, r := range recs {
				tbl.Rows = append(tbl.Rows, []string{r.Package, r.Level.Name, r.Hash, r.Prefix})
			}
			return ui.Page(cmd.OutOrStdout(), tbl, !a.cfg.Bool(config.KeyNoPager))
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	var archives, builds bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached source archives and leftover build directories",
		Long: "Remove cached source archives and leftover build directories from\n" +
			"writable storage levels. Without flags both are removed. Do not run\n" +
			"while an install is in progress.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !archives && !builds {
				archives, builds = true, true
			}
			if archives {
				n, err := software.CleanArchives(a.levels, a.log)
				if err != nil {
					return err
				}
				a.log.Infof("Removed %d cached archive files", n)
			}
			if builds {
				n, err := software.CleanBuilds(a.levels, a.cfg.FastBuildDir(), a.log)
				if err != nil {
					return err
				}
				a.log.Infof("Removed %d build directories", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&archives, "archives", false, "Remove cached source archives")
	cmd.Flags().BoolVar(&builds, "builds", false, "Remove leftover build directories")
	return cmd
}

func newVersionCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taucmdr %s\n", Version)
		},
	}
}

// invalid adds the package context to a build or verification failure.
func invalid(inst *software.Installation, err error) error {
	var pkgErr *errs.SoftwarePackageError
	if !errors.As(err, &pkgErr) {
		return err
	}
	return &errs.SoftwarePackageError{
		Value: fmt.Sprintf("Invalid %s installation at '%s': %v", inst.Title, inst.Prefix, err),
		Hints: pkgErr.Hints,
		Err:   err,
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
