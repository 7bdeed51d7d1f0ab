package software

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"taucmdr/internal/errs"
)

// Verify checks that the dependencies verify and that every required
// command, library and header is present under the prefix. Libraries may
// live in lib or lib64.
func (inst *Installation) Verify() error {
	for _, dep := range inst.DependencyList() {
		if err := dep.Verify(); err != nil {
			return err
		}
	}
	log := inst.log()
	log.Debugf("Checking %s installation at '%s' targeting %s %s", inst.Name, inst.Prefix, inst.Arch, inst.OS)

	if _, err := os.Stat(inst.Prefix); err != nil {
		return errs.Packagef("'%s' does not exist", inst.Prefix)
	}
	for _, cmd := range inst.Commands {
		path := filepath.Join(inst.BinPath(), cmd)
		if _, err := os.Stat(path); err != nil {
			return errs.Packagef("'%s' is missing", path)
		}
		if unix.Access(path, unix.X_OK) != nil {
			return errs.Packagef("'%s' exists but is not executable", path)
		}
	}
	for _, lib := range inst.Libraries {
		path := filepath.Join(inst.LibPath(), lib)
		if !readable(path) {
			// Some distributions put the machine word size in the directory name.
			path = filepath.Join(inst.LibPath()+"64", lib)
			if !readable(path) {
				return errs.Packagef("'%s' is not accessible", path)
			}
		}
	}
	for _, header := range inst.Headers {
		path := filepath.Join(inst.IncludePath(), header)
		if !readable(path) {
			return errs.Packagef("'%s' is not accessible", path)
		}
	}
	inst.IsInstalled = true
	log.Debugf("%s installation at '%s' is valid", inst.Name, inst.Prefix)
	return nil
}

func readable(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	return unix.Access(path, unix.R_OK) == nil
}
