package software

import (
	"os"
	"runtime"
	"strings"
)

// CompiletimeConfig returns copies of opts and env adjusted for compiling
// other software against this package: bin is prepended to PATH. A nil env
// starts from the process environment.
func (inst *Installation) CompiletimeConfig(opts []string, env map[string]string) ([]string, map[string]string) {
	opts, env = dedup(opts), copyEnv(env)
	if isDir(inst.BinPath()) {
		prependPath(env, "PATH", inst.BinPath())
	}
	return opts, env
}

// RuntimeConfig is CompiletimeConfig plus lib prepended to the dynamic
// library search path.
func (inst *Installation) RuntimeConfig(opts []string, env map[string]string) ([]string, map[string]string) {
	opts, env = inst.CompiletimeConfig(opts, env)
	if isDir(inst.LibPath()) {
		prependPath(env, LibraryPathVar(runtime.GOOS), inst.LibPath())
	}
	return opts, env
}

// LibraryPathVar names the dynamic library search path variable for goos.
func LibraryPathVar(goos string) string {
	if goos == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

func prependPath(env map[string]string, key, dir string) {
	if cur := env[key]; cur != "" {
		env[key] = dir + string(os.PathListSeparator) + cur
		return
	}
	env[key] = dir
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string)
	if env == nil {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range env {
		out[k] = v
	}
	return out
}

func dedup(opts []string) []string {
	seen := make(map[string]bool, len(opts))
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	return out
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
