// Package executor runs build subprocesses in an isolated process group
// with a scrubbed environment.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Executor runs commands under a context. Commands are killed with their
// whole process group when the context is cancelled.
type Executor struct {
	Context context.Context // The context to use for cancellation
	Scrub   []string        // Inherited variables starting with any of these are dropped
	Stdout  io.Writer       // Default stdout for commands that set none
	Stderr  io.Writer       // Default stderr for commands that set none
}

// New returns an Executor that drops inherited variables starting with any
// of the given prefixes.
func New(ctx context.Context, scrub ...string) *Executor {
	return &Executor{Context: ctx, Scrub: scrub}
}

// Environ returns the process environment without scrubbed variables, with
// overlay applied on top. Overlay keys are never scrubbed.
func (e *Executor) Environ(overlay map[string]string) []string {
	return Environ(os.Environ(), e.Scrub, overlay)
}

// Environ filters base and applies overlay. The result is sorted by key.
func Environ(base, scrub []string, overlay map[string]string) []string {
	vars := make(map[string]string, len(base)+len(overlay))
	for _, kv := range base {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || scrubbed(key, scrub) {
			continue
		}
		vars[key] = val
	}
	for k, v := range overlay {
		vars[k] = v
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}

func scrubbed(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Run executes cmd. A nil cmd.Env inherits the scrubbed process environment.
// It wires up stdio, isolates the child in its own process group for cleanup,
// and reports "command aborted" when the context ended the command.
func (e *Executor) Run(cmd *exec.Cmd) error {
	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("command aborted: %v", err)
	}

	// --- Phase 0: wire up stdio ---
	if cmd.Stdout == nil {
		cmd.Stdout = orDefault(e.Stdout, os.Stdout)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = orDefault(e.Stderr, os.Stderr)
	}
	if cmd.Env == nil {
		cmd.Env = e.Environ(nil)
	}

	// --- Phase 1: isolate process group for context-based cleanup ---
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// --- Phase 2: start and watch for cancel ---
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	pgid := cmd.Process.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	// --- Phase 3: wait and return ---
	if waitErr := cmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			// The leader is reaped; make sure no child of it outlives Run.
			syscall.Kill(-pgid, syscall.SIGKILL)
			return fmt.Errorf("command aborted: %v", ctx.Err())
		}
		return waitErr
	}
	return nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
