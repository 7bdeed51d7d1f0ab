package software

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const lockPollInterval = 200 * time.Millisecond

// Lock takes an exclusive lock on the install prefix so concurrent
// invocations cannot build into it at the same time. The returned release
// function is safe to call more than once. Pre-installed packages and
// prefixes on read-only storage are not locked.
func (inst *Installation) Lock(ctx context.Context) (release func(), err error) {
	if inst.Src == "" || !inst.level.Writable {
		return func() {}, nil
	}
	if err := os.MkdirAll(inst.Prefix, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", inst.Prefix, err)
	}
	lockPath := filepath.Join(inst.Prefix, LockFile)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	waited := false
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
		}
		if !waited {
			inst.log().Notef("Waiting for another process to release '%s'", lockPath)
			waited = true
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
		})
	}, nil
}

// cleanPrefix removes everything under the prefix except the lock marker.
func (inst *Installation) cleanPrefix() error {
	entries, err := os.ReadDir(inst.Prefix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == LockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(inst.Prefix, e.Name())); err != nil {
			return fmt.Errorf("failed to clean %s: %w", inst.Prefix, err)
		}
	}
	return nil
}
