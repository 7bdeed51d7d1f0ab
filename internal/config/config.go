// Package config loads taucmdr settings from a KEY=VALUE file and the
// TAUCMDR_* environment.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultFile is read when TAUCMDR_CONFIG is not set.
const DefaultFile = "/etc/taucmdr.conf"

const envPrefix = "TAUCMDR_"

// Config keys.
const (
	KeyUserPrefix    = "TAUCMDR_USER_PREFIX"
	KeySystemPrefix  = "TAUCMDR_SYSTEM_PREFIX"
	KeyDebug         = "TAUCMDR_DEBUG"
	KeyMakeJobs      = "TAUCMDR_MAKE_JOBS"
	KeyFastBuildDir  = "TAUCMDR_FAST_BUILD_DIR"
	KeySubsystem     = "TAUCMDR_SUBSYSTEM"
	KeyS3Region      = "TAUCMDR_S3_REGION"
	KeyS3Endpoint    = "TAUCMDR_S3_ENDPOINT"
	KeyS3AccessKey   = "TAUCMDR_S3_ACCESS_KEY_ID"
	KeyS3SecretKey   = "TAUCMDR_S3_SECRET_ACCESS_KEY"
	KeyNoPager       = "TAUCMDR_NO_PAGER"
	defaultSubsystem = "software"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load reads path (missing files are fine) and merges TAUCMDR_* environment
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("open config %s: %w", path, err)
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Path returns the config file location honoring TAUCMDR_CONFIG.
func Path() string {
	if p := os.Getenv("TAUCMDR_CONFIG"); p != "" {
		return p
	}
	return DefaultFile
}

// Merge TAUCMDR_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// Get returns the value for key or def when it is unset or empty.
func (c *Config) Get(key, def string) string {
	if c == nil {
		return def
	}
	if v := c.Values[key]; v != "" {
		return v
	}
	return def
}

// Bool interprets "1", "true", "yes" (any case) as true.
func (c *Config) Bool(key string) bool {
	switch strings.ToLower(c.Get(key, "")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Debug reports whether debug output was requested.
func (c *Config) Debug() bool { return c.Bool(KeyDebug) }

// UserPrefix is the root of the user storage level.
func (c *Config) UserPrefix() string {
	if v := c.Get(KeyUserPrefix, ""); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "taucmdr")
	}
	return filepath.Join(home, ".local", "taucmdr")
}

// SystemPrefix is the root of the system storage level.
func (c *Config) SystemPrefix() string {
	return c.Get(KeySystemPrefix, "/usr/local/share/taucmdr")
}

// Subsystem is the directory under a storage root holding package installs.
func (c *Config) Subsystem() string {
	return c.Get(KeySubsystem, defaultSubsystem)
}

// FastBuildDir is where temporary build trees are created when possible.
func (c *Config) FastBuildDir() string {
	return c.Get(KeyFastBuildDir, "/dev/shm")
}

// MakeJobs is the -j value passed to parallel make invocations. The default
// leaves one core free.
func (c *Config) MakeJobs() int {
	if v := c.Get(KeyMakeJobs, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMakeJobs()
}

// DefaultMakeJobs returns max(1, NumCPU-1).
func DefaultMakeJobs() int {
	return max(1, runtime.NumCPU()-1)
}
