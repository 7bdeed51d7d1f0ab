// Package errs defines the two error kinds surfaced to users: configuration
// errors, which the user can fix by changing inputs, and software package
// errors, which describe a broken build or installation.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a problem the user can act on, such as an
// unreachable source archive or a storage hierarchy with no writable level.
type ConfigurationError struct {
	Value string
	Hints []string
	Err   error
}

func (e *ConfigurationError) Error() string { return e.Value }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SoftwarePackageError reports a failed build step or an installation that
// does not pass verification.
type SoftwarePackageError struct {
	Value string
	Hints []string
	Err   error
}

func (e *SoftwarePackageError) Error() string { return e.Value }

func (e *SoftwarePackageError) Unwrap() error { return e.Err }

// Configuration returns a ConfigurationError with the given message and hints.
func Configuration(value string, hints ...string) *ConfigurationError {
	return &ConfigurationError{Value: value, Hints: hints}
}

// Configurationf formats a ConfigurationError without hints.
func Configurationf(format string, a ...any) *ConfigurationError {
	return &ConfigurationError{Value: fmt.Sprintf(format, a...)}
}

// Packagef formats a SoftwarePackageError without hints.
func Packagef(format string, a ...any) *SoftwarePackageError {
	return &SoftwarePackageError{Value: fmt.Sprintf(format, a...)}
}

// Hints returns the remediation hints carried anywhere in err's chain.
func Hints(err error) []string {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) && len(cfgErr.Hints) > 0 {
		return cfgErr.Hints
	}
	var pkgErr *SoftwarePackageError
	if errors.As(err, &pkgErr) && len(pkgErr.Hints) > 0 {
		return pkgErr.Hints
	}
	return nil
}

// Describe renders err and its hints the way the CLI prints them.
func Describe(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())
	for _, h := range Hints(err) {
		b.WriteString("\n  hint: ")
		b.WriteString(h)
	}
	return b.String()
}
