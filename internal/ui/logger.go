// Package ui holds console output helpers: a leveled logger printing in the
// "-> message" style and a pager for long listings.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// Logger writes leveled, colored messages. A nil *Logger discards everything,
// so library code can accept one without checking.
type Logger struct {
	out   io.Writer
	debug bool
}

// New returns a Logger writing to out. Debug messages are printed only when
// debug is true.
func New(out io.Writer, debug bool) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, debug: debug}
}

// Debug reports whether debug messages are printed.
func (l *Logger) Debug() bool {
	return l != nil && l.debug
}

// Writer returns the underlying writer, or io.Discard for a nil Logger.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	return l.out
}

// Debugf prints debug messages when debug is enabled
func (l *Logger) Debugf(format string, a ...any) {
	if !l.Debug() {
		return
	}
	fmt.Fprintf(l.out, "debug: %s\n", strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

// Infof prints a progress message prefixed with an arrow.
func (l *Logger) Infof(format string, a ...any) {
	l.arrow(colSuccess.Sprintf(format, a...))
}

// Notef prints an informational message in the info theme.
func (l *Logger) Notef(format string, a ...any) {
	l.arrow(colInfo.Sprintf(format, a...))
}

// Warnf prints a warning.
func (l *Logger) Warnf(format string, a ...any) {
	l.arrow(colWarn.Sprintf(format, a...))
}

// Errorf prints an error.
func (l *Logger) Errorf(format string, a ...any) {
	l.arrow(colError.Sprintf(format, a...))
}

func (l *Logger) arrow(msg string) {
	if l == nil {
		return
	}
	fmt.Fprint(l.out, colArrow.Sprint("-> "))
	fmt.Fprintln(l.out, strings.TrimRight(msg, "\n"))
}
