// Package debug holds the process-wide verbosity switches and writes
// runner diagnostics. Stdout is reserved for the event stream, so all of it
// goes to stderr unless redirected.
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// WarnPrefix starts every warning line.
const WarnPrefix = "[ARKA-RUNNER] WARN: "

var (
	fromEnv = os.Getenv("ARKA_DEBUG") != ""
	verbose atomic.Bool
	quiet   atomic.Bool

	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// Enabled reports whether debug lines are printed, via -v or ARKA_DEBUG.
func Enabled() bool { return fromEnv || verbose.Load() }

func SetVerbose(on bool) { verbose.Store(on) }

// SetQuiet drops warnings.
func SetQuiet(on bool) { quiet.Store(on) }

func IsQuiet() bool { return quiet.Load() }

// SetOutput redirects diagnostics and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// Logf prints a debug line.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		line(format, args...)
	}
}

// Warnf prints a recoverable problem.
func Warnf(format string, args ...interface{}) {
	if !IsQuiet() {
		line(WarnPrefix+format, args...)
	}
}

func line(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	mu.Lock()
	defer mu.Unlock()
	_, _ = io.WriteString(out, msg)
}
