package main

import (
	"fmt"
	"io"

	"github.com/arkaos/arka/internal/ui"
)

// printError writes a fatal error in the runner's diagnostic format.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, ui.ErrorLine(err.Error()))
}

// warnError writes a recoverable problem and carries on.
func warnError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, ui.WarnLine(fmt.Sprintf(format, args...)))
}
