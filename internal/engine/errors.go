package engine

import (
	"errors"
	"fmt"

	"github.com/arkaos/arka/internal/assembly"
)

// Process exit codes by failure class.
const (
	ExitOK         = 0
	ExitConfig     = 1
	ExitValidation = 2
	ExitNotFound   = 3
)

// ValidationError is a naming or input check that failed. Nothing has been
// written when it is returned.
type ValidationError struct {
	Label string // e.g. regex.ticket
	Ref   string // regex reference, if any
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s invalid by %s: %s", e.Label, e.Ref, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Label, e.Err)
	}
	return fmt.Sprintf("%s invalid: %s", e.Label, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InputError reports malformed or contradictory action input.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func inputErrorf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError is a required target that does not exist. Generic READ and
// UPDATE never return it; handlers that need a definite referent do.
type NotFoundError struct {
	What string
	Name string
	In   string
}

func (e *NotFoundError) Error() string {
	if e.In != "" {
		return fmt.Sprintf("%s not found: %s (in %s)", e.What, e.Name, e.In)
	}
	return fmt.Sprintf("%s not found: %s", e.What, e.Name)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		ve *ValidationError
		ie *InputError
		nf *NotFoundError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie):
		return ExitValidation
	case errors.As(err, &nf):
		return ExitNotFound
	case assembly.IsConfigError(err):
		return ExitConfig
	}
	return ExitConfig
}
