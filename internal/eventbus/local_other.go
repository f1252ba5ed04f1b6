//go:build !unix

package eventbus

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"
)

// runProcess runs a local subscriber with the event on stdin. Without
// process groups only the direct child is killed on timeout.
func runProcess(parent context.Context, timeout time.Duration, path string, args []string, stdin []byte, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	// #nosec G204 -- path comes from the assembly's own subscription list
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}
