//go:build unix

package eventbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// runProcess runs a local subscriber with the event on stdin. On timeout the
// whole process group is killed so descendants cannot hold the run open.
func runProcess(parent context.Context, timeout time.Duration, path string, args []string, stdin []byte, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	// #nosec G204 -- path comes from the assembly's own subscription list
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

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
			if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill process group: %w", err)
			}
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}
