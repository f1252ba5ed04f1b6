package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/arkaos/arka/internal/tmpl"
)

// argExpander resolves ${path:-fallback} in subscriber args against the
// event itself. The process environment is deliberately not consulted.
var argExpander = tmpl.Expander{LookupEnv: func(string) (string, bool) { return "", false }}

// ScriptPath resolves a local subscriber's executable under the base dir.
func (b *Bus) ScriptPath(s Subscription) string {
	if filepath.IsAbs(s.Run) {
		return s.Run
	}
	base := b.cfg.LocalBaseDir
	if base == "" {
		base = DefaultLocalBaseDir
	}
	if !filepath.IsAbs(base) && b.root != "" {
		base = filepath.Join(b.root, base)
	}
	return filepath.Join(base, filepath.FromSlash(s.Run))
}

// ExpandArgs templates a subscriber's argument list from the event.
func ExpandArgs(args []string, payload []byte) []string {
	var data map[string]any
	_ = json.Unmarshal(payload, &data)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = argExpander.Expand(a, data)
	}
	return out
}

func (b *Bus) deliverLocal(ctx context.Context, s Subscription, ev Event, payload []byte) DeliveryResult {
	res := DeliveryResult{Event: ev.Name, Subscriber: s.Name, Using: UsingLocal, Target: s.Run}
	if s.Run == "" {
		res.Status = StatusError
		res.Error = "local subscriber has no run target"
		return res
	}
	script := b.ScriptPath(s)
	res.Target = script

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = b.cfg.LocalTimeout
	}
	if timeout <= 0 {
		timeout = DefaultLocalTimeout
	}

	err := runProcess(ctx, timeout, script, ExpandArgs(s.Args, payload), payload, b.procOut, b.procErr)
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusTimeout
		res.Error = fmt.Sprintf("timed out after %s", timeout)
	default:
		res.Status = StatusError
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Error = fmt.Sprintf("exit %d", exitErr.ExitCode())
		} else {
			res.Error = err.Error()
		}
	}
	return res
}
