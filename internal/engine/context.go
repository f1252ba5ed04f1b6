package engine

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/eventbus"
	"github.com/arkaos/arka/internal/resource"
)

// Action statuses recorded to memory.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// MemoryUpdated is the topic announcing an audit record.
const MemoryUpdated = "MEMORY_UPDATED"

// ActionContext is everything a handler needs for one invocation. The
// references it resolves and the events it emits accumulate for the audit
// record and the result.
type ActionContext struct {
	rt *Runtime

	Def      action.Definition
	Key      string
	Type     resource.Type
	Input    map[string]any
	Scope    resource.Scope
	Location resource.Location
	Now      time.Time

	custom     bool
	refs       []string
	events     []string
	deliveries []eventbus.DeliveryResult
}

// Assembly is the snapshot being executed against.
func (ac *ActionContext) Assembly() *assembly.Assembly { return ac.rt.asm }

// Actor is who the action is recorded for.
func (ac *ActionContext) Actor() string { return ac.rt.actor }

// Abs anchors a workspace-relative path at the root.
func (ac *ActionContext) Abs(p string) string { return ac.rt.paths.Abs(p) }

// Refs are the references resolved so far, in order, without repeats.
func (ac *ActionContext) Refs() []string { return append([]string(nil), ac.refs...) }

// Events are the canonical topics emitted so far, in order, without repeats.
func (ac *ActionContext) Events() []string { return dedupe(ac.events) }

func (ac *ActionContext) noteRef(ref string) {
	for _, r := range ac.refs {
		if r == ref {
			return
		}
	}
	ac.refs = append(ac.refs, ref)
}

// Resolve resolves ref strictly and records it.
func (ac *ActionContext) Resolve(ref string) (assembly.Value, error) {
	v, err := ac.rt.asm.Resolve(ref)
	if err != nil {
		return v, err
	}
	ac.noteRef(ref)
	return v, nil
}

// ResolveString resolves a scalar reference strictly and records it.
func (ac *ActionContext) ResolveString(ref string) (string, error) {
	s, err := ac.rt.asm.ResolveString(ref)
	if err != nil {
		return "", err
	}
	ac.noteRef(ref)
	return s, nil
}

// Lookup resolves ref leniently. The reference is recorded either way,
// since it was consulted.
func (ac *ActionContext) Lookup(ref string) (assembly.Value, bool, error) {
	v, ok, err := ac.rt.asm.Lookup(ref)
	if err != nil {
		return v, false, err
	}
	ac.noteRef(ref)
	return v, ok, nil
}

// ValidateID checks value against the regex at ref and returns the
// "<label>:pass" validation entry.
func (ac *ActionContext) ValidateID(ref, label, value string) (string, error) {
	pattern, err := ac.ResolveString(ref)
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", &assembly.ConfigError{
			Reason: assembly.ReasonWrongShape,
			Ref:    ref,
			Err:    fmt.Errorf("bad naming regex at %s: %w", ref, err),
		}
	}
	if !re.MatchString(value) {
		return "", &ValidationError{Label: label, Ref: ref, Value: value}
	}
	return label + ":pass", nil
}

// Emit publishes an event scoped to this action.
func (ac *ActionContext) Emit(ctx context.Context, name, source string, details map[string]any) (eventbus.Event, error) {
	return ac.dispatch(ctx, ac.rt.bus.NewEvent(name, source, ac.Scope, details))
}

func (ac *ActionContext) dispatch(ctx context.Context, ev eventbus.Event) (eventbus.Event, error) {
	out, results, err := ac.rt.bus.Dispatch(ctx, ev)
	if err != nil {
		return out, err
	}
	ac.events = append(ac.events, out.Name)
	ac.deliveries = append(ac.deliveries, results...)
	return out, nil
}

// emitted reports whether topic (after canonicalization) was already
// published by this action.
func (ac *ActionContext) emitted(topic string) bool {
	c := ac.rt.bus.Canonical(topic)
	for _, e := range ac.events {
		if e == c {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
