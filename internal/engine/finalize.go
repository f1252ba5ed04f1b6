package engine

import (
	"context"
	"fmt"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/eventbus"
	"github.com/arkaos/arka/internal/memory"
	"github.com/arkaos/arka/internal/tmpl"
)

// Outcome is what a handler hands to Finalize.
type Outcome struct {
	Outputs     map[string]any
	Validations []string
	Status      string // default success
	Memory      bool   // record even when no post step asks for it
}

// Result is the structured outcome of one action, printed to stderr by the
// CLI.
type Result struct {
	OK            bool                      `json:"ok"`
	ActionKey     string                    `json:"action_key"`
	Status        string                    `json:"status"`
	Outputs       map[string]any            `json:"outputs"`
	Validations   []string                  `json:"validations"`
	Events        []string                  `json:"events"`
	Notifications []string                  `json:"notifications,omitempty"`
	Deliveries    []eventbus.DeliveryResult `json:"deliveries,omitempty"`
}

// Finalize runs the definition's post steps, then writes the audit record
// and announces it when memory is requested. Emit steps run in declaration
// order before the memory update. The reported event list keeps the first
// occurrence of each topic.
func Finalize(ctx context.Context, ac *ActionContext, out Outcome) (*Result, error) {
	if out.Status == "" {
		out.Status = StatusSuccess
	}
	if out.Outputs == nil {
		out.Outputs = map[string]any{}
	}
	if out.Validations == nil {
		out.Validations = []string{}
	}

	wantMemory := out.Memory
	for _, step := range ac.Def.Steps() {
		switch step.Kind {
		case action.StepMemory:
			wantMemory = true
		case action.StepEmit:
			if ac.rt.bus.Canonical(step.Topic) == MemoryUpdated {
				wantMemory = true
				continue
			}
			// Custom handlers publish their own domain events.
			if ac.custom && ac.emitted(step.Topic) {
				continue
			}
			details := map[string]any{"action_key": ac.Key, "outputs": out.Outputs}
			if _, err := ac.Emit(ctx, step.Topic, action.Namespace, details); err != nil {
				return nil, err
			}
		}
	}

	if wantMemory && !ac.emitted(MemoryUpdated) {
		rec, err := ac.rt.mem.Record(memory.Record{
			Actor:        ac.rt.actor,
			ActionKey:    ac.Key,
			Scope:        ac.Scope,
			Inputs:       ac.Input,
			Outputs:      out.Outputs,
			RefsResolved: ac.Refs(),
			Validations:  out.Validations,
			Status:       out.Status,
		})
		if err != nil {
			return nil, fmt.Errorf("memory update for %s: %w", ac.Key, err)
		}
		ev := ac.rt.bus.NewEvent(MemoryUpdated, action.MemoryNamespace, ac.Scope, map[string]any{"status": rec.Status})
		ev.TS = rec.TS
		if _, err := ac.dispatch(ctx, ev); err != nil {
			return nil, err
		}
	}

	var notes []string
	for _, n := range ac.Def.Notifications {
		notes = append(notes, tmpl.Expand(n, ac.Input, out.Outputs))
	}

	return &Result{
		OK:            out.Status == StatusSuccess,
		ActionKey:     ac.Key,
		Status:        out.Status,
		Outputs:       out.Outputs,
		Validations:   out.Validations,
		Events:        ac.Events(),
		Notifications: notes,
		Deliveries:    ac.deliveries,
	}, nil
}
