// Package engine executes configured actions: it looks up the action
// definition, selects a custom or generic handler, performs the filesystem
// work, then finalizes the action by emitting events and recording it to
// memory.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/eventbus"
	"github.com/arkaos/arka/internal/memory"
	"github.com/arkaos/arka/internal/resource"
	"github.com/arkaos/arka/internal/telemetry"
)

// Paths are the invocation-wide locations, computed once and passed down.
type Paths struct {
	Root   string // workspace root; relative action paths hang off it
	Memory string // memory root, relative to Root unless absolute
}

// Abs anchors p at the workspace root.
func (p Paths) Abs(rel string) string {
	if rel == "" || filepath.IsAbs(rel) || p.Root == "" {
		return rel
	}
	return filepath.Join(p.Root, rel)
}

// Handler executes one action.
type Handler func(ctx context.Context, ac *ActionContext) (*Result, error)

// Runtime runs actions against one assembly snapshot.
type Runtime struct {
	asm      *assembly.Assembly
	table    *action.Table
	bus      *eventbus.Bus
	mem      *memory.Recorder
	registry *Registry
	paths    Paths
	actor    string
	profile  string
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithActor sets who is recorded as having run the action.
func WithActor(actor string) Option { return func(r *Runtime) { r.actor = actor } }

// WithProfile sets the profile stamped on events.
func WithProfile(p string) Option { return func(r *Runtime) { r.profile = p } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(r *Runtime) { r.now = now } }

// WithBus replaces the event bus built from the assembly.
func WithBus(b *eventbus.Bus) Option { return func(r *Runtime) { r.bus = b } }

// WithRecorder replaces the memory recorder.
func WithRecorder(m *memory.Recorder) Option { return func(r *Runtime) { r.mem = m } }

// WithRegistry replaces the custom handler registry.
func WithRegistry(reg *Registry) Option { return func(r *Runtime) { r.registry = reg } }

// New prepares a runtime. The action table is loaded eagerly so a missing
// action namespace fails before anything runs.
func New(asm *assembly.Assembly, paths Paths, opts ...Option) (*Runtime, error) {
	table, err := action.Load(asm)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		asm:     asm,
		table:   table,
		paths:   paths,
		actor:   memory.DefaultActor,
		profile: "default",
		now:     time.Now,
		tracer:  telemetry.Tracer("github.com/arkaos/arka/engine"),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.paths.Memory == "" {
		rt.paths.Memory = ".mem"
	}
	if rt.registry == nil {
		rt.registry = DefaultRegistry()
	}
	if rt.mem == nil {
		rt.mem = memory.NewRecorder(rt.paths.Abs(rt.paths.Memory), memory.WithClock(rt.now))
	}
	if rt.bus == nil {
		cfg, err := eventbus.ConfigFromAssembly(asm, eventbus.DefaultConfig())
		if err != nil {
			return nil, err
		}
		rt.bus = eventbus.New(cfg,
			eventbus.WithRoot(paths.Root),
			eventbus.WithProfile(rt.profile),
			eventbus.WithClock(rt.now),
		)
	}
	return rt, nil
}

// Assembly is the snapshot the runtime reads.
func (rt *Runtime) Assembly() *assembly.Assembly { return rt.asm }

// Table is the loaded action table.
func (rt *Runtime) Table() *action.Table { return rt.table }

// Bus is the event bus actions publish to.
func (rt *Runtime) Bus() *eventbus.Bus { return rt.bus }

// Recorder is the memory recorder.
func (rt *Runtime) Recorder() *memory.Recorder { return rt.mem }

// Paths returns the invocation paths.
func (rt *Runtime) Paths() Paths { return rt.paths }

// Run executes the action named key with input. Any error is fatal for the
// invocation; ExitCode classifies it.
func (rt *Runtime) Run(ctx context.Context, key string, input map[string]any) (res *Result, err error) {
	ctx, span := rt.tracer.Start(ctx, "arka.action",
		trace.WithAttributes(attribute.String("arka.action_key", key)),
	)
	defer func() {
		status := StatusSuccess
		if err != nil {
			status = StatusFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		telemetry.RecordAction(ctx, key, status)
		span.End()
	}()

	def, err := rt.table.Find(key)
	if err != nil {
		return nil, err
	}
	if def.Aliased() {
		debug.Logf("action %s aliased to %s", def.Requested, def.Key)
	}
	span.SetAttributes(attribute.String("arka.resolved_key", def.Key))

	input, err = NormalizeInput(input)
	if err != nil {
		return nil, err
	}

	handler, custom, err := rt.handlerFor(def)
	if err != nil {
		return nil, err
	}
	ac := rt.newContext(def, input, custom)
	debug.Logf("running %s (type=%s operation=%s custom=%v)", def.Key, ac.Type.Name, def.Operation, custom)
	return handler(ctx, ac)
}

// handlerFor picks the custom handler registered for the key, else the
// generic handler for its operation.
func (rt *Runtime) handlerFor(def action.Definition) (Handler, bool, error) {
	if h, ok := rt.registry.Lookup(def.Key); ok {
		return h, true, nil
	}
	if h, ok := genericHandlers[def.Operation]; ok {
		return h, false, nil
	}
	return nil, false, &assembly.ConfigError{
		Reason:  assembly.ReasonMissingPath,
		Ref:     action.Namespace + ":action_keys." + def.Key + ".operation",
		Segment: "operation",
		Err:     fmt.Errorf("no handler for action %s", def.Key),
	}
}

// HandlerKind describes how key would be executed: "custom", the generic
// operation name, or "" when nothing handles it.
func (rt *Runtime) HandlerKind(def action.Definition) string {
	if _, ok := rt.registry.Lookup(def.Key); ok {
		return "custom"
	}
	if _, ok := genericHandlers[def.Operation]; ok {
		return string(def.Operation)
	}
	return ""
}

func (rt *Runtime) newContext(def action.Definition, input map[string]any, custom bool) *ActionContext {
	t := def.Type()
	return &ActionContext{
		rt:     rt,
		Def:    def,
		Key:    def.Key,
		Type:   t,
		Input:  input,
		Scope:  resource.BuildScope(t, input),
		Now:    rt.now().UTC(),
		custom: custom,
	}
}
