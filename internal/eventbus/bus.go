// Package eventbus publishes runner events: one JSON line per event on the
// event stream, then fan-out to the subscribers configured for its
// canonical topic (local executables or HTTP webhooks).
//
// Besides event, ts, source_brick, profile, scope and details, a line
// carries the invocation's trace_id. More keys can appear over time;
// consumers must ignore keys they do not know.
//
// Deliveries are bounded by a timeout and never fail the originating
// action. Fan-out is sequential in declaration order unless the bus is
// configured with a worker count above one.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/memory"
	"github.com/arkaos/arka/internal/resource"
	"github.com/arkaos/arka/internal/telemetry"
)

// Bus dispatches events for one invocation.
type Bus struct {
	cfg             Config
	root            string
	profile         string
	traceID         string
	webhookOverride string
	retryInterval   time.Duration

	stdout  io.Writer
	procOut io.Writer
	procErr io.Writer
	client  *http.Client
	now     func() time.Time
	tracer  trace.Tracer

	mu sync.Mutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithRoot sets the workspace root that relative script paths hang off.
func WithRoot(dir string) Option { return func(b *Bus) { b.root = dir } }

// WithProfile sets the profile stamped on events.
func WithProfile(p string) Option { return func(b *Bus) { b.profile = p } }

// WithTraceID overrides the generated invocation trace id.
func WithTraceID(id string) Option { return func(b *Bus) { b.traceID = id } }

// WithWebhookOverride sends every webhook delivery to url instead of the
// subscription's own target.
func WithWebhookOverride(url string) Option { return func(b *Bus) { b.webhookOverride = url } }

// WithStdout redirects the event stream.
func WithStdout(w io.Writer) Option { return func(b *Bus) { b.stdout = w } }

// WithProcessOutput sets where local subscribers' stdout and stderr go.
func WithProcessOutput(stdout, stderr io.Writer) Option {
	return func(b *Bus) { b.procOut, b.procErr = stdout, stderr }
}

// WithHTTPClient replaces the webhook client.
func WithHTTPClient(c *http.Client) Option { return func(b *Bus) { b.client = c } }

// WithClock overrides the time source for event timestamps.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// WithRetryInterval sets the first webhook retry delay.
func WithRetryInterval(d time.Duration) Option { return func(b *Bus) { b.retryInterval = d } }

// New builds a bus from cfg.
func New(cfg Config, opts ...Option) *Bus {
	b := &Bus{
		cfg:           cfg,
		profile:       "default",
		retryInterval: 250 * time.Millisecond,
		stdout:        os.Stdout,
		procOut:       os.Stdout,
		procErr:       os.Stderr,
		client:        &http.Client{},
		now:           time.Now,
		tracer:        telemetry.Tracer("github.com/arkaos/arka/eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.traceID == "" {
		b.traceID = uuid.NewString()
	}
	if b.cfg.AliasTopics == nil {
		b.cfg.AliasTopics = map[string]string{}
	}
	return b
}

// Config returns the bus configuration.
func (b *Bus) Config() Config { return b.cfg }

// TraceID is the id stamped on every event of this invocation.
func (b *Bus) TraceID() string { return b.traceID }

// Canonical maps an event name through the alias table. Names without an
// alias are their own canonical topic.
func (b *Bus) Canonical(name string) string {
	if c, ok := b.cfg.AliasTopics[name]; ok && c != "" {
		return c
	}
	return name
}

// NewEvent stamps an event with the current time, profile and trace id.
func (b *Bus) NewEvent(name, sourceBrick string, scope resource.Scope, details map[string]any) Event {
	return Event{
		Name:        name,
		TS:          b.now().UTC().Format(memory.TimeLayout),
		SourceBrick: sourceBrick,
		Profile:     b.profile,
		Scope:       scope,
		Details:     details,
		TraceID:     b.traceID,
	}
}

// Dispatch publishes ev under its canonical topic and delivers it to every
// matching subscriber. The returned event is the one actually published.
// Delivery problems are reported in the results, not as an error.
func (b *Bus) Dispatch(ctx context.Context, ev Event) (Event, []DeliveryResult, error) {
	ev.Name = b.Canonical(ev.Name)
	if ev.TS == "" {
		ev.TS = b.now().UTC().Format(memory.TimeLayout)
	}
	if ev.Profile == "" {
		ev.Profile = b.profile
	}
	if ev.TraceID == "" {
		ev.TraceID = b.traceID
	}
	if ev.Scope == nil {
		ev.Scope = resource.Scope{}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return ev, nil, fmt.Errorf("eventbus: marshal %s: %w", ev.Name, err)
	}

	if b.cfg.StdoutEnabled {
		b.mu.Lock()
		_, werr := fmt.Fprintf(b.stdout, "%s\n", payload)
		b.mu.Unlock()
		if werr != nil {
			debug.Warnf("event %s: write to event stream: %v", ev.Name, werr)
		}
	}
	telemetry.RecordEvent(ctx, ev.Name)

	var matched []Subscription
	for _, s := range b.cfg.Subscriptions {
		if s.Matches(ev.Name) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return ev, nil, nil
	}

	results := make([]DeliveryResult, len(matched))
	if b.cfg.Parallel <= 1 || len(matched) == 1 {
		for i, s := range matched {
			if err := ctx.Err(); err != nil {
				results[i] = skipped(ev.Name, s, fmt.Sprintf("dispatch cancelled: %v", err))
				continue
			}
			results[i] = b.deliver(ctx, s, ev, payload)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.Parallel)
		for i, s := range matched {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					results[i] = skipped(ev.Name, s, fmt.Sprintf("dispatch cancelled: %v", err))
					return nil
				}
				results[i] = b.deliver(gctx, s, ev, payload)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range results {
		if !r.OK() {
			debug.Warnf("event %s -> %s (%s %s) %s: %s", r.Event, r.Subscriber, r.Using, r.Target, r.Status, r.Error)
		}
	}
	return ev, results, nil
}

func (b *Bus) deliver(ctx context.Context, s Subscription, ev Event, payload []byte) (res DeliveryResult) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "arka.delivery",
		trace.WithAttributes(
			attribute.String("arka.event", ev.Name),
			attribute.String("arka.subscriber", s.Name),
			attribute.String("arka.using", s.Using),
		),
	)
	defer func() {
		res.Duration = time.Since(start)
		res.DurationMS = res.Duration.Milliseconds()
		if !res.OK() {
			span.SetStatus(codes.Error, res.Error)
		}
		span.SetAttributes(attribute.String("arka.status", string(res.Status)))
		span.End()
		telemetry.RecordDelivery(ctx, ev.Name, s.Using, string(res.Status), float64(res.Duration.Microseconds())/1000)
	}()

	switch s.Using {
	case UsingLocal:
		return b.deliverLocal(ctx, s, ev, payload)
	case UsingWebhook:
		return b.deliverWebhook(ctx, s, ev, payload)
	case UsingStdout:
		return skipped(ev.Name, s, "already written to the event stream")
	default:
		return DeliveryResult{
			Event:      ev.Name,
			Subscriber: s.Name,
			Using:      s.Using,
			Status:     StatusError,
			Error:      fmt.Sprintf("unknown transport %q", s.Using),
		}
	}
}

func skipped(event string, s Subscription, reason string) DeliveryResult {
	return DeliveryResult{Event: event, Subscriber: s.Name, Using: s.Using, Target: s.Run, Status: StatusSkipped, Error: reason}
}
