package eventbus

import (
	"time"

	"github.com/arkaos/arka/internal/resource"
)

// Event is one entry of the event stream. It is built once and never
// modified after dispatch.
type Event struct {
	Name        string         `json:"event"`
	TS          string         `json:"ts"`
	SourceBrick string         `json:"source_brick"`
	Profile     string         `json:"profile"`
	Scope       resource.Scope `json:"scope"`
	Details     map[string]any `json:"details,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
}

// Status is the outcome of one subscriber delivery.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// DeliveryResult reports one subscriber delivery. Failures never abort
// dispatch; they are surfaced here and as warnings.
type DeliveryResult struct {
	Event      string        `json:"event"`
	Subscriber string        `json:"subscriber"`
	Using      string        `json:"using"`
	Target     string        `json:"target,omitempty"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// OK reports whether the delivery succeeded or was deliberately skipped.
func (r DeliveryResult) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusSkipped
}

// Failed filters out successful deliveries.
func Failed(results []DeliveryResult) []DeliveryResult {
	var out []DeliveryResult
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
