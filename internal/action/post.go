package action

import (
	"regexp"
	"strings"
)

const (
	// MemoryNamespace owns the MEMORY_UPDATE operation.
	MemoryNamespace = "ARKORE14-MEMORY-OPS"
	// EventBusNamespace is the prefix of emit instructions.
	EventBusNamespace = "ARKORE16-EVENT-BUS"
)

// StepKind classifies a post instruction.
type StepKind int

const (
	StepOther StepKind = iota
	StepMemory
	StepEmit
)

func (k StepKind) String() string {
	switch k {
	case StepMemory:
		return "memory"
	case StepEmit:
		return "emit"
	}
	return "other"
}

// Step is one parsed post instruction.
type Step struct {
	Raw   string
	Kind  StepKind
	Topic string // emit steps only, placeholders substituted
}

var emitForms = []*regexp.Regexp{
	regexp.MustCompile(`^` + regexp.QuoteMeta(EventBusNamespace) + `:emit\.([A-Za-z0-9_{}]+)$`),
	regexp.MustCompile(`^emit:\s*([A-Za-z0-9_{}]+)$`),
	regexp.MustCompile(`^emit\(\s*([A-Za-z0-9_{}]+)\s*\)$`),
}

// ParseStep classifies raw and, for emit steps, fills in the topic with the
// resource type ({TYPE}, {type}) and action key ({ACTION}).
func ParseStep(raw, resourceType, actionKey string) Step {
	s := strings.TrimSpace(raw)
	step := Step{Raw: raw}
	if strings.Contains(s, MemoryNamespace) && strings.Contains(s, "MEMORY_UPDATE") && !strings.Contains(s, "MEMORY_UPDATED") {
		step.Kind = StepMemory
		return step
	}
	for _, re := range emitForms {
		if m := re.FindStringSubmatch(s); m != nil {
			step.Kind = StepEmit
			step.Topic = strings.NewReplacer(
				"{TYPE}", strings.ToUpper(resourceType),
				"{type}", strings.ToLower(resourceType),
				"{ACTION}", actionKey,
			).Replace(m[1])
			return step
		}
	}
	return step
}

// Steps parses every post instruction of d in order.
func (d Definition) Steps() []Step {
	t := d.Type().Name
	out := make([]Step, 0, len(d.Post))
	for _, p := range d.Post {
		out = append(out, ParseStep(p, t, d.Key))
	}
	return out
}

// WantsMemory reports whether any post instruction requests a memory update.
func (d Definition) WantsMemory() bool {
	for _, s := range d.Steps() {
		if s.Kind == StepMemory {
			return true
		}
	}
	return false
}
