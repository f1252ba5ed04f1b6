package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/debug"
)

// Well-known references used when an action does not declare its own.
const (
	pathsNamespace = "ARKORE08-PATHS-GOVERNANCE"
	usDirRef       = pathsNamespace + ":path_templates.us_dir"
	ticketDirRef   = pathsNamespace + ":path_templates.ticket_dir"
	featureRootRef = pathsNamespace + ":roots.features"

	templatesNamespace = "ARKORE13-TEMPLATES"
	usReadmeRef        = templatesNamespace + ":us.readme"
	acceptanceRef      = "ARKORE05-EXECUTION-SPECS:acceptance"

	controlNamespace = "ARKORE15-AGP-REACTIVE-CONTROL"
)

// Registry maps exact action keys to custom handlers. It is consulted
// before generic dispatch.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds h under key. Registering a key twice is a programming
// error and panics.
func (r *Registry) Register(key string, h Handler) {
	if _, dup := r.handlers[key]; dup {
		panic(fmt.Sprintf("engine: custom handler for %s registered twice", key))
	}
	r.handlers[key] = h
}

// Lookup returns the handler registered for key.
func (r *Registry) Lookup(key string) (Handler, bool) {
	h, ok := r.handlers[key]
	return h, ok
}

// Keys lists registered action keys, sorted.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry holds the built-in custom handlers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("US_CREATE", usCreate)
	r.Register("TICKET_CREATE", ticketCreate)
	r.Register("TICKET_CLOSE", ticketClose)
	r.Register("CHANGE_REQUEST_CREATE", recordCreate(changeRequests))
	r.Register("CHANGE_REQUEST_READ", recordRead(changeRequests))
	r.Register("REVIEW_CREATE", recordCreate(reviews))
	r.Register("REVIEW_READ", recordRead(reviews))
	r.Register("DELIVERY_SUBMIT", deliverySubmit)
	return r
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// requireRef fails with a configuration error when a handler needs a
// reference the definition does not declare.
func requireRef(key, field, ref string) error {
	if ref != "" {
		return nil
	}
	return &assembly.ConfigError{
		Reason:  assembly.ReasonMissingPath,
		Ref:     "ARKORE12-ACTION-KEYS:action_keys." + key + "." + field,
		Segment: field,
		Err:     fmt.Errorf("action %s must declare %s", key, field),
	}
}

// lenientLookup resolves content-only references: a missing path, a null
// value and a disabled namespace all read as absent.
func (ac *ActionContext) lenientLookup(ref string) (assembly.Value, bool, error) {
	v, ok, err := ac.Lookup(ref)
	var ce *assembly.ConfigError
	if err != nil && errors.As(err, &ce) && ce.Reason == assembly.ReasonMissingNamespace {
		debug.Logf("%s: %s unavailable (%v)", ac.Key, ref, err)
		ac.noteRef(ref)
		return assembly.Value{}, false, nil
	}
	return v, ok, err
}

// requireID returns the named identifier or an input error.
func requireID(ac *ActionContext, field string) (string, error) {
	id := str(ac.Input, field)
	if id == "" {
		return "", inputErrorf("%s requires %s", ac.Key, field)
	}
	return id, nil
}
