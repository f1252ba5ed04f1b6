package assembly

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reason classifies a ConfigError.
type Reason string

const (
	ReasonLoad             Reason = "load"
	ReasonInvalidRef       Reason = "invalid_ref"
	ReasonMissingNamespace Reason = "missing_namespace"
	ReasonMissingPath      Reason = "missing_path"
	ReasonWrongShape       Reason = "wrong_shape"
)

// ConfigError reports a wiring problem in the assembly. It is always fatal
// for the invocation.
type ConfigError struct {
	Reason  Reason
	Ref     string
	Segment string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	switch e.Reason {
	case ReasonInvalidRef:
		return fmt.Sprintf("invalid ref: %q", e.Ref)
	case ReasonMissingNamespace:
		return fmt.Sprintf("brick not enabled or missing in assembly: %s", e.Segment)
	case ReasonMissingPath:
		return fmt.Sprintf("path not found: %s (missing %q)", e.Ref, e.Segment)
	case ReasonWrongShape:
		return fmt.Sprintf("path not traversable: %s (cannot descend into %q)", e.Ref, e.Segment)
	}
	return fmt.Sprintf("configuration error: %s", e.Ref)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// SplitRef splits "NS:dotted.path" at the first colon.
func SplitRef(ref string) (namespace, path string, err error) {
	ns, p, ok := strings.Cut(ref, ":")
	if !ok || ns == "" {
		return "", "", &ConfigError{Reason: ReasonInvalidRef, Ref: ref}
	}
	return ns, p, nil
}

// IsRef reports whether s looks like a namespaced reference.
func IsRef(s string) bool {
	ns, _, ok := strings.Cut(s, ":")
	return ok && ns != "" && !strings.ContainsAny(ns, " /\\") && !strings.Contains(s, "://")
}

// Resolve looks up ref strictly: a malformed ref, an absent namespace and an
// absent path segment are all errors. A null leaf counts as absent.
func (a *Assembly) Resolve(ref string) (Value, error) {
	ns, p, err := SplitRef(ref)
	if err != nil {
		return Value{}, err
	}
	bucket, ok := a.Namespace(ns)
	if !ok {
		return Value{}, &ConfigError{Reason: ReasonMissingNamespace, Ref: ref, Segment: ns}
	}
	v, err := walk(bucket, ref, p)
	if err != nil {
		return Value{}, err
	}
	if v.IsNull() {
		return Value{}, &ConfigError{Reason: ReasonMissingPath, Ref: ref, Segment: lastSegment(p)}
	}
	return v, nil
}

// ResolveString resolves ref and requires a scalar; the result is its text.
func (a *Assembly) ResolveString(ref string) (string, error) {
	v, err := a.Resolve(ref)
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case KindSequence, KindMapping:
		return "", &ConfigError{Reason: ReasonWrongShape, Ref: ref, Segment: lastSegment(ref)}
	}
	return v.Text(), nil
}

// Lookup is the lenient form of Resolve: a missing path or null value gives
// ok=false. Malformed refs and absent namespaces are still errors.
func (a *Assembly) Lookup(ref string) (Value, bool, error) {
	v, err := a.Resolve(ref)
	if err == nil {
		return v, true, nil
	}
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Reason == ReasonMissingPath {
		return Value{}, false, nil
	}
	return Value{}, false, err
}

// walk follows a dotted path. Numeric segments index into sequences.
func walk(v Value, ref, path string) (Value, error) {
	if path == "" {
		return v, nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch cur.Kind() {
		case KindMapping:
			next, ok := cur.Get(seg)
			if !ok {
				return Value{}, &ConfigError{Reason: ReasonMissingPath, Ref: ref, Segment: seg}
			}
			cur = next
		case KindSequence:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return Value{}, &ConfigError{Reason: ReasonWrongShape, Ref: ref, Segment: seg}
			}
			items := cur.Items()
			if i < 0 || i >= len(items) {
				return Value{}, &ConfigError{Reason: ReasonMissingPath, Ref: ref, Segment: seg}
			}
			cur = items[i]
		case KindNull:
			return Value{}, &ConfigError{Reason: ReasonMissingPath, Ref: ref, Segment: seg}
		default:
			return Value{}, &ConfigError{Reason: ReasonWrongShape, Ref: ref, Segment: seg}
		}
	}
	return cur, nil
}

// Path follows a dotted path inside v. Absent segments and shape mismatches
// both yield ok=false.
func Path(v Value, path string) (Value, bool) {
	out, err := walk(v, "", path)
	if err != nil || out.IsNull() {
		return Value{}, false
	}
	return out, true
}

func lastSegment(p string) string {
	if i := strings.LastIndexAny(p, ".:"); i >= 0 {
		return p[i+1:]
	}
	return p
}
