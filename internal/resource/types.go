// Package resource maps action keys to resource types and computes the
// scope and filesystem location an action operates on.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind says whether a type's identifier names a directory or a file.
type Kind int

const (
	KindNone Kind = iota
	KindContainer
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindLeaf:
		return "leaf"
	}
	return "none"
}

// Type describes one resource type.
type Type struct {
	Name      string
	IDField   string
	ScopeKeys []string
	Kind      Kind
}

// Generic is the fallback for unknown action-key prefixes.
var Generic = Type{Name: "generic"}

var types = map[string]Type{
	"feature":  {Name: "feature", IDField: "featureId", ScopeKeys: []string{"featureId"}, Kind: KindContainer},
	"epic":     {Name: "epic", IDField: "epicId", ScopeKeys: []string{"featureId", "epicId"}, Kind: KindContainer},
	"us":       {Name: "us", IDField: "usId", ScopeKeys: []string{"featureId", "epicId", "usId"}, Kind: KindContainer},
	"ticket":   {Name: "ticket", IDField: "ticketId", ScopeKeys: []string{"featureId", "epicId", "usId", "ticketId"}, Kind: KindContainer},
	"order":    {Name: "order", IDField: "orderId", ScopeKeys: []string{"featureId", "epicId", "usId", "orderId"}, Kind: KindLeaf},
	"document": {Name: "document", IDField: "documentId", ScopeKeys: []string{"featureId", "epicId", "documentId"}, Kind: KindLeaf},
	"report":   {Name: "report", IDField: "reportId", ScopeKeys: []string{"featureId", "reportId"}, Kind: KindLeaf},
	"analysis": {Name: "analysis", IDField: "analysisId", ScopeKeys: []string{"featureId", "analysisId"}, Kind: KindLeaf},
	"plan":     {Name: "plan", IDField: "planId", ScopeKeys: []string{"featureId", "planId"}, Kind: KindLeaf},
	"contract": {Name: "contract", IDField: "contractId", ScopeKeys: []string{"featureId", "contractId"}, Kind: KindLeaf},
	"decision": {Name: "decision", IDField: "decisionId", ScopeKeys: []string{"decisionId"}, Kind: KindLeaf},
	"gate":     {Name: "gate", IDField: "gateId", ScopeKeys: []string{"gateId"}, Kind: KindLeaf},
}

// Lookup returns the named type, or Generic.
func Lookup(name string) Type {
	if t, ok := types[strings.ToLower(name)]; ok {
		return t
	}
	return Generic
}

// ForActionKey derives the type from the leading token of an action key:
// "US_CREATE" is "us", "DOCUMENT_READ" is "document".
func ForActionKey(key string) Type {
	head, _, _ := strings.Cut(key, "_")
	return Lookup(head)
}

// Names lists every known type except generic.
func Names() []string {
	return []string{"feature", "epic", "us", "ticket", "order", "document", "report", "analysis", "plan", "contract", "decision", "gate"}
}

// IsGeneric reports whether t carries no identifier semantics.
func (t Type) IsGeneric() bool { return t.IDField == "" }

// ID returns the identifier for t from input, if present and non-empty.
func (t Type) ID(input map[string]any) (string, bool) {
	if t.IDField == "" {
		return "", false
	}
	return stringField(input, t.IDField)
}

func stringField(input map[string]any, key string) (string, bool) {
	v, ok := input[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		s = string(b)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// Field is one scope entry.
type Field struct {
	Key   string
	Value string
}

// Scope is the ordered set of identifiers correlating an action's audit
// record and events. Absent fields are omitted.
type Scope []Field

// BuildScope collects t's scope keys from input in declared order.
func BuildScope(t Type, input map[string]any) Scope {
	scope := Scope{}
	for _, k := range t.ScopeKeys {
		if v, ok := stringField(input, k); ok {
			scope = append(scope, Field{Key: k, Value: v})
		}
	}
	return scope
}

// Get returns the value for key.
func (s Scope) Get(key string) (string, bool) {
	for _, f := range s {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the scope as a plain map.
func (s Scope) Map() map[string]string {
	out := make(map[string]string, len(s))
	for _, f := range s {
		out[f.Key] = f.Value
	}
	return out
}

// MarshalJSON writes keys in scope order, so equal scopes serialize
// identically.
func (s Scope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a scope object. Key order follows the document.
func (s *Scope) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("scope must be a JSON object, got %v", tok)
	}
	out := Scope{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		key, _ := kt.(string)
		if str, ok := v.(string); ok {
			out = append(out, Field{Key: key, Value: str})
		}
	}
	*s = out
	return nil
}

// Key is the JSON serialization used as the audit index key.
func (s Scope) Key() string {
	b, _ := s.MarshalJSON()
	return string(b)
}
