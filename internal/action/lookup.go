package action

import (
	"fmt"
	"sort"

	"github.com/arkaos/arka/internal/assembly"
)

// DefaultAliases are applied when the assembly declares no alias for a key.
var DefaultAliases = map[string]string{
	"ORDER_CREATE": "TICKET_CREATE",
	"ORDER_CLOSE":  "TICKET_CLOSE",
	"ORDER_UPDATE": "TICKET_UPDATE",
}

// Table is the action_keys table of one assembly.
type Table struct {
	keys    assembly.Value
	aliases map[string]string
}

// Load reads the action table. The namespace and its action_keys mapping
// must exist.
func Load(asm *assembly.Assembly) (*Table, error) {
	keys, err := asm.Resolve(Namespace + ":action_keys")
	if err != nil {
		return nil, err
	}
	if !keys.IsMapping() {
		return nil, &assembly.ConfigError{
			Reason:  assembly.ReasonWrongShape,
			Ref:     Namespace + ":action_keys",
			Segment: "action_keys",
		}
	}

	t := &Table{keys: keys, aliases: map[string]string{}}
	for k, v := range DefaultAliases {
		t.aliases[k] = v
	}
	aliases, ok, err := asm.Lookup(Namespace + ":aliases")
	if err != nil {
		return nil, err
	}
	if ok {
		for _, k := range aliases.Keys() {
			v, _ := aliases.Get(k)
			if s := v.Text(); s != "" {
				t.aliases[k] = s
			}
		}
	}
	return t, nil
}

// Find locates key directly under action_keys, then inside each group in
// document order, then through one alias hop.
func (t *Table) Find(key string) (Definition, error) {
	if d, ok, err := t.find(key); ok || err != nil {
		return d, err
	}
	if target, ok := t.aliases[key]; ok && target != key {
		d, ok, err := t.find(target)
		if err != nil {
			return d, err
		}
		if ok {
			d.Requested = key
			return d, nil
		}
	}
	return Definition{}, &assembly.ConfigError{
		Reason:  assembly.ReasonMissingPath,
		Ref:     refFor(key, ""),
		Segment: key,
		Err:     fmt.Errorf("action key not found: %s", key),
	}
}

func (t *Table) find(key string) (Definition, bool, error) {
	if v, ok := t.keys.Get(key); ok && !v.IsNull() {
		d, err := FromValue(key, v)
		return d, true, err
	}
	for _, group := range t.keys.Keys() {
		g, _ := t.keys.Get(group)
		if !g.IsMapping() || isDefinition(g) {
			continue
		}
		if v, ok := g.Get(key); ok && !v.IsNull() {
			d, err := FromValue(key, v)
			d.Group = group
			return d, true, err
		}
	}
	return Definition{}, false, nil
}

var definitionFields = []string{
	"operation", "paths", "post", "naming", "validations", "notifications",
	"inputs", "outputs", "file_type", "templates", "routes", "move", "record",
}

// isDefinition tells a definition apart from a group: definitions carry
// fields a group never has.
func isDefinition(v assembly.Value) bool {
	for _, f := range definitionFields {
		if _, ok := v.Get(f); ok {
			return true
		}
	}
	return false
}

// Alias returns the target of an alias, if one is declared.
func (t *Table) Alias(key string) (string, bool) {
	v, ok := t.aliases[key]
	return v, ok
}

// Entry is one listed action.
type Entry struct {
	Key   string
	Group string
}

// Keys lists every action key in document order, grouped keys after the
// group name they appear under.
func (t *Table) Keys() []Entry {
	var out []Entry
	for _, k := range t.keys.Keys() {
		v, _ := t.keys.Get(k)
		if v.IsMapping() && !isDefinition(v) {
			for _, inner := range v.Keys() {
				if iv, _ := v.Get(inner); iv.IsMapping() {
					out = append(out, Entry{Key: inner, Group: k})
				}
			}
			continue
		}
		out = append(out, Entry{Key: k})
	}
	return out
}

// AliasNames lists the declared alias keys, sorted.
func (t *Table) AliasNames() []string {
	out := make([]string, 0, len(t.aliases))
	for k := range t.aliases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
