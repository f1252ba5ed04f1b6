package assembly

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is an on-disk encoding of an assembly.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatForPath picks the encoding from a file extension. Anything that is
// not .json or .toml is read as YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Assembly is the merged configuration tree, addressed by namespace. It is
// read-only once loaded.
type Assembly struct {
	root   Value
	source string
}

// New wraps an already-built mapping. A non-mapping root yields an empty
// assembly.
func New(root Value) *Assembly {
	if !root.IsMapping() {
		root = Mapping()
	}
	return &Assembly{root: root}
}

// Load reads and parses the assembly file at path.
func Load(path string) (*Assembly, error) {
	// #nosec G304 - path comes from the operator's own configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{Reason: ReasonLoad, Ref: path, Err: fmt.Errorf("assembly file not found: %s", path)}
		}
		return nil, &ConfigError{Reason: ReasonLoad, Ref: path, Err: err}
	}
	asm, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, &ConfigError{Reason: ReasonLoad, Ref: path, Err: err}
	}
	asm.source = path
	return asm, nil
}

// Parse decodes an assembly document in the given format.
func Parse(data []byte, format Format) (*Assembly, error) {
	var (
		root Value
		err  error
	)
	switch format {
	case FormatJSON:
		root, err = parseJSON(data)
	case FormatTOML:
		root, err = parseTOML(data)
	default:
		root, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s assembly: %w", format, err)
	}
	if root.IsNull() {
		root = Mapping()
	}
	if !root.IsMapping() {
		return nil, fmt.Errorf("invalid %s assembly: top level must be a mapping, got %s", format, root.Kind())
	}
	return &Assembly{root: root}, nil
}

// Source is the file the assembly was loaded from, if any.
func (a *Assembly) Source() string { return a.source }

// Root returns the whole tree.
func (a *Assembly) Root() Value { return a.root }

// Namespaces lists the top-level namespaces in document order.
func (a *Assembly) Namespaces() []string { return a.root.Keys() }

// Namespace returns the tree under name. Null or absent namespaces count as
// disabled.
func (a *Assembly) Namespace(name string) (Value, bool) {
	v, ok := a.root.Get(name)
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

func parseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, err
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromNode(&doc)
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Sequence(items...), nil
	case yaml.MappingNode:
		out := Mapping()
		var merges []Value
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			val, err := fromNode(vn)
			if err != nil {
				return Value{}, err
			}
			if k.Tag == "!!merge" {
				merges = append(merges, val)
				continue
			}
			out.Set(k.Value, val)
		}
		// Merge keys never override explicit keys.
		for _, m := range merges {
			sources := []Value{m}
			if m.Kind() == KindSequence {
				sources = m.Items()
			}
			for _, src := range sources {
				for _, key := range src.Keys() {
					if _, exists := out.Get(key); !exists {
						val, _ := src.Get(key)
						out.Set(key, val)
					}
				}
			}
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return Null(), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return Value{}, err
			}
			return Bool(b), nil
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return Value{}, err
			}
			return Number(f), nil
		default:
			return String(n.Value), nil
		}
	}
	return Value{}, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

func parseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Null(), nil
		}
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("trailing data after top-level value")
	}
	return v, nil
}

// decodeJSON walks the token stream so object key order survives.
func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := Mapping()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T", kt)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				out.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		case '[':
			var items []Value
			for dec.More() {
				val, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Sequence(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	default:
		return FromInterface(t)
	}
}

func parseTOML(data []byte) (Value, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Value{}, err
	}
	return FromInterface(raw)
}
