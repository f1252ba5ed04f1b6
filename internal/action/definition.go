// Package action is the typed view over action definitions in the assembly:
// lookup by key (direct, grouped, aliased), the operation kinds, and the
// post-step instructions attached to each definition.
package action

import (
	"fmt"
	"strings"

	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/resource"
)

// Namespace holds the action_keys table and its aliases.
const Namespace = "ARKORE12-ACTION-KEYS"

// Operation is one of the nine generic operation kinds.
type Operation string

const (
	OpCreate  Operation = "CREATE"
	OpRead    Operation = "READ"
	OpUpdate  Operation = "UPDATE"
	OpDelete  Operation = "DELETE"
	OpMove    Operation = "MOVE"
	OpRename  Operation = "RENAME"
	OpArchive Operation = "ARCHIVE"
	OpStatus  Operation = "STATUS"
	OpPublish Operation = "PUBLISH"
)

// Operations lists every generic operation in canonical order.
var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpMove, OpRename, OpArchive, OpStatus, OpPublish}

// ParseOperation accepts an operation name in any case.
func ParseOperation(s string) (Operation, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, op := range Operations {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// InferOperation derives the operation from the trailing token of an action
// key (FEATURE_CREATE -> CREATE).
func InferOperation(key string) (Operation, bool) {
	i := strings.LastIndex(key, "_")
	if i < 0 {
		return "", false
	}
	return ParseOperation(key[i+1:])
}

// Paths are the path references a definition may declare.
type Paths struct {
	DirRef         string
	DestinationRef string
	UsDirRef       string
	TicketDirRef   string
	RootRef        string
	DirIsResolved  bool
}

// Definition is one entry of the action_keys table.
type Definition struct {
	// Key is the key the definition was found under; Requested is what the
	// caller asked for (they differ when an alias applied).
	Key       string
	Requested string
	Group     string

	Operation Operation
	Paths     Paths

	NamingRegexRef string
	ReadmeRef      string
	AcceptanceRef  string
	FileType       string
	Extension      string

	Validations   []string
	Notifications []string
	Post          []string
	Keep          []string
	HasKeep       bool

	// Routes maps route names (without the _ref suffix) to references, in
	// declaration order via RouteNames.
	Routes     map[string]string
	RouteNames []string

	RecordType      string
	RecordDir       string
	RecordValidator bool

	Raw assembly.Value
}

// Type is the resource type the key's leading token selects.
func (d Definition) Type() resource.Type {
	return resource.ForActionKey(d.Key)
}

// PathSpec is the slice of the definition the path resolver needs.
func (d Definition) PathSpec() resource.PathSpec {
	return resource.PathSpec{
		Ref:           d.Paths.DirRef,
		FileType:      d.FileType,
		Extension:     d.Extension,
		DirIsResolved: d.Paths.DirIsResolved,
	}
}

// Aliased reports whether the definition was reached through an alias.
func (d Definition) Aliased() bool { return d.Requested != "" && d.Requested != d.Key }

// FromValue builds a definition from its assembly node. Only shape problems
// in present fields are errors.
func FromValue(key string, v assembly.Value) (Definition, error) {
	d := Definition{Key: key, Requested: key, Raw: v, Routes: map[string]string{}}
	if !v.IsMapping() {
		return d, shapeError(key, "", "a mapping", v)
	}

	if op, ok := v.Get("operation"); ok && !op.IsNull() {
		parsed, ok := ParseOperation(op.Text())
		if !ok {
			return d, &assembly.ConfigError{
				Reason:  assembly.ReasonWrongShape,
				Ref:     refFor(key, "operation"),
				Segment: "operation",
				Err:     fmt.Errorf("action %s: unknown operation %q", key, op.Text()),
			}
		}
		d.Operation = parsed
	} else if inferred, ok := InferOperation(key); ok {
		d.Operation = inferred
	}

	str := func(path string) string {
		if s, ok := assembly.Path(v, path); ok {
			return s.Text()
		}
		return ""
	}
	d.Paths = Paths{
		DirRef:         str("paths.dir_ref"),
		DestinationRef: str("paths.destination_ref"),
		UsDirRef:       str("paths.us_dir_ref"),
		TicketDirRef:   str("paths.ticket_dir_ref"),
		RootRef:        str("paths.root_ref"),
	}
	if b, ok := assembly.Path(v, "paths.dir_is_resolved"); ok {
		d.Paths.DirIsResolved, _ = b.AsBool()
	}
	d.NamingRegexRef = str("naming.regex_ref")
	d.ReadmeRef = str("templates.readme_ref")
	d.AcceptanceRef = str("link_specs.acceptance_criteria_ref")
	d.FileType = str("file_type")
	d.Extension = str("extension")
	d.RecordType = str("record.type")
	d.RecordDir = str("record.dir")
	if b, ok := assembly.Path(v, "status.record_validator"); ok {
		d.RecordValidator, _ = b.AsBool()
	}

	lists := []struct {
		field string
		dst   *[]string
	}{
		{"validations", &d.Validations},
		{"notifications", &d.Notifications},
		{"post", &d.Post},
		{"move.keep", &d.Keep},
	}
	for _, l := range lists {
		item, ok := assembly.Path(v, l.field)
		if !ok {
			continue
		}
		if item.Kind() != assembly.KindSequence && item.Kind() != assembly.KindString {
			return d, shapeError(key, l.field, "a list", item)
		}
		*l.dst = item.Strings()
	}
	_, d.HasKeep = assembly.Path(v, "move.keep")

	if routes, ok := v.Get("routes"); ok && !routes.IsNull() {
		if !routes.IsMapping() {
			return d, shapeError(key, "routes", "a mapping", routes)
		}
		for _, name := range routes.Keys() {
			r, _ := routes.Get(name)
			short := strings.TrimSuffix(name, "_ref")
			d.Routes[short] = r.Text()
			d.RouteNames = append(d.RouteNames, short)
		}
	}
	return d, nil
}

func refFor(key, field string) string {
	ref := Namespace + ":action_keys." + key
	if field != "" {
		ref += "." + field
	}
	return ref
}

func shapeError(key, field, want string, got assembly.Value) error {
	name := key
	if field != "" {
		name += "." + field
	}
	return &assembly.ConfigError{
		Reason:  assembly.ReasonWrongShape,
		Ref:     refFor(key, field),
		Segment: field,
		Err:     fmt.Errorf("action %s must be %s, got %s", name, want, got.Kind()),
	}
}
