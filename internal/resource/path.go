package resource

import (
	"path/filepath"
	"strings"

	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/tmpl"
)

// PathSpec is the part of an action definition that shapes its location.
type PathSpec struct {
	Ref           string // "NS:dotted.path" of the directory template
	FileType      string // "json" selects .json for leaf types
	Extension     string // explicit leaf extension, dot optional
	DirIsResolved bool   // template already names the target directory
}

// Location is where an action operates. Both paths are empty when the
// action declares no path reference.
type Location struct {
	BasePath     string
	ResolvedPath string
	Dir          bool
}

// Empty reports whether the action has no filesystem target.
func (l Location) Empty() bool { return l.BasePath == "" && l.ResolvedPath == "" }

// Display renders the resolved path, with a trailing slash for directories.
func (l Location) Display() string {
	if l.ResolvedPath == "" {
		return ""
	}
	if l.Dir {
		return filepath.ToSlash(l.ResolvedPath) + "/"
	}
	return filepath.ToSlash(l.ResolvedPath)
}

// PathVars derives the secondary template context from input. Missing
// parts expand to "" like any other unresolved placeholder.
func PathVars(input map[string]any) map[string]any {
	str := func(k string) string {
		s, _ := stringField(input, k)
		return s
	}
	vars := map[string]any{}
	for _, k := range []string{"featureId", "epicId", "usId", "ticketId", "orderId"} {
		if s := str(k); s != "" {
			vars[k] = s
		}
	}
	title := str("kebab_title")
	if title == "" {
		title = Kebab(str("title"))
	}
	if f := str("featureId"); f != "" {
		if title != "" {
			vars["kebab_feature"] = f + "-" + title
		} else {
			vars["kebab_feature"] = f
		}
	}
	if title != "" {
		vars["kebab_title"] = title
		vars["kebab_epic"] = title
		vars["kebab_us"] = title
	}
	return vars
}

// Kebab lower-cases s and joins its alphanumeric runs with '-'.
func Kebab(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// ExpandTemplate expands a path template against input then path vars and
// cleans the result.
func ExpandTemplate(template string, input map[string]any) string {
	out := tmpl.ExpandPath(template, input, PathVars(input))
	if out == "" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(out))
}

// ResolvePath computes the location of an action. The path reference is
// resolved strictly; placeholder gaps are not errors.
func ResolvePath(asm *assembly.Assembly, spec PathSpec, t Type, input map[string]any) (Location, error) {
	if spec.Ref == "" {
		return Location{}, nil
	}
	template, err := asm.ResolveString(spec.Ref)
	if err != nil {
		return Location{}, err
	}
	base := ExpandTemplate(template, input)
	loc := Location{BasePath: base}
	if spec.DirIsResolved {
		loc.ResolvedPath = base
		loc.Dir = true
		return loc, nil
	}
	id, ok := t.ID(input)
	if !ok {
		return loc, nil
	}
	switch t.Kind {
	case KindContainer:
		loc.ResolvedPath = filepath.Join(base, id)
		loc.Dir = true
	case KindLeaf:
		loc.ResolvedPath = filepath.Join(base, id+LeafExtension(spec))
	}
	return loc, nil
}

// LeafExtension picks the file extension for a leaf resource.
func LeafExtension(spec PathSpec) string {
	if strings.EqualFold(spec.FileType, "json") {
		return ".json"
	}
	if ext := strings.TrimSpace(spec.Extension); ext != "" {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	}
	return ".md"
}
