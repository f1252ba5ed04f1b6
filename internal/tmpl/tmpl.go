// Package tmpl expands the two placeholder syntaxes used by path and content
// templates.
//
//	${expr}            dotted-path lookup
//	${expr:-fallback}  same, with a literal fallback
//	{identifier}       path-template key, matched across naming conventions
//
// Lookups try each data layer in order, then the process environment, then
// the fallback. Anything unresolved expands to "".
package tmpl

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/arkaos/arka/internal/assembly"
)

var (
	exprRe = regexp.MustCompile(`\$\{([^}]*)\}`)
	keyRe  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)
	pathRe = regexp.MustCompile(`\$\{[^}]*\}|\{[A-Za-z_][A-Za-z0-9_.]*\}`)
)

// Expander holds the environment lookup. The zero value reads os.LookupEnv.
type Expander struct {
	LookupEnv func(string) (string, bool)
}

var std Expander

// Expand replaces ${expr[:-fallback]} placeholders using std.
func Expand(s string, layers ...any) string { return std.Expand(s, layers...) }

// ExpandKeys replaces {identifier} placeholders using std.
func ExpandKeys(s string, layers ...any) string { return std.ExpandKeys(s, layers...) }

// ExpandPath expands both syntaxes in one pass using std.
func ExpandPath(s string, layers ...any) string { return std.ExpandPath(s, layers...) }

// Expand replaces ${expr[:-fallback]} placeholders.
func (e Expander) Expand(s string, layers ...any) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return exprRe.ReplaceAllStringFunc(s, func(m string) string { return e.expr(m, layers) })
}

// ExpandKeys replaces {identifier} placeholders. Each key is tried as
// written, camelCase, camelCase+"Id", snake_case and snake_case+"_id".
func (e Expander) ExpandKeys(s string, layers ...any) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return keyRe.ReplaceAllStringFunc(s, func(m string) string { return key(m, layers) })
}

// ExpandPath expands both syntaxes in one pass over s. Substituted values
// are never expanded again.
func (e Expander) ExpandPath(s string, layers ...any) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return pathRe.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, "${") {
			return e.expr(m, layers)
		}
		return key(m, layers)
	})
}

// expr resolves one ${...} match.
func (e Expander) expr(m string, layers []any) string {
	body := m[2 : len(m)-1]
	expr, fallback, hasFallback := strings.Cut(body, ":-")
	expr = strings.TrimSpace(expr)
	if expr != "" {
		for _, layer := range layers {
			if v, ok := Lookup(layer, expr); ok {
				return Stringify(v)
			}
		}
		if v, ok := e.env(expr); ok {
			return v
		}
	}
	if hasFallback {
		return fallback
	}
	return ""
}

// key resolves one {identifier} match.
func key(m string, layers []any) string {
	name := m[1 : len(m)-1]
	for _, variant := range Variants(name) {
		for _, layer := range layers {
			if v, ok := Lookup(layer, variant); ok {
				return Stringify(v)
			}
		}
	}
	return ""
}

func (e Expander) env(name string) (string, bool) {
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Variants lists the names a {key} placeholder may match, in order and
// without duplicates.
func Variants(key string) []string {
	camel := CamelCase(key)
	snake := SnakeCase(key)
	candidates := []string{key, camel, camel + "Id", snake, snake + "_id"}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// CamelCase converts snake_case or kebab-case to camelCase. Existing
// camelCase is left alone.
func CamelCase(s string) string {
	var b strings.Builder
	upper := false
	for i, r := range s {
		if r == '_' || r == '-' {
			upper = i > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SnakeCase converts camelCase or kebab-case to snake_case.
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' && !unicode.IsUpper(runes[i-1]) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup resolves a dotted path inside one data layer. Supported layers are
// map[string]any, map[string]string, []any and assembly.Value. Null values
// count as absent.
func Lookup(layer any, path string) (any, bool) {
	cur := layer
	for _, seg := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := t[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			cur = t[i]
		case assembly.Value:
			v, ok := assembly.Path(t, seg)
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	if v, ok := cur.(assembly.Value); ok && v.IsNull() {
		return nil, false
	}
	return cur, true
}

// Stringify renders a looked-up value for substitution. Containers render
// as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case assembly.Value:
		switch t.Kind() {
		case assembly.KindSequence, assembly.KindMapping:
			b, err := json.Marshal(t)
			if err != nil {
				return ""
			}
			return string(b)
		}
		return t.Text()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
