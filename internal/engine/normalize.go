package engine

import (
	"fmt"
	"strings"
)

// NormalizeInput maps legacy order fields onto their ticket equivalents.
// The input map is copied, never modified.
func NormalizeInput(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input)+2)
	for k, v := range input {
		out[k] = v
	}
	if present(out, "orderId") && !present(out, "ticketId") {
		out["ticketId"] = out["orderId"]
	}
	if present(out, "order") && !present(out, "ticket") {
		out["ticket"] = out["order"]
	}
	if present(out, "orderId") && present(out, "ticketId") && str(out, "orderId") != str(out, "ticketId") {
		return nil, inputErrorf("orderId != ticketId (conflict): %s != %s", str(out, "orderId"), str(out, "ticketId"))
	}
	return out, nil
}

func present(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}

// str renders a scalar input field; absent and null fields are "".
func str(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// firstStr returns the first non-empty field among keys.
func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m, k); s != "" {
			return s
		}
	}
	return ""
}

// firstPresent returns the first present field among keys, unconverted.
func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if present(m, k) {
			return m[k], true
		}
	}
	return nil, false
}
