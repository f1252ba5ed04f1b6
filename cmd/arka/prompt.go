package main

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/engine"
)

// missingFields lists the scope and identifier fields of the action's
// resource type that input lacks, plus title for creations.
func missingFields(def action.Definition, input map[string]any) []string {
	t := def.Type()
	wanted := append([]string{}, t.ScopeKeys...)
	if t.IDField != "" && !contains(wanted, t.IDField) {
		wanted = append(wanted, t.IDField)
	}
	if def.Operation == action.OpCreate {
		wanted = append(wanted, "title")
	}
	var out []string
	for _, f := range wanted {
		if s, ok := input[f].(string); ok && strings.TrimSpace(s) != "" {
			continue
		}
		if v, ok := input[f]; ok && v != nil {
			if _, isStr := v.(string); !isStr {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// promptMissing asks for each missing field. Blank answers are left out of
// the input, so naming checks still see them as absent.
func promptMissing(def action.Definition, input map[string]any) error {
	fields := missingFields(def, input)
	if len(fields) == 0 {
		return nil
	}
	answers := make([]string, len(fields))
	inputs := make([]huh.Field, len(fields))
	for i, f := range fields {
		inputs[i] = huh.NewInput().
			Title(f).
			Description(def.Key).
			Value(&answers[i])
	}
	form := huh.NewForm(huh.NewGroup(inputs...)).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return &engine.InputError{Msg: "input cancelled"}
		}
		return err
	}
	for i, f := range fields {
		if a := strings.TrimSpace(answers[i]); a != "" {
			input[f] = a
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
