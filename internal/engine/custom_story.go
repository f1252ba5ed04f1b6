package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/globre"
	"github.com/arkaos/arka/internal/resource"
	"github.com/arkaos/arka/internal/tmpl"
)

// DefaultKeep is what ticket closure promotes to evidence when the action
// declares no keep-list.
var DefaultKeep = []string{"*_SUMMARY.md", "*_TESTS.md", "*_PERF.md", "approvals.json"}

// expandDir resolves a directory template reference and expands it against
// the action input.
func (ac *ActionContext) expandDir(ref string) (string, error) {
	template, err := ac.ResolveString(ref)
	if err != nil {
		return "", err
	}
	dir := resource.ExpandTemplate(template, ac.Input)
	if dir == "" || dir == "." {
		return "", &assembly.ConfigError{
			Reason: assembly.ReasonWrongShape,
			Ref:    ref,
			Err:    fmt.Errorf("%s expands to an empty path", ref),
		}
	}
	return dir, nil
}

func usCreate(ctx context.Context, ac *ActionContext) (*Result, error) {
	usID, err := requireID(ac, "usId")
	if err != nil {
		return nil, err
	}
	usDir, err := ac.expandDir(orDefault(ac.Def.Paths.DirRef, usDirRef))
	if err != nil {
		return nil, err
	}
	if err := requireRef(ac.Key, "naming.regex_ref", ac.Def.NamingRegexRef); err != nil {
		return nil, err
	}
	check, err := ac.ValidateID(ac.Def.NamingRegexRef, "regex.user_story", usID)
	if err != nil {
		return nil, err
	}
	readme, readmeRef, applied, err := renderReadme(ac, usID)
	if err != nil {
		return nil, err
	}

	for _, d := range []string{usDir, filepath.Join(usDir, "evidence"), filepath.Join(usDir, "tickets")} {
		if err := os.MkdirAll(ac.Abs(d), 0o755); err != nil {
			return nil, err
		}
	}
	readmePath := filepath.Join(usDir, "README.md")
	wrote, err := writeFileIfAbsent(ac.Abs(readmePath), []byte(readme))
	if err != nil {
		return nil, err
	}
	ac.Location = resource.Location{BasePath: filepath.Dir(usDir), ResolvedPath: usDir, Dir: true}

	// Template events describe the README on disk; an existing README is
	// left alone and reports neither.
	if wrote {
		if applied {
			_, err = ac.Emit(ctx, "TEMPLATE_APPLIED", templatesNamespace, map[string]any{"ref": readmeRef, "path": filepath.ToSlash(readmePath)})
		} else {
			_, err = ac.Emit(ctx, "TEMPLATE_MISSING", templatesNamespace, map[string]any{"ref": readmeRef})
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := ac.Emit(ctx, "US_CREATED", action.Namespace, map[string]any{"title": str(ac.Input, "title")}); err != nil {
		return nil, err
	}

	outputs := map[string]any{
		"created": map[string]any{
			"dir":   filepath.ToSlash(usDir),
			"files": []string{filepath.ToSlash(readmePath)},
		},
		"readme_written":   wrote,
		"template_applied": applied && wrote,
	}
	return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: []string{check}, Memory: true})
}

// renderReadme expands the user-story README template. A missing or empty
// template yields a stub and applied=false.
func renderReadme(ac *ActionContext, usID string) (content, ref string, applied bool, err error) {
	ref = orDefault(ac.Def.ReadmeRef, usReadmeRef)
	raw, ok, err := ac.lenientLookup(ref)
	if err != nil {
		return "", ref, false, err
	}
	template := ""
	if ok {
		template = readTemplateValue(ac, raw)
	}

	accRef := orDefault(ac.Def.AcceptanceRef, acceptanceRef)
	acc, _, err := ac.lenientLookup(accRef)
	if err != nil {
		return "", ref, false, err
	}

	if strings.TrimSpace(template) == "" {
		title := str(ac.Input, "title")
		stub := fmt.Sprintf("# %s — %s\n\n> Template missing (%s).\n- Acceptance criteria: see %s.\n", usID, title, ref, accRef)
		return stub, ref, false, nil
	}
	data := map[string]any{"acceptance": acc.Interface()}
	return tmpl.Expand(template, ac.Input, data, resource.PathVars(ac.Input)), ref, true, nil
}

// readTemplateValue returns an inline template, or the contents of a
// file:// template. Unreadable files count as missing.
func readTemplateValue(ac *ActionContext, v assembly.Value) string {
	s, ok := v.Str()
	if !ok {
		return ""
	}
	if !strings.HasPrefix(s, "file://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		debug.Warnf("%s: bad template URL %q: %v", ac.Key, s, err)
		return ""
	}
	p := filepath.FromSlash(u.Path)
	if u.Host != "" && u.Host != "localhost" {
		p = filepath.Join(u.Host, p)
	}
	data, err := os.ReadFile(ac.Abs(p)) // #nosec G304 -- template path comes from the assembly
	if err != nil {
		debug.Warnf("%s: template %s unreadable: %v", ac.Key, s, err)
		return ""
	}
	return string(data)
}

func ticketCreate(ctx context.Context, ac *ActionContext) (*Result, error) {
	ticketID, err := requireID(ac, "ticketId")
	if err != nil {
		return nil, err
	}
	ticketDir, err := ac.expandDir(orDefault(ac.Def.Paths.DirRef, ticketDirRef))
	if err != nil {
		return nil, err
	}
	if err := requireRef(ac.Key, "naming.regex_ref", ac.Def.NamingRegexRef); err != nil {
		return nil, err
	}
	check, err := ac.ValidateID(ac.Def.NamingRegexRef, "regex.ticket", ticketID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(ac.Abs(ticketDir), 0o755); err != nil {
		return nil, err
	}
	title := orDefault(str(ac.Input, "title"), "Ticket")
	heading := fmt.Sprintf("# %s — %s\n", ticketID, title)
	files := []string{filepath.Join(ticketDir, "WORK.md"), filepath.Join(ticketDir, ".todo.md")}
	var seeded []string
	for _, f := range files {
		wrote, err := writeFileIfAbsent(ac.Abs(f), []byte(heading))
		if err != nil {
			return nil, err
		}
		if wrote {
			seeded = append(seeded, filepath.ToSlash(f))
		}
	}
	ac.Location = resource.Location{BasePath: filepath.Dir(ticketDir), ResolvedPath: ticketDir, Dir: true}

	if _, err := ac.Emit(ctx, "TICKET_CREATED", action.Namespace, map[string]any{"title": str(ac.Input, "title")}); err != nil {
		return nil, err
	}
	outputs := map[string]any{
		"created": map[string]any{
			"dir":   filepath.ToSlash(ticketDir),
			"files": []string{filepath.ToSlash(files[0]), filepath.ToSlash(files[1])},
		},
		"seeded": seeded,
	}
	return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: []string{check}, Memory: true})
}

func ticketClose(ctx context.Context, ac *ActionContext) (*Result, error) {
	usDir, err := ac.expandDir(orDefault(ac.Def.Paths.UsDirRef, usDirRef))
	if err != nil {
		return nil, err
	}
	ticketDir, err := ac.expandDir(orDefault(ac.Def.Paths.TicketDirRef, ticketDirRef))
	if err != nil {
		return nil, err
	}
	keep := DefaultKeep
	if ac.Def.HasKeep {
		keep = ac.Def.Keep
	}
	matcher, err := globre.NewMatcher(keep)
	if err != nil {
		return nil, &assembly.ConfigError{Reason: assembly.ReasonWrongShape, Err: fmt.Errorf("%s move.keep: %w", ac.Key, err)}
	}

	evidence := filepath.Join(usDir, "evidence")
	if err := os.MkdirAll(ac.Abs(evidence), 0o755); err != nil {
		return nil, err
	}

	copied := []string{}
	if isDir(ac.Abs(ticketDir)) {
		entries, err := os.ReadDir(ac.Abs(ticketDir))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !matcher.Match(e.Name()) {
				continue
			}
			dst := filepath.Join(evidence, e.Name())
			if err := copyFile(ac.Abs(filepath.Join(ticketDir, e.Name())), ac.Abs(dst)); err != nil {
				return nil, fmt.Errorf("promote %s: %w", e.Name(), err)
			}
			copied = append(copied, filepath.ToSlash(dst))
		}
	} else {
		debug.Warnf("%s: ticket directory %s does not exist, nothing promoted", ac.Key, filepath.ToSlash(ticketDir))
	}
	ac.Location = resource.Location{BasePath: filepath.Dir(ticketDir), ResolvedPath: ticketDir, Dir: true}

	if _, err := ac.Emit(ctx, "TICKET_CLOSED", action.Namespace, nil); err != nil {
		return nil, err
	}
	outputs := map[string]any{
		"moved_to_evidence": copied,
		"evidence_dir":      filepath.ToSlash(evidence),
	}
	return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: []string{"ticket_close:pass"}, Memory: true})
}
