package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/idgen"
	"github.com/arkaos/arka/internal/memory"
	"github.com/arkaos/arka/internal/resource"
	"github.com/arkaos/arka/internal/timeparsing"
)

type operation func(ctx context.Context, ac *ActionContext) (map[string]any, error)

var genericHandlers = map[action.Operation]Handler{
	action.OpCreate:  generic(createOp),
	action.OpRead:    generic(readOp),
	action.OpUpdate:  generic(updateOp),
	action.OpDelete:  generic(deleteOp),
	action.OpMove:    generic(moveOp),
	action.OpRename:  generic(renameOp),
	action.OpArchive: generic(archiveOp),
	action.OpStatus:  generic(statusOp),
	action.OpPublish: generic(publishOp),
}

// generic wraps an operation with location resolution and validation up
// front and finalization after.
func generic(op operation) Handler {
	return func(ctx context.Context, ac *ActionContext) (*Result, error) {
		validations, err := ac.prepare()
		if err != nil {
			return nil, err
		}
		outputs, err := op(ctx, ac)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", ac.Def.Operation, ac.Key, err)
		}
		return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: validations})
	}
}

// prepare resolves the action's location and runs its declared checks.
// Everything strict happens here, before any filesystem mutation.
func (ac *ActionContext) prepare() ([]string, error) {
	loc, err := resource.ResolvePath(ac.rt.asm, ac.Def.PathSpec(), ac.Type, ac.Input)
	if err != nil {
		return nil, err
	}
	if ac.Def.Paths.DirRef != "" {
		ac.noteRef(ac.Def.Paths.DirRef)
	}
	ac.Location = loc

	validations := []string{}
	if ac.Def.NamingRegexRef != "" {
		if id, ok := ac.Type.ID(ac.Input); ok {
			v, err := ac.ValidateID(ac.Def.NamingRegexRef, "regex."+ac.Type.Name, id)
			if err != nil {
				return nil, err
			}
			validations = append(validations, v)
		}
	}
	if ac.Def.Operation == action.OpRename {
		v, err := ac.checkNewID()
		if err != nil {
			return nil, err
		}
		if v != "" {
			validations = append(validations, v)
		}
	}
	for _, v := range ac.Def.Validations {
		if ns, _, err := assembly.SplitRef(v); err == nil && assembly.IsRef(v) {
			if _, ok := ac.rt.asm.Namespace(ns); ok {
				if _, err := ac.Resolve(v); err != nil {
					return nil, err
				}
				validations = append(validations, v+":resolved")
				continue
			}
		}
		validations = append(validations, v+":declared")
	}
	return validations, nil
}

// checkNewID vets a RENAME's new identifier before anything moves: it must
// name a single entry in the same directory and satisfy the naming regex
// when one is declared.
func (ac *ActionContext) checkNewID() (string, error) {
	newID := firstStr(ac.Input, "newId", "new_id")
	if newID == "" {
		return "", nil
	}
	if newID == "." || newID == ".." || strings.ContainsAny(newID, `/\`) {
		return "", inputErrorf("newId must be a bare identifier: %q", newID)
	}
	if ac.Def.NamingRegexRef == "" {
		return "", nil
	}
	return ac.ValidateID(ac.Def.NamingRegexRef, "regex."+ac.Type.Name, newID)
}

// target is the resolved path, else the base path.
func (ac *ActionContext) target() string {
	if ac.Location.ResolvedPath != "" {
		return ac.Location.ResolvedPath
	}
	return ac.Location.BasePath
}

func (ac *ActionContext) display(p string) any {
	if p == "" {
		return nil
	}
	if p == ac.Location.ResolvedPath {
		return ac.Location.Display()
	}
	return filepath.ToSlash(p)
}

func (ac *ActionContext) isJSON(path string) bool {
	return strings.EqualFold(ac.Def.FileType, "json") || strings.EqualFold(filepath.Ext(path), ".json")
}

func createOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	loc := ac.Location
	if loc.Empty() {
		return map[string]any{"created": nil, "existing": false}, nil
	}
	base := ac.Abs(loc.BasePath)
	baseExisted := isDir(base)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	created := map[string]any{"dir": filepath.ToSlash(loc.BasePath), "files": []string{}}
	if loc.ResolvedPath == "" {
		return map[string]any{"created": created, "existing": baseExisted}, nil
	}

	target := ac.Abs(loc.ResolvedPath)
	if loc.Dir {
		existed := isDir(target)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return nil, err
		}
		created["dir"] = loc.Display()
		return map[string]any{"created": created, "existing": existed, "path": loc.Display()}, nil
	}

	_, statErr := os.Stat(target)
	existed := statErr == nil
	if ac.isJSON(target) {
		doc := make(map[string]any, len(ac.Input)+1)
		for k, v := range ac.Input {
			doc[k] = v
		}
		doc["created_at"] = ac.Now.Format(memory.TimeLayout)
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := writeFile(target, append(data, '\n')); err != nil {
			return nil, err
		}
	} else if !existed {
		if err := writeFile(target, []byte(markdownStub(ac))); err != nil {
			return nil, err
		}
	}
	created["files"] = []string{filepath.ToSlash(loc.ResolvedPath)}
	return map[string]any{"created": created, "existing": existed, "path": loc.Display()}, nil
}

func markdownStub(ac *ActionContext) string {
	if c, ok := ac.Input["content"].(string); ok {
		return c
	}
	heading := str(ac.Input, "title")
	if heading == "" {
		heading, _ = ac.Type.ID(ac.Input)
	}
	return "# " + heading + "\n"
}

func readOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	rel := ac.target()
	if rel == "" {
		return map[string]any{"path": nil, "exists": false, "content": nil}, nil
	}
	path := ac.Abs(rel)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{"path": ac.display(rel), "exists": false, "content": nil}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		entries, err := listDir(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": ac.display(rel), "exists": true, "entries": entries}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"path": ac.display(rel), "exists": true, "content": string(data)}
	if ac.isJSON(path) {
		v, err := decodeJSON(data)
		if err != nil {
			debug.Warnf("%s: %s is not valid JSON, returning raw text: %v", ac.Key, rel, err)
			return out, nil
		}
		out["content"] = v
	}
	return out, nil
}

func updateOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	rel := ac.Location.ResolvedPath
	out := map[string]any{"path": ac.display(rel), "previous": nil, "updated": false}
	if rel == "" {
		return out, nil
	}
	path := ac.Abs(rel)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return out, nil
	}

	updates, _ := ac.Input["updates"].(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if ac.isJSON(path) {
		previous := map[string]any{}
		if len(bytes.TrimSpace(data)) > 0 {
			v, err := decodeJSON(data)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", rel, err)
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("read %s: not a JSON object", rel)
			}
			previous = obj
		}
		merged := make(map[string]any, len(previous)+len(updates)+1)
		for k, v := range previous {
			merged[k] = v
		}
		for k, v := range updates {
			merged[k] = v
		}
		merged["updated_at"] = ac.Now.Format(memory.TimeLayout)
		enc, err := json.MarshalIndent(merged, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := writeFile(path, append(enc, '\n')); err != nil {
			return nil, err
		}
		out["previous"] = previous
		out["current"] = merged
		out["updated"] = true
		return out, nil
	}

	out["previous"] = string(data)
	if content, ok := updates["content"].(string); ok {
		if err := writeFile(path, []byte(content)); err != nil {
			return nil, err
		}
		out["updated"] = true
	}
	return out, nil
}

func deleteOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	rel := ac.target()
	out := map[string]any{"path": ac.display(rel), "deleted": false}
	if rel == "" {
		return out, nil
	}
	path := ac.Abs(rel)
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return out, nil
	} else if err != nil {
		return nil, err
	}

	suffix := ".deleted"
	for n := 1; exists(path + suffix); n++ {
		suffix = ".deleted." + strconv.Itoa(n)
	}
	if err := os.Rename(path, path+suffix); err != nil {
		return nil, err
	}
	out["deleted"] = true
	out["deleted_path"] = filepath.ToSlash(rel + suffix)
	return out, nil
}

func moveOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	dest := firstStr(ac.Input, "destination", "to")
	if ref := ac.Def.Paths.DestinationRef; ref != "" {
		template, err := ac.ResolveString(ref)
		if err != nil {
			return nil, err
		}
		dest = filepath.ToSlash(resource.ExpandTemplate(template, ac.Input))
	}
	var destination any
	if dest != "" {
		destination = dest
	}
	return map[string]any{"source": ac.display(ac.target()), "destination": destination, "moved": false}, nil
}

func renameOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	rel := ac.Location.ResolvedPath
	newID := firstStr(ac.Input, "newId", "new_id")
	out := map[string]any{"from": ac.display(rel), "to": nil, "renamed": false}
	if rel == "" || newID == "" {
		return out, nil
	}
	path := ac.Abs(rel)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	ext := ""
	if !info.IsDir() {
		ext = filepath.Ext(rel)
	}
	newRel := filepath.Join(filepath.Dir(rel), newID+ext)
	newPath := ac.Abs(newRel)
	if newPath == path {
		out["to"] = filepath.ToSlash(newRel)
		return out, nil
	}
	if exists(newPath) {
		return nil, inputErrorf("rename target already exists: %s", filepath.ToSlash(newRel))
	}
	if err := os.Rename(path, newPath); err != nil {
		return nil, err
	}
	out["to"] = filepath.ToSlash(newRel)
	out["renamed"] = true
	return out, nil
}

func archiveOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	p := ac.display(ac.target())
	pathStr, _ := p.(string)
	return map[string]any{
		"archived_path": p,
		"archive_id":    idgen.ArchiveID(ac.Key, pathStr, ac.Now),
	}, nil
}

func statusOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	oldStatus, _ := firstPresent(ac.Input, "from", "old_status")
	newStatus, _ := firstPresent(ac.Input, "status", "validation", "reason")
	out := map[string]any{"old_status": oldStatus, "new_status": newStatus}
	if p := ac.display(ac.target()); p != nil {
		out["path"] = p
	}
	if ac.Def.RecordValidator {
		by := firstStr(ac.Input, "validator", "validated_by")
		if by == "" {
			by = ac.Actor()
		}
		at := ac.Now
		if s := str(ac.Input, "validated_at"); s != "" {
			t, err := timeparsing.ParseRelativeTime(s, ac.Now)
			if err != nil {
				return nil, inputErrorf("validated_at: %v", err)
			}
			at = t.UTC()
		}
		out["validated_by"] = by
		out["validated_at"] = at.Format(memory.TimeLayout)
	}
	return out, nil
}

func publishOp(_ context.Context, ac *ActionContext) (map[string]any, error) {
	url, _ := firstPresent(ac.Input, "url", "published_url")
	version, _ := firstPresent(ac.Input, "version")
	out := map[string]any{"published_url": url, "version": version}
	if p := ac.display(ac.target()); p != nil {
		out["path"] = p
	}
	return out, nil
}
