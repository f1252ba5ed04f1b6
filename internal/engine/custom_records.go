package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/resource"
)

// recordKind describes a numbered record kept under a feature directory.
type recordKind struct {
	name    string // for messages
	idType  string // record id prefix
	dir     string // subdirectory of the feature (or epic) directory
	created string // event emitted on creation
}

var (
	changeRequests = recordKind{name: "change request", idType: "CR", dir: "change-requests", created: "CHANGE_REQUEST_CREATED"}
	reviews        = recordKind{name: "review", idType: "RV", dir: "reviews", created: "REVIEW_CREATED"}
)

var digitsRe = regexp.MustCompile(`\d+`)

func recordCreate(kind recordKind) Handler {
	return func(ctx context.Context, ac *ActionContext) (*Result, error) {
		loc, err := locateRecordDir(ac)
		if err != nil {
			return nil, err
		}
		idType := orDefault(ac.Def.RecordType, kind.idType)
		num := digitsRe.FindString(loc.feature)
		if num == "" {
			return nil, &ValidationError{Label: "record_id", Value: loc.feature, Err: fmt.Errorf("feature directory %q has no numeric id", loc.feature)}
		}
		recordID := fmt.Sprintf("%s-%s-%s", idType, num, ac.Now.Format("20060102"))

		validations := []string{}
		if ac.Def.NamingRegexRef != "" {
			check, err := ac.ValidateID(ac.Def.NamingRegexRef, "regex."+strings.ToLower(idType), recordID)
			if err != nil {
				return nil, err
			}
			validations = append(validations, check)
		}

		recDir := filepath.Join(loc.dir, orDefault(ac.Def.RecordDir, kind.dir))
		recPath := filepath.Join(recDir, recordID+".md")
		title := orDefault(str(ac.Input, "title"), strings.ToUpper(kind.name[:1])+kind.name[1:])
		body := fmt.Sprintf("# %s — %s\n", recordID, title)
		if c := firstStr(ac.Input, "content", "description"); c != "" {
			body += "\n" + c + "\n"
		}
		// Ids are per feature per day, so a second record that day would
		// collide with the first.
		wrote, err := writeFileIfAbsent(ac.Abs(recPath), []byte(body))
		if err != nil {
			return nil, err
		}
		if !wrote {
			return nil, inputErrorf("%s %s already exists: %s", kind.name, recordID, filepath.ToSlash(recPath))
		}
		ac.Location = resource.Location{BasePath: recDir, ResolvedPath: recPath}
		ac.Scope = recordScope(ac, loc, recordID)

		if _, err := ac.Emit(ctx, kind.created, action.Namespace, map[string]any{"record_id": recordID, "title": title}); err != nil {
			return nil, err
		}
		outputs := map[string]any{
			"record_id":   recordID,
			"path":        filepath.ToSlash(recPath),
			"created":     true,
			"feature_dir": filepath.ToSlash(loc.dir),
		}
		return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: validations, Memory: true})
	}
}

func recordRead(kind recordKind) Handler {
	return func(ctx context.Context, ac *ActionContext) (*Result, error) {
		recordID := firstStr(ac.Input, "recordId", "record_id")
		if recordID == "" {
			return nil, inputErrorf("%s requires recordId", ac.Key)
		}
		loc, err := locateRecordDir(ac)
		if err != nil {
			return nil, err
		}
		recDir := filepath.Join(loc.dir, orDefault(ac.Def.RecordDir, kind.dir))
		recPath := filepath.Join(recDir, recordID+".md")
		data, err := os.ReadFile(ac.Abs(recPath))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{What: kind.name, Name: recordID, In: filepath.ToSlash(recDir)}
		}
		if err != nil {
			return nil, err
		}
		ac.Location = resource.Location{BasePath: recDir, ResolvedPath: recPath}
		ac.Scope = recordScope(ac, loc, recordID)

		outputs := map[string]any{
			"record_id": recordID,
			"path":      filepath.ToSlash(recPath),
			"content":   string(data),
		}
		return Finalize(ctx, ac, Outcome{Outputs: outputs, Validations: []string{}, Memory: true})
	}
}

type recordLocation struct {
	dir     string // feature dir, or epic dir inside it
	feature string // matched feature directory name
	epic    string // matched epic directory name, if any
}

// locateRecordDir finds the feature (and optional epic) directory the
// caller named. Any miss is fatal.
func locateRecordDir(ac *ActionContext) (recordLocation, error) {
	name := firstStr(ac.Input, "feature", "featureId")
	if name == "" {
		return recordLocation{}, inputErrorf("%s requires feature or featureId", ac.Key)
	}
	root, err := ac.expandDir(orDefault(ac.Def.Paths.RootRef, featureRootRef))
	if err != nil {
		return recordLocation{}, err
	}
	feature, err := FuzzyFind(ac.Abs(root), name)
	if err != nil {
		return recordLocation{}, err
	}
	if feature == "" {
		return recordLocation{}, &NotFoundError{What: "feature directory", Name: name, In: filepath.ToSlash(root)}
	}
	loc := recordLocation{dir: filepath.Join(root, feature), feature: feature}

	if epic := firstStr(ac.Input, "epic"); epic != "" {
		match, err := FuzzyFind(ac.Abs(loc.dir), epic)
		if err != nil {
			return recordLocation{}, err
		}
		if match == "" {
			return recordLocation{}, &NotFoundError{What: "epic directory", Name: epic, In: filepath.ToSlash(loc.dir)}
		}
		loc.epic = match
		loc.dir = filepath.Join(loc.dir, match)
	}
	return loc, nil
}

func recordScope(ac *ActionContext, loc recordLocation, recordID string) resource.Scope {
	scope := resource.Scope{{Key: "featureId", Value: orDefault(str(ac.Input, "featureId"), loc.feature)}}
	if e := orDefault(str(ac.Input, "epicId"), loc.epic); e != "" {
		scope = append(scope, resource.Field{Key: "epicId", Value: e})
	}
	return append(scope, resource.Field{Key: "recordId", Value: recordID})
}

// FuzzyFind returns the subdirectory of dir best matching name: exact
// case-insensitive, then case-insensitive ignoring whitespace, then a
// case-insensitive "<name>-" prefix. It returns "" when nothing matches or
// dir does not exist.
func FuzzyFind(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	want := strings.TrimSpace(name)
	for _, d := range dirs {
		if strings.EqualFold(d, want) {
			return d, nil
		}
	}
	compact := stripSpace(want)
	for _, d := range dirs {
		if strings.EqualFold(stripSpace(d), compact) {
			return d, nil
		}
	}
	prefix := strings.ToLower(want) + "-"
	for _, d := range dirs {
		if strings.HasPrefix(strings.ToLower(d), prefix) {
			return d, nil
		}
	}
	return "", nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
