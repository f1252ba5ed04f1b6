// Package memory is the audit trail of executed actions: an append-only
// JSON-lines log per actor per UTC day, and a per-actor index holding the
// latest outcome for each scope.
//
// Layout under the memory root:
//
//	<actor>/log/YYYY-MM-DD.jsonl
//	<actor>/index.json
//	<actor>/index.lock
package memory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arkaos/arka/internal/lockfile"
	"github.com/arkaos/arka/internal/resource"
)

// TimeLayout is the timestamp format shared by records and events:
// UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultActor is used when no actor is configured.
const DefaultActor = "runner"

// Record is one executed action.
type Record struct {
	TS           string         `json:"ts"`
	Actor        string         `json:"actor"`
	ActionKey    string         `json:"action_key"`
	Scope        resource.Scope `json:"scope"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	RefsResolved []string       `json:"refs_resolved"`
	Validations  []string       `json:"validations"`
	Status       string         `json:"status"`
}

// IndexEntry is the latest outcome recorded for a scope.
type IndexEntry struct {
	Last      string `json:"last"`
	ActionKey string `json:"action_key"`
	Status    string `json:"status"`
}

// Recorder writes and reads the audit trail under a root directory.
type Recorder struct {
	root string
	now  func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a recorder rooted at dir (typically ".mem").
func NewRecorder(dir string, opts ...Option) *Recorder {
	r := &Recorder{root: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root is the memory root directory.
func (r *Recorder) Root() string { return r.root }

// ActorDir is the directory holding one actor's log and index.
func (r *Recorder) ActorDir(actor string) string {
	return filepath.Join(r.root, sanitizeActor(actor))
}

// LogPath is the daily log for actor on the UTC day of t.
func (r *Recorder) LogPath(actor string, t time.Time) string {
	return filepath.Join(r.ActorDir(actor), "log", t.UTC().Format("2006-01-02")+".jsonl")
}

// IndexPath is actor's scope index.
func (r *Recorder) IndexPath(actor string) string {
	return filepath.Join(r.ActorDir(actor), "index.json")
}

// Record appends rec to the daily log and overwrites the index entry for
// its scope. TS, Actor and Status are filled in when empty. Any filesystem
// failure is returned; the log is never truncated.
func (r *Recorder) Record(rec Record) (Record, error) {
	now := r.now().UTC()
	if rec.TS == "" {
		rec.TS = now.Format(TimeLayout)
	}
	if rec.Actor == "" {
		rec.Actor = DefaultActor
	}
	if rec.Status == "" {
		rec.Status = "success"
	}
	if rec.Scope == nil {
		rec.Scope = resource.Scope{}
	}
	if rec.RefsResolved == nil {
		rec.RefsResolved = []string{}
	}
	if rec.Validations == nil {
		rec.Validations = []string{}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("memory: encode record: %w", err)
	}
	if err := appendLine(r.LogPath(rec.Actor, now), line); err != nil {
		return rec, err
	}

	lock, err := lockfile.Acquire(filepath.Join(r.ActorDir(rec.Actor), "index.lock"))
	if err != nil {
		return rec, fmt.Errorf("memory: %w", err)
	}
	defer func() { _ = lock.Release() }()

	indexPath := r.IndexPath(rec.Actor)
	index := readIndex(indexPath)
	index[rec.Scope.Key()] = IndexEntry{Last: rec.TS, ActionKey: rec.ActionKey, Status: rec.Status}
	if err := writeIndex(indexPath, index); err != nil {
		return rec, err
	}
	return rec, nil
}

// Index reads actor's index. A missing or corrupt index reads as empty.
func (r *Recorder) Index(actor string) map[string]IndexEntry {
	return readIndex(r.IndexPath(actor))
}

// ReadDay returns the records logged for actor on the UTC day of t.
func (r *Recorder) ReadDay(actor string, t time.Time) ([]Record, error) {
	// #nosec G304 - path built from the memory root
	data, err := os.ReadFile(r.LogPath(actor, t))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: read log: %w", err)
	}
	var out []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return out, fmt.Errorf("memory: corrupt log line: %w", err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// Actors lists actors with a memory directory.
func (r *Recorder) Actors() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: create log dir: %w", err)
	}
	// #nosec G304 - path built from the memory root
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("memory: append log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("memory: close log: %w", err)
	}
	return nil
}

func readIndex(path string) map[string]IndexEntry {
	index := map[string]IndexEntry{}
	// #nosec G304 - path built from the memory root
	data, err := os.ReadFile(path)
	if err != nil {
		return index
	}
	if err := json.Unmarshal(data, &index); err != nil || index == nil {
		return map[string]IndexEntry{}
	}
	return index
}

func writeIndex(path string, index map[string]IndexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: create index dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memory: replace index: %w", err)
	}
	return nil
}

func sanitizeActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" || actor == "." || actor == ".." {
		return DefaultActor
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(actor)
}
