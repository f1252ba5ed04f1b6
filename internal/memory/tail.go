package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Tail follows actor's daily logs and calls fn for every record appended
// after it starts, including records in logs created at day rollover. It
// returns when ctx is done.
func (r *Recorder) Tail(ctx context.Context, actor string, fn func(Record)) error {
	logDir := filepath.Dir(r.LogPath(actor, r.now()))
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("memory: create log dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("memory: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("memory: watch %s: %w", logDir, err)
	}

	// Start at the end of every existing log.
	offsets := map[string]int64{}
	if entries, err := os.ReadDir(logDir); err == nil {
		for _, e := range entries {
			if info, err := e.Info(); err == nil && strings.HasSuffix(e.Name(), ".jsonl") {
				offsets[filepath.Join(logDir, e.Name())] = info.Size()
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, err := readFrom(event.Name, offsets[event.Name], fn)
			if err != nil {
				return err
			}
			offsets[event.Name] = next
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("memory: watcher: %w", err)
		}
	}
}

// readFrom decodes every complete line after offset and returns the offset
// just past the last one consumed.
func readFrom(path string, offset int64, fn func(Record)) (int64, error) {
	// #nosec G304 - path comes from the watched log directory
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return offset, nil
		}
		return offset, fmt.Errorf("memory: open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("memory: seek log: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return offset, fmt.Errorf("memory: read log: %w", err)
	}
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		offset += int64(i + 1)
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		fn(rec)
	}
	return offset, nil
}
