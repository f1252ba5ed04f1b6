package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkaos/arka/internal/resource"
)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func ticketScope() resource.Scope {
	return resource.Scope{
		{Key: "featureId", Value: "FEAT-12"},
		{Key: "ticketId", Value: "TCK-1"},
	}
}

func TestRecordAppendsAndIndexes(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".mem")
	now := time.Date(2025, 3, 4, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	r := NewRecorder(root, fixedClock(now))

	rec, err := r.Record(Record{
		Actor:     "runner",
		ActionKey: "TICKET_CREATE",
		Scope:     ticketScope(),
		Inputs:    map[string]any{"ticketId": "TCK-1"},
		Outputs:   map[string]any{"created": map[string]any{"dir": "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-05T01:30:00.000Z", rec.TS)
	assert.Equal(t, "success", rec.Status)

	// UTC day, not local day.
	logPath := filepath.Join(root, "runner", "log", "2025-03-05.jsonl")
	assert.Equal(t, logPath, r.LogPath("runner", now))
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &raw))
	for _, k := range []string{"ts", "actor", "action_key", "scope", "inputs", "outputs", "refs_resolved", "validations", "status"} {
		assert.Contains(t, raw, k)
	}
	assert.True(t, strings.Contains(lines[0], `"scope":{"featureId":"FEAT-12","ticketId":"TCK-1"}`))

	index := r.Index("runner")
	require.Len(t, index, 1)
	entry := index[`{"featureId":"FEAT-12","ticketId":"TCK-1"}`]
	assert.Equal(t, IndexEntry{Last: rec.TS, ActionKey: "TICKET_CREATE", Status: "success"}, entry)

	indexData, err := os.ReadFile(r.IndexPath("runner"))
	require.NoError(t, err)
	assert.Contains(t, string(indexData), "\n  \"")
}

func TestIndexLastWriteWinsLogAppendOnly(t *testing.T) {
	root := t.TempDir()
	clock := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	r := NewRecorder(root, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	_, err := r.Record(Record{Actor: "a", ActionKey: "TICKET_CREATE", Scope: ticketScope()})
	require.NoError(t, err)
	_, err = r.Record(Record{Actor: "a", ActionKey: "TICKET_CLOSE", Scope: ticketScope(), Status: "failed"})
	require.NoError(t, err)
	_, err = r.Record(Record{Actor: "a", ActionKey: "FEATURE_CREATE", Scope: resource.Scope{{Key: "featureId", Value: "FEAT-12"}}})
	require.NoError(t, err)

	index := r.Index("a")
	require.Len(t, index, 2)
	assert.Equal(t, "TICKET_CLOSE", index[ticketScope().Key()].ActionKey)
	assert.Equal(t, "failed", index[ticketScope().Key()].Status)

	recs, err := r.ReadDay("a", clock)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "TICKET_CREATE", recs[0].ActionKey)
	assert.Equal(t, ticketScope(), recs[0].Scope)
	assert.Equal(t, "FEATURE_CREATE", recs[2].ActionKey)
}

func TestCorruptIndexReadsAsEmpty(t *testing.T) {
	root := t.TempDir()
	r := NewRecorder(root)
	require.NoError(t, os.MkdirAll(r.ActorDir("runner"), 0o755))
	require.NoError(t, os.WriteFile(r.IndexPath("runner"), []byte("{not json"), 0o644))

	assert.Empty(t, r.Index("runner"))

	_, err := r.Record(Record{ActionKey: "US_CREATE", Scope: resource.Scope{{Key: "usId", Value: "US-1"}}})
	require.NoError(t, err)
	assert.Len(t, r.Index("runner"), 1)
}

func TestRecordFailsWhenLogUnwritable(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	r := NewRecorder(blocker)
	_, err := r.Record(Record{ActionKey: "X"})
	require.Error(t, err)
}

func TestActorSanitized(t *testing.T) {
	r := NewRecorder("/mem")
	assert.Equal(t, filepath.Join("/mem", "runner"), r.ActorDir(""))
	assert.Equal(t, filepath.Join("/mem", "runner"), r.ActorDir(".."))
	assert.Equal(t, filepath.Join("/mem", "a_b"), r.ActorDir("a/b"))
}

func TestReadDayMissing(t *testing.T) {
	r := NewRecorder(t.TempDir())
	recs, err := r.ReadDay("nobody", time.Now())
	require.NoError(t, err)
	assert.Empty(t, recs)

	actors, err := r.Actors()
	require.NoError(t, err)
	assert.Empty(t, actors)
}

func TestTailSeesNewRecords(t *testing.T) {
	root := t.TempDir()
	r := NewRecorder(root)

	// Pre-existing record must not be replayed.
	_, err := r.Record(Record{ActionKey: "OLD"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Record, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.Tail(ctx, "runner", func(rec Record) { got <- rec })
	}()

	time.Sleep(150 * time.Millisecond)
	_, err = r.Record(Record{ActionKey: "NEW"})
	require.NoError(t, err)

	select {
	case rec := <-got:
		assert.Equal(t, "NEW", rec.ActionKey)
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not report the new record")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not stop")
	}
}
