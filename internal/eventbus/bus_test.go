package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/resource"
)

var fixedNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestBus(cfg Config, opts ...Option) (*Bus, *bytes.Buffer) {
	var out bytes.Buffer
	base := []Option{
		WithStdout(&out),
		WithProcessOutput(io.Discard, io.Discard),
		WithClock(func() time.Time { return fixedNow }),
		WithTraceID("trace-1"),
		WithProfile("test"),
		WithRetryInterval(10 * time.Millisecond),
	}
	return New(cfg, append(base, opts...)...), &out
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script subscribers need a unix shell")
	}
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func TestCanonicalIsPure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AliasTopics = map[string]string{"ORDER_CREATED": "TICKET_CREATED"}
	bus, _ := newTestBus(cfg)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "TICKET_CREATED", bus.Canonical("ORDER_CREATED"))
		assert.Equal(t, "US_CREATED", bus.Canonical("US_CREATED"))
	}
}

func TestDispatchWritesEventStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AliasTopics = map[string]string{"ORDER_CREATED": "TICKET_CREATED"}
	bus, out := newTestBus(cfg)

	scope := resource.Scope{{Key: "featureId", Value: "FEAT-12"}, {Key: "ticketId", Value: "TCK-1"}}
	ev, results, err := bus.Dispatch(context.Background(),
		bus.NewEvent("ORDER_CREATED", "ARKORE12-ACTION-KEYS", scope, map[string]any{"title": "x"}))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "TICKET_CREATED", ev.Name)

	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(line, `{"event":"TICKET_CREATED","ts":"2025-01-15T10:00:00.000Z","source_brick":"ARKORE12-ACTION-KEYS","profile":"test","scope":{"featureId":"FEAT-12","ticketId":"TCK-1"}`), line)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "trace-1", decoded["trace_id"])
	assert.Equal(t, map[string]any{"title": "x"}, decoded["details"])
}

func TestEventLineKeys(t *testing.T) {
	bus, out := newTestBus(DefaultConfig())
	_, _, err := bus.Dispatch(context.Background(),
		bus.NewEvent("US_CREATED", "ARKORE12-ACTION-KEYS", nil, map[string]any{"title": "x"}))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.ElementsMatch(t,
		[]string{"event", "ts", "source_brick", "profile", "scope", "details", "trace_id"},
		keysOf(decoded))

	decoded["added_later"] = 1
	line, err := json.Marshal(decoded)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(line, &ev))
	assert.Equal(t, "US_CREATED", ev.Name)
	assert.Equal(t, "trace-1", ev.TraceID)
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestDispatchStdoutDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StdoutEnabled = false
	bus, out := newTestBus(cfg)

	_, _, err := bus.Dispatch(context.Background(), Event{Name: "X"})
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestConfigFromAssembly(t *testing.T) {
	asm, err := assembly.Parse([]byte(`
ARKORE16-EVENT-BUS:
  alias_topics:
    ORDER_CREATED: TICKET_CREATED
  dispatch:
    stdout: {enabled: false}
    local: {base_dir: "hooks/", timeout: 2}
    webhook: {timeout: "1500ms", retries: 4}
    parallel: 3
  subscriptions:
    - on: US_CREATED
      using: local
      run: us_created.sh
      args: ["--id", "${scope.usId}"]
    - name: audit-hook
      on: [TICKET_CREATED, TICKET_CLOSED]
      using: WEBHOOK
      run: https://example.invalid/hook
      timeout: 3s
`), assembly.FormatYAML)
	require.NoError(t, err)

	cfg, err := ConfigFromAssembly(asm, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "TICKET_CREATED", cfg.AliasTopics["ORDER_CREATED"])
	assert.False(t, cfg.StdoutEnabled)
	assert.Equal(t, "hooks/", cfg.LocalBaseDir)
	assert.Equal(t, 2*time.Second, cfg.LocalTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.WebhookTimeout)
	assert.Equal(t, 4, cfg.WebhookRetries)
	assert.Equal(t, 3, cfg.Parallel)

	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, Subscription{Name: "sub-0", On: []string{"US_CREATED"}, Using: "local", Run: "us_created.sh", Args: []string{"--id", "${scope.usId}"}}, cfg.Subscriptions[0])
	assert.Equal(t, "audit-hook", cfg.Subscriptions[1].Name)
	assert.Equal(t, "webhook", cfg.Subscriptions[1].Using)
	assert.Equal(t, 3*time.Second, cfg.Subscriptions[1].Timeout)
	assert.True(t, cfg.Subscriptions[1].Matches("TICKET_CLOSED"))
	assert.False(t, cfg.Subscriptions[1].Matches("US_CREATED"))
}

func TestConfigFromAssemblyDefaultsAndShapeErrors(t *testing.T) {
	empty, err := assembly.Parse([]byte(`OTHER: {}`), assembly.FormatYAML)
	require.NoError(t, err)
	cfg, err := ConfigFromAssembly(empty, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, cfg.StdoutEnabled)
	assert.Equal(t, DefaultLocalBaseDir, cfg.LocalBaseDir)
	assert.Empty(t, cfg.Subscriptions)

	bad, err := assembly.Parse([]byte(`
ARKORE16-EVENT-BUS:
  subscriptions: {on: X}
`), assembly.FormatYAML)
	require.NoError(t, err)
	_, err = ConfigFromAssembly(bad, DefaultConfig())
	require.Error(t, err)
	assert.True(t, assembly.IsConfigError(err))
}

func TestExpandArgs(t *testing.T) {
	payload := []byte(`{"event":"US_CREATED","scope":{"usId":"US-7"},"details":{"title":"t"}}`)
	got := ExpandArgs([]string{"--id", "${scope.usId}", "${details.missing:-none}", "${event}", "${HOME}"}, payload)
	assert.Equal(t, []string{"--id", "US-7", "none", "US_CREATED", ""}, got)
}

func TestLocalSubscriberReceivesEventAndArgs(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	outFile := filepath.Join(root, "out.txt")
	writeScript(t, filepath.Join(root, "scripts"), "record.sh", `cat > "`+outFile+`.json"; echo "$@" > "`+outFile+`"`)

	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "rec", On: []string{"US_CREATED"}, Using: UsingLocal, Run: "record.sh", Args: []string{"--us", "${scope.usId}"}}}
	bus, _ := newTestBus(cfg, WithRoot(root))

	_, results, err := bus.Dispatch(context.Background(),
		bus.NewEvent("US_CREATED", "ARKORE12-ACTION-KEYS", resource.Scope{{Key: "usId", Value: "US-7"}}, nil))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status, results[0].Error)
	assert.Equal(t, filepath.Join(root, "scripts", "record.sh"), results[0].Target)

	args, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "--us US-7\n", string(args))

	stdin, err := os.ReadFile(outFile + ".json")
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(stdin, &ev))
	assert.Equal(t, "US_CREATED", ev.Name)
}

func TestLocalFailuresDoNotStopFanOut(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	scripts := filepath.Join(root, "scripts")
	marker := filepath.Join(root, "ran")
	writeScript(t, scripts, "fail.sh", "exit 3")
	writeScript(t, scripts, "ok.sh", `touch "`+marker+`"`)

	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{
		{Name: "fail", On: []string{"E"}, Using: UsingLocal, Run: "fail.sh"},
		{Name: "missing", On: []string{"E"}, Using: UsingLocal, Run: "nope.sh"},
		{Name: "other-topic", On: []string{"F"}, Using: UsingLocal, Run: "ok.sh"},
		{Name: "ok", On: []string{"E"}, Using: UsingLocal, Run: "ok.sh"},
	}
	bus, _ := newTestBus(cfg, WithRoot(root))

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "fail", results[0].Subscriber)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Equal(t, "exit 3", results[0].Error)
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, StatusSuccess, results[2].Status)
	assert.FileExists(t, marker)
	assert.Len(t, Failed(results), 2)
}

func TestLocalTimeout(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	writeScript(t, filepath.Join(root, "scripts"), "hang.sh", "sleep 30")

	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "hang", On: []string{"E"}, Using: UsingLocal, Run: "hang.sh", Timeout: 100 * time.Millisecond}}
	bus, _ := newTestBus(cfg, WithRoot(root))

	start := time.Now()
	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusTimeout, results[0].Status)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestParallelFanOutKeepsOrder(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	writeScript(t, filepath.Join(root, "scripts"), "slow.sh", "sleep 0.4")

	cfg := DefaultConfig()
	cfg.Parallel = 3
	for _, name := range []string{"a", "b", "c"} {
		cfg.Subscriptions = append(cfg.Subscriptions, Subscription{Name: name, On: []string{"E"}, Using: UsingLocal, Run: "slow.sh"})
	}
	bus, _ := newTestBus(cfg, WithRoot(root))

	start := time.Now()
	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, results[i].Subscriber)
		assert.Equal(t, StatusSuccess, results[i].Status, results[i].Error)
	}
	assert.Less(t, elapsed, 1100*time.Millisecond)
}

func TestCancelledDispatchSkipsSubscribers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "w", On: []string{"E"}, Using: UsingWebhook, Run: "http://127.0.0.1:1/never"}}
	bus, out := newTestBus(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, results, err := bus.Dispatch(ctx, Event{Name: "E"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.NotEmpty(t, out.String())
}

func TestWebhookDelivery(t *testing.T) {
	var got []byte
	var ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		ctype = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "hook", On: []string{"TICKET_CREATED"}, Using: UsingWebhook, Run: srv.URL}}
	bus, _ := newTestBus(cfg)

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "TICKET_CREATED"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status, results[0].Error)
	assert.Equal(t, srv.URL, results[0].Target)
	assert.Equal(t, "application/json", ctype)
	assert.Contains(t, string(got), `"event":"TICKET_CREATED"`)
}

func TestWebhookOverrideAndRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.WebhookRetries = 2
	cfg.Subscriptions = []Subscription{{Name: "hook", On: []string{"E"}, Using: UsingWebhook, Run: "http://127.0.0.1:1/unused"}}
	bus, _ := newTestBus(cfg, WithWebhookOverride(srv.URL))

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, results[0].Status, results[0].Error)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestWebhookClientErrorIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.WebhookRetries = 3
	cfg.Subscriptions = []Subscription{{Name: "hook", On: []string{"E"}, Using: UsingWebhook, Run: srv.URL}}
	bus, _ := newTestBus(cfg)

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Error, "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWebhookTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.WebhookRetries = 0
	cfg.Subscriptions = []Subscription{{Name: "slow", On: []string{"E"}, Using: UsingWebhook, Run: srv.URL, Timeout: 50 * time.Millisecond}}
	bus, _ := newTestBus(cfg)

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, results[0].Status, results[0].Error)
}

func TestWebhookWithoutEndpointIsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "hook", On: []string{"E"}, Using: UsingWebhook}}
	bus, _ := newTestBus(cfg)

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "E"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Empty(t, Failed(results))
}

func TestUnknownTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Subscriptions = []Subscription{{Name: "x", On: []string{"*"}, Using: "carrier-pigeon"}}
	bus, _ := newTestBus(cfg)

	_, results, err := bus.Dispatch(context.Background(), Event{Name: "ANY"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, results[0].Status)
}
