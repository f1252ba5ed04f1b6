package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/memory"
)

const testAssembly = `
ARKORE08-PATHS-GOVERNANCE:
  path_templates:
    ticket_dir: "work/${featureId}/${epicId}/${usId}/tickets/${ticketId}"
    documents: "docs/{featureId}"
ARKORE09-NAMING:
  regex:
    ticket: '^TCK-US-\d+-\d+-\d+-\d+$'
ARKORE16-EVENT-BUS:
  alias_topics:
    ORDER_CREATED: TICKET_CREATED
ARKORE12-ACTION-KEYS:
  action_keys:
    TICKET_CREATE:
      paths: {dir_ref: "ARKORE08-PATHS-GOVERNANCE:path_templates.ticket_dir"}
      naming: {regex_ref: "ARKORE09-NAMING:regex.ticket"}
      post: ["ARKORE14-MEMORY-OPS:operations.MEMORY_UPDATE"]
    docs:
      DOCUMENT_READ:
        paths: {dir_ref: "ARKORE08-PATHS-GOVERNANCE:path_templates.documents"}
      DOCUMENT_CREATE:
        paths: {dir_ref: "ARKORE08-PATHS-GOVERNANCE:path_templates.documents"}
`

const ticketJSON = `{"featureId":"FEAT-12","epicId":"EPIC-FEAT-12-03","usId":"US-EPIC-12-03-07","ticketId":"TCK-US-12-03-07-01","title":"export CSV"}`

type cliResult struct {
	code   int
	stdout string
	stderr string
}

// arka runs the CLI in-process against root.
func arka(t *testing.T, root string, args ...string) cliResult {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	full := append([]string{"--root", root, "--assembly", "assembly.yaml"}, args...)
	code := execute(context.Background(), cmd, full)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func newWorkspace(t *testing.T, doc string) string {
	t.Helper()
	for _, k := range []string{"ARKA_CONFIG", "ARKA_EVENT_WEBHOOK", "ARKA_ACTOR", "ARKA_AGENT", "ARKA_PROFILE", "ARKA_MEMORY_DIR", "ARKA_OTEL_ENABLED"} {
		t.Setenv(k, "")
	}
	t.Setenv("NO_COLOR", "1")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "assembly.yaml"), []byte(doc), 0o644))
	return root
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestRunTicketCreate(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	res := arka(t, root, "run", "TICKET_CREATE", ticketJSON)
	require.Equal(t, 0, res.code, res.stderr)

	out := lines(res.stdout)
	require.Len(t, out, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(out[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(out[1]), &second))
	assert.Equal(t, "TICKET_CREATED", first["event"])
	assert.Equal(t, "MEMORY_UPDATED", second["event"])
	assert.Equal(t, first["trace_id"], second["trace_id"])

	var result engine.Result
	require.NoError(t, json.Unmarshal([]byte(lines(res.stderr)[0]), &result))
	assert.True(t, result.OK)
	assert.Equal(t, "TICKET_CREATE", result.ActionKey)

	assert.FileExists(t, filepath.Join(root, "work/FEAT-12/EPIC-FEAT-12-03/US-EPIC-12-03-07/tickets/TCK-US-12-03-07-01/WORK.md"))
	assert.DirExists(t, filepath.Join(root, ".mem", "runner", "log"))
}

func TestRunExitCodes(t *testing.T) {
	root := newWorkspace(t, testAssembly)

	res := arka(t, root, "run", "TICKET_CREATE", `{"ticketId":`)
	assert.Equal(t, engine.ExitValidation, res.code)
	assert.Contains(t, res.stderr, "[ARKA-RUNNER] ERROR: invalid input JSON")

	bad := strings.Replace(ticketJSON, "TCK-US-12-03-07-01", "nope", 1)
	res = arka(t, root, "run", "TICKET_CREATE", bad)
	assert.Equal(t, engine.ExitValidation, res.code)
	assert.Empty(t, res.stdout)

	res = arka(t, root, "run", "WIDGET_CREATE")
	assert.Equal(t, engine.ExitConfig, res.code)
	assert.Contains(t, res.stderr, "[ARKA-RUNNER] ERROR: action key not found: WIDGET_CREATE")

	res = arka(t, t.TempDir(), "run", "TICKET_CREATE", ticketJSON)
	assert.Equal(t, engine.ExitConfig, res.code)
}

func TestRunMissingNamespace(t *testing.T) {
	doc := strings.Replace(testAssembly, "ARKORE08-PATHS-GOVERNANCE:", "ARKORE08-OTHER:", 1)
	root := newWorkspace(t, doc)
	res := arka(t, root, "run", "TICKET_CREATE", ticketJSON)
	assert.Equal(t, engine.ExitConfig, res.code)
	assert.Equal(t, "[ARKA-RUNNER] ERROR: brick not enabled or missing in assembly: ARKORE08-PATHS-GOVERNANCE\n", res.stderr)
	assert.Empty(t, res.stdout)
}

func TestRunReadsInputFromStdin(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs/FEAT-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs/FEAT-1/D-1.md"), []byte("# hello\n"), 0o644))

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(`{"featureId":"FEAT-1","documentId":"D-1"}`))
	code := execute(context.Background(), cmd, []string{"--root", root, "--assembly", "assembly.yaml", "run", "DOCUMENT_READ", "-", "--render"})
	require.Equal(t, 0, code, stderr.String())

	var result engine.Result
	require.NoError(t, json.Unmarshal([]byte(lines(stderr.String())[0]), &result))
	assert.Equal(t, "# hello\n", result.Outputs["content"])
	// Without color the rendered markdown is the raw text.
	assert.Contains(t, stderr.String(), "\n# hello\n")
}

func TestResolveCommand(t *testing.T) {
	root := newWorkspace(t, testAssembly)

	res := arka(t, root, "resolve", "ARKORE09-NAMING:regex")
	require.Equal(t, 0, res.code, res.stderr)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &v))
	assert.Equal(t, `^TCK-US-\d+-\d+-\d+-\d+$`, v["ticket"])

	res = arka(t, root, "resolve", "ARKORE09-NAMING:regex.epic")
	assert.Equal(t, engine.ExitConfig, res.code)

	res = arka(t, root, "resolve", "--lenient", "ARKORE09-NAMING:regex.epic")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "null\n", res.stdout)
}

func TestActionsCommand(t *testing.T) {
	root := newWorkspace(t, testAssembly)

	res := arka(t, root, "actions", "--json")
	require.Equal(t, 0, res.code, res.stderr)
	var rows []actionRow
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rows))
	byKey := map[string]actionRow{}
	for _, r := range rows {
		byKey[r.Key] = r
	}
	assert.Equal(t, "custom", byKey["TICKET_CREATE"].Handler)
	assert.Equal(t, "READ", byKey["DOCUMENT_READ"].Handler)
	assert.Equal(t, "docs", byKey["DOCUMENT_READ"].Group)
	assert.Equal(t, "document", byKey["DOCUMENT_READ"].Type)

	res = arka(t, root, "actions", "--group", "docs")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "DOCUMENT_CREATE")
	assert.NotContains(t, res.stdout, "TICKET_CREATE ")
	assert.Contains(t, res.stdout, "aliases: ")
}

func TestMemoryShowAfterRun(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	require.Equal(t, 0, arka(t, root, "run", "TICKET_CREATE", ticketJSON).code)

	res := arka(t, root, "memory", "show", "--json", "--since", "1h")
	require.Equal(t, 0, res.code, res.stderr)
	var rows []indexRow
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "TICKET_CREATE", rows[0].ActionKey)
	assert.Equal(t, "success", rows[0].Status)
	assert.Contains(t, rows[0].Scope, `"ticketId":"TCK-US-12-03-07-01"`)

	res = arka(t, root, "--actor", "someone-else", "memory", "show")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "nothing recorded")

	res = arka(t, root, "memory", "show", "--since", "whenever-ish")
	assert.Equal(t, engine.ExitValidation, res.code)
}

func TestIndexRowsSince(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	index := map[string]memory.IndexEntry{
		`{"a":"1"}`: {Last: "2025-01-15T11:30:00.000Z", ActionKey: "A", Status: "success"},
		`{"a":"2"}`: {Last: "2025-01-14T09:00:00.000Z", ActionKey: "B", Status: "success"},
		`{"a":"3"}`: {Last: "garbage", ActionKey: "C", Status: "success"},
	}
	rows, err := indexRows(index, "", now)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = indexRows(index, "2h", now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].ActionKey)

	rows, err = indexRows(index, "2025-01-14", now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].ActionKey)
}

func TestEmitCommand(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	res := arka(t, root, "emit", "ORDER_CREATED", "--payload", `{"title":"x"}`, "--scope", `{"ticketId":"T-1"}`)
	require.Equal(t, 0, res.code, res.stderr)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &ev))
	assert.Equal(t, "TICKET_CREATED", ev["event"])
	assert.Equal(t, "ARKA-RUNNER", ev["source_brick"])
	assert.Equal(t, map[string]any{"ticketId": "T-1"}, ev["scope"])
	assert.Equal(t, map[string]any{"title": "x"}, ev["details"])
	assert.Contains(t, res.stderr, "ORDER_CREATED →")

	for _, bad := range []string{`"x"`, `[1]`} {
		res = arka(t, root, "emit", "ORDER_CREATED", "--scope", bad)
		assert.Equal(t, engine.ExitValidation, res.code, bad)
		assert.Empty(t, res.stdout, bad)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	res := arka(t, root, "config", "set", "profile", "staging")
	require.Equal(t, 0, res.code, res.stderr)
	data, err := os.ReadFile(filepath.Join(root, ".arka", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "profile: staging\n", string(data))

	res = arka(t, root, "config", "show")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "actor: runner")
	assert.Contains(t, res.stdout, "assembly: "+filepath.Join(root, "assembly.yaml"))

	res = arka(t, root, "config", "set", "nope", "x")
	assert.NotEqual(t, 0, res.code)
}

func TestVersionCommand(t *testing.T) {
	root := newWorkspace(t, testAssembly)
	res := arka(t, root, "version")
	require.Equal(t, 0, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "arka version "+Version))
}

func TestParseInput(t *testing.T) {
	in, err := parseInput("", nil)
	require.NoError(t, err)
	assert.Empty(t, in)

	in, err = parseInput(`{"n": 3, "s": "x"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), in["n"])

	_, err = parseInput(`[1,2]`, nil)
	assert.Equal(t, engine.ExitValidation, engine.ExitCode(err))

	in, err = parseInput("-", strings.NewReader(`{"a":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "b", in["a"])
}

func TestMissingFields(t *testing.T) {
	asm, err := assembly.Parse([]byte(testAssembly), assembly.FormatYAML)
	require.NoError(t, err)
	table, err := action.Load(asm)
	require.NoError(t, err)

	def, err := table.Find("DOCUMENT_CREATE")
	require.NoError(t, err)
	assert.Equal(t, []string{"epicId", "documentId", "title"}, missingFields(def, map[string]any{"featureId": "F-1"}))

	def, err = table.Find("DOCUMENT_READ")
	require.NoError(t, err)
	assert.Empty(t, missingFields(def, map[string]any{"featureId": "F-1", "epicId": "E", "documentId": "D"}))
}
