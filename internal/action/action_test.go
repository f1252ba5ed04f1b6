package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkaos/arka/internal/assembly"
)

const tableYAML = `
ARKORE12-ACTION-KEYS:
  aliases:
    LEGACY_CREATE: FEATURE_CREATE
  action_keys:
    US_CREATE:
      paths: {dir_ref: "ARKORE08-PATHS-GOVERNANCE:path_templates.us_dir", dir_is_resolved: true}
      naming: {regex_ref: "ARKORE09-NAMING:regex.user_story"}
      templates: {readme_ref: "ARKORE13-TEMPLATES:us.readme"}
      post:
        - "ARKORE14-MEMORY-OPS:operations.MEMORY_UPDATE"
        - "ARKORE16-EVENT-BUS:emit.{TYPE}_CREATED"
    TICKET_CLOSE:
      move: {keep: ["*_SUMMARY.md"]}
    delivery:
      DELIVERY_SUBMIT:
        routes:
          notify_ref: "ARKORE15-AGP-REACTIVE-CONTROL:routes.notify"
          control_ref: "ARKORE15-AGP-REACTIVE-CONTROL:routes.control"
    documents:
      DOCUMENT_CREATE:
        paths: {dir_ref: "ARKORE08-PATHS-GOVERNANCE:path_templates.docs"}
        file_type: json
        validations: ["ARKORE09-NAMING:regex.document", "schema_ok"]
      DOCUMENT_PUBLISH:
        operation: publish
    FEATURE_CREATE:
      operation: CREATE
`

func loadTable(t *testing.T) *Table {
	t.Helper()
	asm, err := assembly.Parse([]byte(tableYAML), assembly.FormatYAML)
	require.NoError(t, err)
	tbl, err := Load(asm)
	require.NoError(t, err)
	return tbl
}

func TestFindDirectGroupedAliased(t *testing.T) {
	tbl := loadTable(t)

	us, err := tbl.Find("US_CREATE")
	require.NoError(t, err)
	assert.Equal(t, OpCreate, us.Operation)
	assert.Empty(t, us.Group)
	assert.True(t, us.Paths.DirIsResolved)
	assert.Equal(t, "ARKORE09-NAMING:regex.user_story", us.NamingRegexRef)
	assert.Equal(t, "us", us.Type().Name)

	doc, err := tbl.Find("DOCUMENT_CREATE")
	require.NoError(t, err)
	assert.Equal(t, "documents", doc.Group)
	assert.Equal(t, "json", doc.PathSpec().FileType)
	assert.Equal(t, []string{"ARKORE09-NAMING:regex.document", "schema_ok"}, doc.Validations)

	pub, err := tbl.Find("DOCUMENT_PUBLISH")
	require.NoError(t, err)
	assert.Equal(t, OpPublish, pub.Operation)

	legacy, err := tbl.Find("LEGACY_CREATE")
	require.NoError(t, err)
	assert.Equal(t, "FEATURE_CREATE", legacy.Key)
	assert.Equal(t, "LEGACY_CREATE", legacy.Requested)
	assert.True(t, legacy.Aliased())
}

func TestDefaultAliasResolvesToTicket(t *testing.T) {
	tbl := loadTable(t)
	d, err := tbl.Find("ORDER_CLOSE")
	require.NoError(t, err)
	assert.Equal(t, "TICKET_CLOSE", d.Key)
	assert.Equal(t, []string{"*_SUMMARY.md"}, d.Keep)
	assert.True(t, d.HasKeep)
}

func TestFindMissingKey(t *testing.T) {
	tbl := loadTable(t)
	_, err := tbl.Find("NOPE_CREATE")
	require.Error(t, err)
	assert.True(t, assembly.IsConfigError(err))
	assert.Equal(t, "action key not found: NOPE_CREATE", err.Error())
}

func TestLoadWithoutNamespace(t *testing.T) {
	asm, err := assembly.Parse([]byte(`OTHER: {}`), assembly.FormatYAML)
	require.NoError(t, err)
	_, err = Load(asm)
	require.Error(t, err)
	var ce *assembly.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, assembly.ReasonMissingNamespace, ce.Reason)
}

func TestRoutesKeepOrder(t *testing.T) {
	tbl := loadTable(t)
	d, err := tbl.Find("DELIVERY_SUBMIT")
	require.NoError(t, err)
	assert.Equal(t, []string{"notify", "control"}, d.RouteNames)
	assert.Equal(t, "ARKORE15-AGP-REACTIVE-CONTROL:routes.control", d.Routes["control"])
}

func TestKeysListing(t *testing.T) {
	tbl := loadTable(t)
	var keys []string
	for _, e := range tbl.Keys() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"US_CREATE", "TICKET_CLOSE", "DELIVERY_SUBMIT", "DOCUMENT_CREATE", "DOCUMENT_PUBLISH", "FEATURE_CREATE"}, keys)
	assert.Contains(t, tbl.AliasNames(), "ORDER_CREATE")
	assert.Contains(t, tbl.AliasNames(), "LEGACY_CREATE")
}

func TestUnknownOperationIsConfigError(t *testing.T) {
	v, err := assembly.FromInterface(map[string]any{"operation": "EXPLODE"})
	require.NoError(t, err)
	_, err = FromValue("X_CREATE", v)
	require.Error(t, err)
	assert.True(t, assembly.IsConfigError(err))
}

func TestInferOperation(t *testing.T) {
	op, ok := InferOperation("FEATURE_ARCHIVE")
	assert.True(t, ok)
	assert.Equal(t, OpArchive, op)

	_, ok = InferOperation("DELIVERY_SUBMIT")
	assert.False(t, ok)
	_, ok = InferOperation("NOUNDERSCORE")
	assert.False(t, ok)
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		raw   string
		kind  StepKind
		topic string
	}{
		{"ARKORE14-MEMORY-OPS:operations.MEMORY_UPDATE", StepMemory, ""},
		{"ARKORE16-EVENT-BUS:emit.{TYPE}_CREATED", StepEmit, "DOCUMENT_CREATED"},
		{"emit:{TYPE}_{ACTION}", StepEmit, "DOCUMENT_DOCUMENT_CREATE"},
		{"emit( {type}_seen )", StepEmit, "document_seen"},
		{"ARKORE16-EVENT-BUS:emit.MEMORY_UPDATED", StepEmit, "MEMORY_UPDATED"},
		{"notify the owner", StepOther, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s := ParseStep(tt.raw, "document", "DOCUMENT_CREATE")
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.topic, s.Topic)
		})
	}
}

func TestWantsMemory(t *testing.T) {
	tbl := loadTable(t)
	us, err := tbl.Find("US_CREATE")
	require.NoError(t, err)
	assert.True(t, us.WantsMemory())
	steps := us.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "US_CREATED", steps[1].Topic)

	feat, err := tbl.Find("FEATURE_CREATE")
	require.NoError(t, err)
	assert.False(t, feat.WantsMemory())
}
