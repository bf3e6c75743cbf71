package cli

import (
	"encoding/json"
	"testing"

	"github.com/lherron/msgmerge/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDescribeSchema(t *testing.T) {
	desc := describeSchema(schema.March2022)
	require.Len(t, desc.Tables, schema.March2022.Len())
	assert.Equal(t, "march2022", desc.Name)

	byName := make(map[string]tableDescription, len(desc.Tables))
	for _, td := range desc.Tables {
		byName[td.Name] = td
	}

	thumbs := byName["message_thumbnails"]
	assert.Empty(t, thumbs.IDColumn)
	assert.Equal(t, 1, thumbs.MaxBatch)
	assert.True(t, thumbs.DropFailingBatches)
	assert.Equal(t, "timestamp", thumbs.Timestamp)

	quotes := byName["messages_quotes"]
	assert.Equal(t, "_id", quotes.IDColumn)
	assert.Equal(t, []referenceDescription{{Column: "quoted_row_id", Target: "messages_quotes"}}, quotes.References)

	var ignored int
	for _, r := range byName["chat"].References {
		if r.Ignored {
			ignored++
		}
	}
	assert.Equal(t, 3, ignored)
}

func TestSchemaCommand(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema march2022 (")
	assert.Contains(t, out, "quoted_row_id→messages_quotes")
	assert.Contains(t, out, "(raw_string)")

	out, _, err = execute(t, "schema", "--json", "--schema", "LEGACY")
	require.NoError(t, err)
	var fromJSON schemaDescription
	require.NoError(t, json.Unmarshal([]byte(out), &fromJSON))
	assert.Equal(t, "legacy", fromJSON.Name)
	assert.Len(t, fromJSON.Tables, schema.Legacy.Len())

	out, _, err = execute(t, "schema", "--yaml")
	require.NoError(t, err)
	var fromYAML schemaDescription
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Len(t, fromYAML.Tables, schema.March2022.Len())
	for i, name := range schema.March2022.Names() {
		assert.Equal(t, name, fromYAML.Tables[i].Name)
	}
	assert.Equal(t, "skip", fromYAML.Tables[0].OnConflict)

	_, _, err = execute(t, "schema", "--json", "--yaml")
	assert.Error(t, err)
}

func TestSchemaFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("MSGMERGE_SCHEMA", "legacy")

	out, _, err := execute(t, "schema", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "legacy"`)
}
