package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToolDefinitions(t *testing.T) {
	defs := GetToolDefinitions()
	require.NotEmpty(t, defs)

	seen := map[string]bool{}
	for _, d := range defs {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.False(t, seen[d.Name], "duplicate tool name %s", d.Name)
		seen[d.Name] = true

		var schema map[string]interface{}
		require.NoError(t, json.Unmarshal(d.InputSchema, &schema), "tool %s has invalid JSON schema", d.Name)
		assert.Equal(t, "object", schema["type"])
	}

	for _, name := range []string{
		ToolBuild, ToolStatus, ToolRetrieve, ToolExpand, ToolGet, ToolSearch,
		ToolRelated, ToolOmitted, ToolHistory, ToolBlame, ToolDiff, ToolWatch,
		ToolConfirmRule, ToolCorrectRule, ToolRejectRule, ToolDeprecateRule,
		ToolSnapshotCreate, ToolSnapshotCompare, ToolSnapshotRollback,
	} {
		assert.True(t, seen[name], "missing tool definition for %s", name)
	}
}
