package mcp

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(&bytes.Buffer{}, &bytes.Buffer{}, nil, nil, nil)
}

func newTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	src := "package sample\n\n// Add returns the sum of a and b.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "math.go"), []byte(src), 0o644))
	return root
}

func TestServer_EngineForCachesByRoot(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)

	eng1, err := s.engineFor(root)
	require.NoError(t, err)
	eng2, err := s.engineFor(root)
	require.NoError(t, err)
	assert.Same(t, eng1, eng2)

	t.Cleanup(func() { s.Close() })
}

func TestServer_HandleToolsList(t *testing.T) {
	s := newTestServer(t)
	result, err := s.Handle("tools/list", nil)
	require.NoError(t, err)

	body, ok := result.(map[string]interface{})
	require.True(t, ok)
	tools, ok := body["tools"].([]ToolDefinition)
	require.True(t, ok)
	assert.NotEmpty(t, tools)
}

func TestServer_HandleToolsCallUnknownTool(t *testing.T) {
	s := newTestServer(t)
	params, err := json.Marshal(ToolCallRequest{Name: "kg.nonexistent", Arguments: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = s.Handle("tools/call", params)
	require.Error(t, err)
}

func TestServer_HandleUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Handle("nonexistent/method", nil)
	require.Error(t, err)
}

func TestServer_ResourcesList(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)

	buildArgs, err := json.Marshal(BuildRequest{Root: root})
	require.NoError(t, err)
	_, err = s.handleBuild(t.Context(), buildArgs)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng, err := s.engineFor(root)
	require.NoError(t, err)
	status, err := eng.Status(t.Context())
	require.NoError(t, err)
	require.NotZero(t, len(status.CountsByType))

	listResult, err := s.handleResourcesList(t.Context(), nil)
	require.NoError(t, err)
	assert.NotNil(t, listResult)
}
