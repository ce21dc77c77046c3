package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/wayfinder/pkg/api"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/logging"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
)

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "wayfinder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	nav := navigator.New(st, navigator.WithLogger(logging.Discard()))
	ts := httptest.NewServer(api.NewServer(nav, nil, logging.Discard(), "").Handler())
	t.Cleanup(ts.Close)
	return NewServer(ts.URL)
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestMCPServer_ParseURL(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleParseURL(context.Background(), callTool("parse_url", map[string]any{
		"url": "/main/vulnerability-management/cluster/c1/image-cves",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp api.ParseResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Equal(t, 2, resp.State.Len())
	require.NotNil(t, resp.Match)
}

func TestMCPServer_GenerateURL(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleGenerateURL(context.Background(), callTool("generate_url", map[string]any{
		"state": `{"use_case":"compliance","state_stack":[{"t":"CLUSTER"}]}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/main/compliance/clusters", resultText(t, result))

	result, err = s.handleGenerateURL(context.Background(), callTool("generate_url", map[string]any{"state": "{"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPServer_Relationships(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleRelationships(context.Background(), callTool("relationships", map[string]any{
		"use_case":     "vulnerability-management",
		"type":         "cluster",
		"relationship": "children",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "NAMESPACE\nNODE\nCLUSTER_CVE", resultText(t, result))

	result, err = s.handleRelationships(context.Background(), callTool("relationships", map[string]any{
		"use_case": "risk",
		"type":     "DEPLOYMENT",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPServer_Navigate(t *testing.T) {
	ctx := context.Background()
	s := newTestMCP(t)

	result, err := s.handleOpenSession(ctx, callTool("open_session", map[string]any{"url": "/main/compliance/clusters"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	first := strings.SplitN(resultText(t, result), "\n", 2)[0]
	id := strings.TrimPrefix(first, "Session: ")
	require.NotEmpty(t, id)

	result, err = s.handleNavigate(ctx, callTool("navigate", map[string]any{
		"session_id": id,
		"op":         "push_list_item",
		"id":         "c1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "URL: /main/compliance/clusters?workflowState[0][t]=CLUSTER&workflowState[0][i]=c1")
	assert.Contains(t, text, "Version: 2")

	result, err = s.handleNavigate(ctx, callTool("navigate", map[string]any{
		"session_id": id,
		"op":         "set_search",
		"search":     `{"Cluster":["prod"]}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleNavigate(ctx, callTool("navigate", map[string]any{
		"session_id": id,
		"op":         "set_sort",
		"sort":       "not json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleHistory(ctx, callTool("session_history", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, 3, strings.Count(resultText(t, result), "\n"))
}

func TestMCPServer_ReadResources(t *testing.T) {
	ctx := context.Background()
	s := newTestMCP(t)

	contents, err := s.handleReadGraph(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: graphURIPrefix + "configmanagement"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)

	var snap graph.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, "configuration", snap.Name)

	_, err = s.handleReadGraph(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "wayfinder://other"},
	})
	assert.Error(t, err)

	contents, err = s.handleReadSessions(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: sessionsURI},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)
}

func TestMCPServer_Prompt(t *testing.T) {
	s := NewServer("http://127.0.0.1:1")

	result, err := s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: promptName},
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	_, err = s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: "other"},
	})
	assert.Error(t, err)
}
