package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/wayfinder/pkg/client"
	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

const (
	sessionsURI    = "wayfinder://sessions"
	graphURIPrefix = "wayfinder://graph/"
	promptName     = "wayfinder-navigation"
)

// Server adapts wayfinder-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"wayfinder",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		sessionsURI,
		"Navigation Sessions",
		mcp.WithResourceDescription("Most recently updated navigation sessions with their URLs"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSessions)

	for _, uc := range entity.WorkflowUseCases {
		s.mcpServer.AddResource(mcp.NewResource(
			graphURIPrefix+string(uc),
			fmt.Sprintf("Relationship graph (%s)", uc),
			mcp.WithResourceDescription("Entity types and how they relate in "+string(uc)),
			mcp.WithMIMEType("application/json"),
		), s.handleReadGraph)
	}
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"parse_url",
		mcp.WithDescription("Decode an application URL into its navigation state and matched route."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Path plus optional query, e.g. '/main/compliance/clusters'")),
	), s.handleParseURL)

	s.mcpServer.AddTool(mcp.NewTool(
		"generate_url",
		mcp.WithDescription("Build the canonical URL of a navigation state."),
		mcp.WithString("state", mcp.Required(), mcp.Description(`State as JSON: {"use_case":"compliance","state_stack":[{"t":"CLUSTER"}]}`)),
	), s.handleGenerateURL)

	s.mcpServer.AddTool(mcp.NewTool(
		"relationships",
		mcp.WithDescription("List entity types related to a type in a use case's graph."),
		mcp.WithString("use_case", mcp.Required(), mcp.Description("compliance, configmanagement or vulnerability-management")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Entity type, e.g. 'DEPLOYMENT'")),
		mcp.WithString("relationship", mcp.Description("CONTAINS (default), MATCHES, PARENTS or CHILDREN")),
	), s.handleRelationships)

	s.mcpServer.AddTool(mcp.NewTool(
		"open_session",
		mcp.WithDescription("Start a navigation session at a URL. Returns the session id."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Starting URL")),
	), s.handleOpenSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"navigate",
		mcp.WithDescription("Apply one navigation action to a session and return the resulting URL."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to modify")),
		mcp.WithString("op", mcp.Required(), mcp.Description("Action, e.g. push_list, push_list_item, push_related_entity, pop, base")),
		mcp.WithString("type", mcp.Description("Entity type for push_list, push_related_entity, reset and reset_page")),
		mcp.WithString("id", mcp.Description("Entity id for push_list_item, push_related_entity and resets")),
		mcp.WithString("use_case", mcp.Description("Target use case for reset")),
		mcp.WithNumber("page", mcp.Description("Page offset for set_page")),
		mcp.WithString("search", mcp.Description(`Search as JSON for set_search, e.g. {"Cluster":["prod"]}`)),
		mcp.WithString("sort", mcp.Description(`Sort as JSON for set_sort, e.g. [{"id":"name","desc":true}]`)),
	), s.handleNavigate)

	s.mcpServer.AddTool(mcp.NewTool(
		"session_history",
		mcp.WithDescription("Show the recent actions of a session, newest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to inspect")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 20)")),
	), s.handleHistory)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Explains navigation stacks, use cases and the available actions"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadSessions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := s.apiClient.Sessions(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}
	return jsonResource(request.Params.URI, sessions)
}

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uc, ok := strings.CutPrefix(request.Params.URI, graphURIPrefix)
	if !ok || uc == "" {
		return nil, fmt.Errorf("unknown resource: %s", request.Params.URI)
	}
	snap, err := s.apiClient.Graph(ctx, entity.UseCase(uc))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}
	return jsonResource(request.Params.URI, snap)
}

func (s *Server) handleParseURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseString(request, "url", "")
	if raw == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	resp, err := s.apiClient.ParseURL(ctx, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGenerateURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var state workflow.State
	if err := json.Unmarshal([]byte(mcp.ParseString(request, "state", "")), &state); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid state: %v", err)), nil
	}
	u, err := s.apiClient.GenerateURL(ctx, state)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(u), nil
}

func (s *Server) handleRelationships(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uc := entity.UseCase(mcp.ParseString(request, "use_case", ""))
	t := entity.Type(strings.ToUpper(mcp.ParseString(request, "type", "")))
	rel := graph.Relationship(strings.ToUpper(mcp.ParseString(request, "relationship", "")))

	types, err := s.apiClient.Relationships(ctx, uc, t, rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if len(types) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no related types", t)), nil
	}
	names := make([]string, len(types))
	for i, rt := range types {
		names[i] = string(rt)
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) handleOpenSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.apiClient.OpenSession(ctx, mcp.ParseString(request, "url", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session: %s\nURL: %s", sess.ID, sess.URL)), nil
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "session_id", "")
	action := navigator.Action{
		Op:      navigator.Op(mcp.ParseString(request, "op", "")),
		Type:    entity.Type(strings.ToUpper(mcp.ParseString(request, "type", ""))),
		ID:      mcp.ParseString(request, "id", ""),
		UseCase: entity.UseCase(mcp.ParseString(request, "use_case", "")),
		Page:    mcp.ParseInt(request, "page", 0),
	}
	if raw := mcp.ParseString(request, "search", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &action.Search); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid search: %v", err)), nil
		}
	}
	if raw := mcp.ParseString(request, "sort", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &action.Sort); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid sort: %v", err)), nil
		}
	}

	sess, err := s.apiClient.Apply(ctx, id, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	frames := make([]string, 0, sess.State.Len())
	for _, f := range sess.State.Stack() {
		frames = append(frames, f.String())
	}
	return mcp.NewToolResultText(fmt.Sprintf("URL: %s\nStack: %s\nVersion: %d",
		sess.URL, strings.Join(frames, " > "), sess.Version)), nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	events, err := s.apiClient.History(ctx, mcp.ParseString(request, "session_id", ""), mcp.ParseInt(request, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	var b strings.Builder
	for _, evt := range events {
		fmt.Fprintf(&b, "%s %s %s\n", evt.TsEvent.Format("15:04:05"), evt.EventType, evt.URL)
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("no events"), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are navigating a security product through wayfinder.

Concepts:
- Use case: an application area. compliance, configmanagement and vulnerability-management use the generic routes.
- Stack: the drill-down path, a list of frames. A frame without an id is a list, with an id it is one entity.
- The page shows the first frame, or an entity plus its tab list; later frames open in the side panel.
- Pushing a type that would make the path meaningless trims the stack to its last entity.

Start with 'open_session' or 'parse_url', check reachable types with 'relationships',
then drill down with 'navigate' (push_list, push_list_item, push_related_entity, pop, base).
Every navigate call returns the URL to show the user.
`

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
