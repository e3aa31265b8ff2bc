// Package mcpserver exposes saved video ideas to MCP clients over stdio.
// It only reads: listing and fetching never touch lastOpenedAt.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/idealoop/idealoop/internal/reconciler"
	"github.com/idealoop/idealoop/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "idealoop"
	serverVersion = "1.0.0"

	defaultLimit = 20
	previewLen   = 160
)

// Server answers history queries for a single user.
type Server struct {
	recon  *reconciler.Reconciler
	userID string
	mcp    *server.MCPServer
}

// ideaSummary is one row of list_ideas.
type ideaSummary struct {
	ID           string `json:"id"`
	Summary      string `json:"summary"`
	HasScript    bool   `json:"has_script"`
	Preview      string `json:"preview,omitempty"`
	LastOpenedAt string `json:"last_opened_at"`
}

func New(s store.Store, userID string) *Server {
	srv := &Server{
		recon:  reconciler.New(s),
		userID: userID,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
		),
	}

	srv.mcp.AddTool(mcp.NewTool("list_ideas",
		mcp.WithDescription("List saved video ideas, most recently opened first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of ideas to return (default 20)")),
	), srv.listIdeas)

	srv.mcp.AddTool(mcp.NewTool("get_idea",
		mcp.WithDescription("Get one saved idea with its full conversation and generated script"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id from list_ideas")),
	), srv.getIdea)

	return srv
}

// ServeStdio blocks serving MCP on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Printf("MCP: serving history for user %s on stdio", s.userID)
	return server.ServeStdio(s.mcp)
}

func (s *Server) listIdeas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	recs, err := s.recon.ListConversations(ctx, s.userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]ideaSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, ideaSummary{
			ID:           r.ID,
			Summary:      r.Summary,
			HasScript:    r.Script != "",
			Preview:      preview(r.Script),
			LastOpenedAt: r.LastOpenedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return jsonResult(out)
}

func (s *Server) getIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := s.recon.Load(ctx, s.userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no idea with id %q", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func preview(script string) string {
	r := []rune(script)
	if len(r) <= previewLen {
		return script
	}
	return string(r[:previewLen]) + "..."
}
