package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/store"
	"github.com/idealoop/idealoop/internal/testutil"
	"github.com/mark3labs/mcp-go/mcp"
)

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func seeded(t *testing.T) (*Server, *testutil.MemoryStore) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ms := testutil.NewMemoryStore()
	ms.Seed(store.Record{ID: "old", UserID: "u1", Summary: "Old idea", LastOpenedAt: base})
	ms.Seed(store.Record{ID: "new", UserID: "u1", Summary: "Trip to Japan", Script: strings.Repeat("a", 200), FullConversation: "I went to Japan", LastOpenedAt: base.Add(time.Hour)})
	ms.Seed(store.Record{ID: "other", UserID: "u2", Summary: "Not mine", LastOpenedAt: base.Add(2 * time.Hour)})
	return New(ms, "u1"), ms
}

func TestListIdeas(t *testing.T) {
	srv, ms := seeded(t)

	res, err := srv.listIdeas(context.Background(), call("list_ideas", nil))
	if err != nil {
		t.Fatalf("listIdeas: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var ideas []ideaSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &ideas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ideas) != 2 || ideas[0].ID != "new" || ideas[1].ID != "old" {
		t.Fatalf("ideas = %+v", ideas)
	}
	if !ideas[0].HasScript || !strings.HasSuffix(ideas[0].Preview, "...") || len([]rune(ideas[0].Preview)) != previewLen+3 {
		t.Errorf("preview = %q", ideas[0].Preview)
	}
	if ideas[1].HasScript {
		t.Error("old idea has no script")
	}

	if creates, updates := ms.Counts(); creates != 0 || updates != 0 {
		t.Errorf("listing must not write: creates=%d updates=%d", creates, updates)
	}
}

func TestListIdeasLimit(t *testing.T) {
	srv, _ := seeded(t)

	res, err := srv.listIdeas(context.Background(), call("list_ideas", map[string]any{"limit": float64(1)}))
	if err != nil {
		t.Fatal(err)
	}
	var ideas []ideaSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &ideas); err != nil {
		t.Fatal(err)
	}
	if len(ideas) != 1 || ideas[0].ID != "new" {
		t.Errorf("ideas = %+v", ideas)
	}
}

func TestListIdeasStoreError(t *testing.T) {
	srv, ms := seeded(t)
	ms.ListErr = errors.New("disk on fire")

	res, err := srv.listIdeas(context.Background(), call("list_ideas", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "disk on fire") {
		t.Errorf("expected tool error, got %+v", res)
	}
}

func TestGetIdea(t *testing.T) {
	srv, _ := seeded(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
		wantID  string
	}{
		{name: "own record", args: map[string]any{"id": "new"}, wantID: "new"},
		{name: "other user", args: map[string]any{"id": "other"}, wantErr: `no idea with id "other"`},
		{name: "missing", args: map[string]any{"id": "nope"}, wantErr: `no idea with id "nope"`},
		{name: "no id", args: nil, wantErr: "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.getIdea(context.Background(), call("get_idea", tt.args))
			if err != nil {
				t.Fatal(err)
			}
			text := resultText(t, res)
			if tt.wantErr != "" {
				if !res.IsError || !strings.Contains(text, tt.wantErr) {
					t.Errorf("got %q (isError=%v), want error containing %q", text, res.IsError, tt.wantErr)
				}
				return
			}
			var rec store.Record
			if err := json.Unmarshal([]byte(text), &rec); err != nil {
				t.Fatal(err)
			}
			if rec.ID != tt.wantID || rec.FullConversation != "I went to Japan" {
				t.Errorf("record = %+v", rec)
			}
		})
	}
}
