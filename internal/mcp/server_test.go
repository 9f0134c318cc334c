package mcp_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/mcp"
)

type recorder struct {
	mu    sync.Mutex
	calls []dispatch.Args
}

func (r *recorder) handler(reply string, err error) dispatch.Handler {
	return func(_ context.Context, args dispatch.Args) (dispatch.Reply, error) {
		r.mu.Lock()
		r.calls = append(r.calls, args)
		r.mu.Unlock()
		return dispatch.Reply{Message: reply}, err
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func connect(t *testing.T) (*mcpsdk.ClientSession, *recorder) {
	t.Helper()
	rec := &recorder{}
	reg := dispatch.NewRegistry()
	cmds := []dispatch.Command{
		{
			Name:        "create_file",
			Description: "Create an empty file",
			Slots: []dispatch.SlotSpec{{
				Name:        "name",
				Description: "file name",
				Default:     "new_file.txt",
				Pattern:     `[A-Za-z0-9_][A-Za-z0-9._-]*`,
				MaxLen:      255,
			}},
			Handler: rec.handler("Created file.", nil),
		},
		{Name: "time", Description: "Tell the time", Handler: rec.handler("It is noon.", nil)},
		{Name: "screenshot", Description: "Take a screenshot", Handler: rec.handler("", errors.New("no tool"))},
	}
	for _, c := range cmds {
		if err := reg.Register(c); err != nil {
			t.Fatal(err)
		}
	}

	srv := mcp.NewServer(reg, dispatch.New(reg), "test")
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ctx := t.Context()
	ss, err := srv.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, rec
}

func text(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestServer_ListsCommands(t *testing.T) {
	t.Parallel()
	cs, _ := connect(t)

	res, err := cs.ListTools(t.Context(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if want := []string{"create_file", "screenshot", "time"}; !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tool      string
		args      map[string]any
		wantError bool
		wantText  string
		wantCalls int
	}{
		{"valid slot", "create_file", map[string]any{"name": "test.txt"}, false, "Created file.", 1},
		{"default slot", "create_file", nil, false, "Created file.", 1},
		{"shell metacharacters", "create_file", map[string]any{"name": "x; rm -rf /"}, true, "", 0},
		{"undeclared slot", "time", map[string]any{"zone": "UTC"}, true, "", 0},
		{"non-string argument", "create_file", map[string]any{"name": 7}, true, `argument "name" must be a string`, 0},
		{"handler failure", "screenshot", nil, true, "Sorry, I encountered an error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cs, rec := connect(t)
			res, err := cs.CallTool(t.Context(), &mcpsdk.CallToolParams{Name: tt.tool, Arguments: tt.args})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v (%s)", res.IsError, tt.wantError, text(res))
			}
			if !strings.Contains(text(res), tt.wantText) {
				t.Errorf("text = %q, want it to contain %q", text(res), tt.wantText)
			}
			if n := rec.count(); n != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}
