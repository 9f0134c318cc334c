// Package mcp serves the command registry as Model Context Protocol tools.
//
// Each registered command becomes one tool whose input schema mirrors the
// command's slots. Tool calls are dispatched through the same
// [dispatch.Dispatcher] as spoken commands, at full confidence, so the
// allow-list and slot validation apply unchanged.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/pipeline"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
)

const serverName = "voxprivate"

// Dispatcher executes intents. [*dispatch.Dispatcher] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, in intent.Intent) dispatch.Result
}

// NewServer builds an MCP server exposing every command in reg.
func NewServer(reg *dispatch.Registry, d Dispatcher, version string) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil)
	for _, cmd := range reg.Commands() {
		srv.AddTool(toolFor(cmd), handlerFor(cmd.Name, d))
	}
	return srv
}

// ServeStdio runs srv over stdin/stdout until ctx is cancelled or the client
// disconnects.
func ServeStdio(ctx context.Context, srv *mcpsdk.Server) error {
	slog.Info("mcp: serving commands over stdio")
	if err := srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// toolFor converts a command into a tool definition with a JSON Schema of
// string properties.
func toolFor(cmd dispatch.Command) *mcpsdk.Tool {
	props := make(map[string]any, len(cmd.Slots))
	required := []string{}
	for _, s := range cmd.Slots {
		p := map[string]any{"type": "string"}
		if s.Description != "" {
			p["description"] = s.Description
		}
		if s.Default != "" {
			p["default"] = s.Default
		}
		if s.MaxLen > 0 {
			p["maxLength"] = s.MaxLen
		}
		if s.Pattern != "" {
			p["pattern"] = "^(?:" + s.Pattern + ")$"
		}
		props[s.Name] = p
		if s.Required {
			required = append(required, s.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return &mcpsdk.Tool{
		Name:        cmd.Name,
		Description: cmd.Description,
		InputSchema: schema,
	}
}

func handlerFor(name string, d Dispatcher) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		slots, err := parseArgs(req.Params.Arguments)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		res := d.Dispatch(ctx, intent.Intent{Command: name, Slots: slots, Confidence: 1.0})
		slog.Info("mcp: tool call",
			"command", name,
			"success", res.Success,
			"kind", pipeline.Kind(res.Err),
			"duration", res.Duration)
		if !res.Success {
			return errorResult(res.Message), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Message}},
		}, nil
	}
}

// parseArgs accepts a JSON object whose values are all strings.
func parseArgs(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	slots := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a string", k)
		}
		slots[k] = s
	}
	return slots, nil
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}
