package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-blank string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalStringSlice extracts an optional list argument. Numbers are
// accepted and formatted, since agents often pass database ids unquoted.
func optionalStringSlice(request mcp.CallToolRequest, key string) []string {
	raw := getAnySliceArg(request, key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case float64:
			out = append(out, strconv.FormatInt(int64(x), 10))
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out
}

// getAnySliceArg extracts a []interface{} argument from the tool request.
// Returns nil if the key is not present.
func getAnySliceArg(request mcp.CallToolRequest, key string) []interface{} {
	args := request.GetArguments()
	if args == nil {
		return nil
	}
	raw, ok := args[key]
	if !ok {
		return nil
	}
	slice, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	return slice
}

// lookupDatabase resolves a database reference, either a numeric id or a
// registered name.
func (s *MCPServer) lookupDatabase(ctx context.Context, ref string) (*model.DatabaseConfig, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		db, err := s.store.GetDatabase(ctx, id)
		if err == nil {
			return db, nil
		}
		if !errors.Is(err, config.ErrNotFound) {
			return nil, err
		}
	}
	db, err := s.store.GetDatabaseByName(ctx, ref)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("database %q not found; call list_databases to see the registered ones", ref)
		}
		return nil, err
	}
	return db, nil
}

// requireDatabase resolves the required database argument key. A non-nil
// result is the tool error to return.
func (s *MCPServer) requireDatabase(ctx context.Context, request mcp.CallToolRequest, key string) (*model.DatabaseConfig, *mcp.CallToolResult) {
	ref, err := requireString(request, key)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	db, err := s.lookupDatabase(ctx, ref)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return db, nil
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// envelopeResult turns a broker envelope into a tool result: its data on
// success, its error message otherwise.
func envelopeResult(resp model.Response) (*mcp.CallToolResult, error) {
	if !resp.Success {
		return toolError("%s", resp.Error)
	}
	return successJSON(resp.Data)
}
