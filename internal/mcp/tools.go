package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptelt/promptelt/internal/model"
)

// registerTools registers the broker operations as MCP tools.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery -----

	srv.AddTool(
		mcp.NewTool("list_databases",
			mcp.WithDescription(
				"List the registered databases with their id, name, type and whether "+
					"they are connected. Use this first to find the database to query.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListDatabases,
	)

	srv.AddTool(
		mcp.NewTool("get_schema",
			mcp.WithDescription(
				"Get the latest schema snapshot of a connected database: tables, "+
					"columns with types, nullability and keys, views and procedures.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("database",
				mcp.Required(),
				mcp.Description("Database id or name"),
			),
			mcp.WithBoolean("include_data",
				mcp.Description("Sample rows into the schema when no snapshot exists yet"),
			),
		),
		s.handleGetSchema,
	)

	// ----- Query -----

	srv.AddTool(
		mcp.NewTool("execute_query",
			mcp.WithDescription(
				"Execute SQL against a connected database. Reads are served from the "+
					"query cache when possible; the result says whether it was cached. "+
					"Writes bypass the cache and evict cached reads of the tables they touch.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("database",
				mcp.Required(),
				mcp.Description("Database id or name"),
			),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("SQL statement to execute"),
			),
			mcp.WithArray("params",
				mcp.Description("Positional parameters for the statement"),
			),
		),
		s.handleExecuteQuery,
	)

	srv.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(
				"Ask a natural-language question about one or more databases. Returns "+
					"an explanation, suggested SQL, a confidence score and follow-up "+
					"questions. The SQL is not executed; use execute_query for that.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to answer"),
			),
			mcp.WithArray("databases",
				mcp.Description("Database ids or names whose schemas give context"),
				mcp.WithStringItems(),
			),
			mcp.WithString("context",
				mcp.Description("Extra context such as the previous question"),
			),
		),
		s.handleAsk,
	)

	// ----- Schema drift -----

	srv.AddTool(
		mcp.NewTool("schema_changes",
			mcp.WithDescription(
				"List structural changes between consecutive schema snapshots of a "+
					"database, newest first, with a severity summary.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("database",
				mcp.Required(),
				mcp.Description("Database id or name"),
			),
			mcp.WithString("since",
				mcp.Description("Only changes after this RFC 3339 timestamp"),
			),
		),
		s.handleSchemaChanges,
	)

	srv.AddTool(
		mcp.NewTool("diff_snapshots",
			mcp.WithDescription("Diff two schema snapshots by id."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("from",
				mcp.Required(),
				mcp.Description("Id of the older snapshot"),
			),
			mcp.WithString("to",
				mcp.Required(),
				mcp.Description("Id of the newer snapshot"),
			),
		),
		s.handleDiffSnapshots,
	)

	// ----- Cache -----

	srv.AddTool(
		mcp.NewTool("invalidate_cache",
			mcp.WithDescription(
				"Remove cached query results whose query contains pattern or that "+
					"belong to database. With neither, the whole cache is cleared.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("pattern",
				mcp.Description("Case-insensitive substring of the cached query"),
			),
			mcp.WithString("database",
				mcp.Description("Database id or name"),
			),
		),
		s.handleInvalidateCache,
	)

	srv.AddTool(
		mcp.NewTool("service_stats",
			mcp.WithDescription("Connection count, cache hit rate and size, snapshot totals and uptime."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleServiceStats,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

func (s *MCPServer) handleListDatabases(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	dbs, err := s.store.ListDatabases(ctx)
	if err != nil {
		return toolError("Failed to list databases: %v", err)
	}

	type databaseInfo struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
		Connected   bool   `json:"connected"`
	}

	items := make([]databaseInfo, len(dbs))
	for i, d := range dbs {
		_, connected := s.broker.Connection(d.ID)
		items[i] = databaseInfo{
			ID:          d.ID,
			Name:        d.Name,
			Type:        d.Type,
			Description: d.Description,
			Connected:   connected,
		}
	}
	return successJSON(items)
}

func (s *MCPServer) handleGetSchema(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	db, errResult := s.requireDatabase(ctx, request, "database")
	if errResult != nil {
		return errResult, nil
	}
	return envelopeResult(s.broker.GetSchema(ctx, db.ID, request.GetBool("include_data", false)))
}

func (s *MCPServer) handleExecuteQuery(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	db, errResult := s.requireDatabase(ctx, request, "database")
	if errResult != nil {
		return errResult, nil
	}
	sql, err := requireString(request, "query")
	if err != nil {
		return toolError("%v", err)
	}

	resp := s.broker.ExecuteQuery(ctx, db.ID, sql, getAnySliceArg(request, "params"))
	if !resp.Success {
		return toolError("%s", resp.Error)
	}
	res, ok := resp.Data.(model.QueryResult)
	if !ok {
		return successJSON(resp.Data)
	}

	type queryOutput struct {
		model.QueryResult
		Truncated bool `json:"truncated,omitempty"`
	}
	out := queryOutput{QueryResult: res}
	if len(out.Rows) > s.cfg.MaxRows {
		out.Rows = out.Rows[:s.cfg.MaxRows]
		out.Truncated = true
	}
	return successJSON(out)
}

func (s *MCPServer) handleAsk(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	question, err := requireString(request, "question")
	if err != nil {
		return toolError("%v", err)
	}

	var ids []int64
	for _, ref := range optionalStringSlice(request, "databases") {
		db, err := s.lookupDatabase(ctx, ref)
		if err != nil {
			return toolError("%v", err)
		}
		ids = append(ids, db.ID)
	}

	return envelopeResult(s.broker.ProcessNaturalLanguageQuery(ctx, model.ProcessQueryRequest{
		Query:       question,
		DatabaseIDs: ids,
		Context:     optionalString(request, "context"),
	}, ""))
}

func (s *MCPServer) handleSchemaChanges(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	db, errResult := s.requireDatabase(ctx, request, "database")
	if errResult != nil {
		return errResult, nil
	}
	var since time.Time
	if raw := optionalString(request, "since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return toolError("since must be an RFC 3339 timestamp, got %q", raw)
		}
		since = t
	}
	return envelopeResult(s.broker.SchemaChanges(db.ID, since))
}

func (s *MCPServer) handleDiffSnapshots(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	from, err := requireString(request, "from")
	if err != nil {
		return toolError("%v", err)
	}
	to, err := requireString(request, "to")
	if err != nil {
		return toolError("%v", err)
	}
	return envelopeResult(s.broker.DiffSnapshots(from, to))
}

func (s *MCPServer) handleInvalidateCache(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	var id int64
	if ref := optionalString(request, "database"); ref != "" {
		db, err := s.lookupDatabase(ctx, ref)
		if err != nil {
			return toolError("%v", err)
		}
		id = db.ID
	}
	return envelopeResult(s.broker.InvalidateCache(optionalString(request, "pattern"), id))
}

func (s *MCPServer) handleServiceStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(s.broker.ServiceStats())
}
