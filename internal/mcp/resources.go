package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	databasesURI = "promptelt://databases"
	schemaPrefix = "promptelt://schema/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			databasesURI,
			"Registered Databases",
			mcp.WithResourceDescription(
				"Databases registered with promptelt, with their type and connection state.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleDatabasesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaPrefix+"{database}",
			"Database Schema",
			mcp.WithTemplateDescription(
				"Latest schema snapshot of a connected database, by id or name.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleSchemaResource,
	)
}

func (s *MCPServer) handleDatabasesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	dbs, err := s.store.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	type databaseInfo struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Connected bool   `json:"connected"`
	}
	items := make([]databaseInfo, len(dbs))
	for i, d := range dbs {
		_, connected := s.broker.Connection(d.ID)
		items[i] = databaseInfo{ID: d.ID, Name: d.Name, Type: d.Type, Connected: connected}
	}
	return jsonContents(databasesURI, items)
}

func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	ref := strings.TrimPrefix(uri, schemaPrefix)
	if ref == "" || ref == uri {
		return nil, fmt.Errorf("invalid schema URI %q: expected %s{database}", uri, schemaPrefix)
	}
	db, err := s.lookupDatabase(ctx, ref)
	if err != nil {
		return nil, err
	}
	resp := s.broker.GetSchema(ctx, db.ID, false)
	if !resp.Success {
		return nil, fmt.Errorf("schema of %q: %s", db.Name, resp.Error)
	}
	return jsonContents(uri, resp.Data)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
