// Package openapi builds OpenAPI 3.1 documents for the HTTP API and for the
// row shapes of registered databases.
package openapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/promptelt/promptelt/internal/model"
)

// route is one documented API operation.
type route struct {
	method   string
	path     string
	id       string
	tag      string
	summary  string
	params   []string // path parameter names
	query    []string // query parameter names
	request  string   // component schema name of the body, if any
	response string   // component schema name of the envelope data
}

var routes = []route{
	{method: http.MethodGet, path: "/databases", id: "listDatabases", tag: "databases", summary: "List registered databases", response: "DatabaseList"},
	{method: http.MethodPost, path: "/databases", id: "createDatabase", tag: "databases", summary: "Register a database", request: "DatabaseConfig", response: "DatabaseConfig"},
	{method: http.MethodGet, path: "/databases/{id}", id: "getDatabase", tag: "databases", summary: "Get a registered database", params: []string{"id"}, response: "DatabaseConfig"},
	{method: http.MethodPut, path: "/databases/{id}", id: "updateDatabase", tag: "databases", summary: "Update a registered database", params: []string{"id"}, request: "DatabaseConfig", response: "DatabaseConfig"},
	{method: http.MethodDelete, path: "/databases/{id}", id: "deleteDatabase", tag: "databases", summary: "Unregister a database", params: []string{"id"}},
	{method: http.MethodPost, path: "/databases/{id}/connect", id: "connectDatabase", tag: "databases", summary: "Connect and capture the initial schema snapshot", params: []string{"id"}, response: "Envelope"},
	{method: http.MethodDelete, path: "/databases/{id}/connection", id: "disconnectDatabase", tag: "databases", summary: "Disconnect and drop cached results", params: []string{"id"}, response: "Envelope"},
	{method: http.MethodPost, path: "/databases/{id}/query", id: "executeQuery", tag: "query", summary: "Execute SQL through the query cache", params: []string{"id"}, request: "QueryRequest", response: "Envelope"},
	{method: http.MethodGet, path: "/databases/{id}/schema", id: "getSchema", tag: "schema", summary: "Latest schema snapshot", params: []string{"id"}, query: []string{"includeData"}, response: "Envelope"},
	{method: http.MethodPost, path: "/databases/{id}/schema/refresh", id: "refreshSchema", tag: "schema", summary: "Re-introspect and report schema changes", params: []string{"id"}, response: "Envelope"},
	{method: http.MethodGet, path: "/databases/{id}/schema/history", id: "schemaHistory", tag: "schema", summary: "Snapshot history, newest first", params: []string{"id"}, query: []string{"limit"}, response: "Envelope"},
	{method: http.MethodGet, path: "/databases/{id}/schema/changes", id: "schemaChanges", tag: "schema", summary: "Changes between consecutive snapshots", params: []string{"id"}, query: []string{"since"}, response: "Envelope"},
	{method: http.MethodGet, path: "/databases/{id}/openapi.json", id: "databaseSpec", tag: "schema", summary: "OpenAPI row schemas of the latest snapshot", params: []string{"id"}},
	{method: http.MethodGet, path: "/schema/diff", id: "diffSnapshots", tag: "schema", summary: "Diff two snapshots", query: []string{"from", "to"}, response: "Envelope"},
	{method: http.MethodGet, path: "/schema/snapshots/{snapshotId}/export", id: "exportSnapshot", tag: "schema", summary: "Export a snapshot document", params: []string{"snapshotId"}},
	{method: http.MethodPost, path: "/schema/snapshots/{snapshotId}/archive", id: "archiveSnapshot", tag: "schema", summary: "Copy a snapshot to the object store", params: []string{"snapshotId"}, response: "Envelope"},
	{method: http.MethodPost, path: "/schema/snapshots/restore", id: "restoreSnapshot", tag: "schema", summary: "Import a snapshot from the object store", request: "RestoreRequest", response: "Envelope"},
	{method: http.MethodPost, path: "/process-query", id: "processQuery", tag: "assistant", summary: "Answer a natural-language question", request: "ProcessQueryRequest", response: "Envelope"},
	{method: http.MethodPost, path: "/pipelines/generate", id: "generatePipeline", tag: "assistant", summary: "Design an ETL pipeline", request: "PipelineRequest", response: "Envelope"},
	{method: http.MethodPost, path: "/validate-query", id: "validateQuery", tag: "assistant", summary: "Review SQL against the latest schemas", request: "ValidateRequest", response: "Envelope"},
	{method: http.MethodGet, path: "/cache/entries", id: "cacheEntries", tag: "cache", summary: "Cached results, most recently used first", query: []string{"databaseId", "limit"}, response: "Envelope"},
	{method: http.MethodDelete, path: "/cache", id: "invalidateCache", tag: "cache", summary: "Invalidate cached results", query: []string{"pattern", "databaseId"}, response: "Envelope"},
	{method: http.MethodPost, path: "/cache/archive", id: "archiveCache", tag: "cache", summary: "Copy a cache export to the object store", response: "Envelope"},
	{method: http.MethodGet, path: "/stats", id: "serviceStats", tag: "system", summary: "Connection, cache and snapshot statistics", response: "Envelope"},
	{method: http.MethodGet, path: "/conversations", id: "listConversations", tag: "conversations", summary: "List conversations"},
	{method: http.MethodPost, path: "/conversations", id: "createConversation", tag: "conversations", summary: "Start a conversation"},
	{method: http.MethodGet, path: "/conversations/{conversationId}/messages", id: "listMessages", tag: "conversations", summary: "Messages of a conversation", params: []string{"conversationId"}},
	{method: http.MethodPost, path: "/conversations/{conversationId}/messages", id: "addMessage", tag: "conversations", summary: "Append a message", params: []string{"conversationId"}},
	{method: http.MethodDelete, path: "/conversations/{conversationId}", id: "deleteConversation", tag: "conversations", summary: "Delete a conversation", params: []string{"conversationId"}},
	{method: http.MethodGet, path: "/pipelines", id: "listPipelines", tag: "pipelines", summary: "List saved pipelines"},
	{method: http.MethodPost, path: "/pipelines", id: "createPipeline", tag: "pipelines", summary: "Save a pipeline"},
	{method: http.MethodGet, path: "/pipelines/{pipelineId}", id: "getPipeline", tag: "pipelines", summary: "Get a pipeline", params: []string{"pipelineId"}},
	{method: http.MethodPut, path: "/pipelines/{pipelineId}", id: "updatePipeline", tag: "pipelines", summary: "Update a pipeline", params: []string{"pipelineId"}},
	{method: http.MethodDelete, path: "/pipelines/{pipelineId}", id: "deletePipeline", tag: "pipelines", summary: "Delete a pipeline", params: []string{"pipelineId"}},
}

// APISpec returns the OpenAPI document of the HTTP API mounted under
// baseURL (for example "/api").
func APISpec(baseURL, version string) *openapi3.T {
	doc := newDoc("promptelt API", "Natural-language access to registered databases with cached queries and schema snapshots.", version, baseURL)

	s := doc.Components.Schemas
	s["ErrorResponse"] = errorSchema()
	s["Envelope"] = object(openapi3.Schemas{
		"success":       prim("boolean", ""),
		"data":          anyValue(),
		"error":         prim("string", ""),
		"executionTime": prim("number", "double"),
	}, "success", "executionTime")
	s["DatabaseConfig"] = object(openapi3.Schemas{
		"id":               prim("integer", "int64"),
		"name":             prim("string", ""),
		"type":             prim("string", ""),
		"connectionString": prim("string", ""),
		"status":           enumString("online", "offline", "warning"),
		"description":      prim("string", ""),
		"metadata":         prim("object", ""),
	}, "name", "type")
	s["DatabaseList"] = object(openapi3.Schemas{
		"resource": arrayOf(openapi3.NewSchemaRef("#/components/schemas/DatabaseConfig", nil)),
		"count":    prim("integer", "int32"),
	})
	s["QueryRequest"] = object(openapi3.Schemas{
		"query":  prim("string", ""),
		"params": arrayOf(anyValue()),
	}, "query")
	s["ProcessQueryRequest"] = object(openapi3.Schemas{
		"query":          prim("string", ""),
		"databaseIds":    arrayOf(prim("integer", "int64")),
		"context":        prim("string", ""),
		"conversationId": prim("string", ""),
	}, "query")
	s["PipelineRequest"] = object(openapi3.Schemas{
		"source":       prim("string", ""),
		"target":       prim("string", ""),
		"requirements": prim("string", ""),
		"databaseIds":  arrayOf(prim("integer", "int64")),
		"save":         prim("boolean", ""),
		"name":         prim("string", ""),
	}, "source", "target")
	s["ValidateRequest"] = object(openapi3.Schemas{
		"sql":         prim("string", ""),
		"databaseIds": arrayOf(prim("integer", "int64")),
	}, "sql")
	s["RestoreRequest"] = object(openapi3.Schemas{
		"key": prim("string", ""),
	}, "key")

	for _, rt := range routes {
		doc.AddOperation(rt.path, rt.method, operation(rt))
	}
	return doc
}

// DatabaseSpec documents the row shape of every table and view in schema as
// component schemas, and the query endpoint of the database.
func DatabaseSpec(db model.DatabaseConfig, schema model.SchemaInfo, baseURL string) *openapi3.T {
	doc := newDoc(
		fmt.Sprintf("%s schema", db.Name),
		fmt.Sprintf("Row schemas of %s (%s) from its latest snapshot.", db.Name, db.Type),
		"1.0.0", baseURL,
	)
	doc.Components.Schemas["ErrorResponse"] = errorSchema()

	for _, t := range schema.Tables {
		doc.Components.Schemas[componentName(db.Name, t.Name)] = columnsToSchema(t.Columns, "")
	}
	for _, v := range schema.Views {
		doc.Components.Schemas[componentName(db.Name, v.Name)] = columnsToSchema(v.Columns, v.Definition)
	}

	doc.AddOperation(fmt.Sprintf("/databases/%d/query", db.ID), http.MethodPost, &openapi3.Operation{
		Tags:        []string{db.Name},
		OperationID: fmt.Sprintf("query_%d", db.ID),
		Summary:     "Execute SQL against " + db.Name,
		RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(object(openapi3.Schemas{
				"query":  prim("string", ""),
				"params": arrayOf(anyValue()),
			}, "query"))},
		Responses: newResponses("Query result envelope", object(openapi3.Schemas{
			"success": prim("boolean", ""),
			"data": object(openapi3.Schemas{
				"rows":     arrayOf(prim("object", "")),
				"rowCount": prim("integer", "int32"),
				"cached":   prim("boolean", ""),
			}),
		})),
	})
	return doc
}

func newDoc(title, description, version, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       title,
			Description: description,
			Version:     version,
		},
		Servers: openapi3.Servers{{URL: baseURL}},
		Paths:   openapi3.NewPaths(),
	}
	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	doc.Components = &components
	return doc
}

func operation(rt route) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{rt.tag},
		OperationID: rt.id,
		Summary:     rt.summary,
	}
	for _, p := range rt.params {
		typ, format := "integer", "int64"
		if strings.HasSuffix(p, "Id") && p != "pipelineId" {
			typ, format = "string", ""
		}
		op.AddParameter(openapi3.NewPathParameter(p).WithSchema(prim(typ, format).Value))
	}
	for _, q := range rt.query {
		op.AddParameter(openapi3.NewQueryParameter(q).WithSchema(openapi3.NewStringSchema()))
	}
	if rt.request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+rt.request, nil))}
	}
	var body *openapi3.SchemaRef
	if rt.response != "" {
		body = openapi3.NewSchemaRef("#/components/schemas/"+rt.response, nil)
	} else {
		body = anyValue()
	}
	op.Responses = newResponses(rt.summary, body)
	return op
}

// newResponses builds a success response plus the error statuses the
// handlers map failed envelopes to.
func newResponses(description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription(description).
		WithJSONSchemaRef(schema)})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request",
		"404": "Not found",
		"409": "Database not connected",
		"502": "Upstream database or assistant failure",
		"503": "Optional collaborator not configured",
	} {
		responses.Set(code, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(desc).
			WithJSONSchemaRef(errorRef)})
	}
	return responses
}

// columnsToSchema builds an object schema with one property per column.
// Non-nullable columns are required.
func columnsToSchema(columns []model.ColumnInfo, description string) *openapi3.SchemaRef {
	props := make(openapi3.Schemas, len(columns))
	var required []string
	for _, c := range columns {
		m := MapDBType(c.Type)
		col := prim(m.Type, m.Format).Value
		col.Description = c.Type
		col.Nullable = c.Nullable
		if c.PrimaryKey {
			col.Description += ", primary key"
		}
		if c.DefaultValue != nil {
			col.Description += ", default " + *c.DefaultValue
		}
		props[c.Name] = &openapi3.SchemaRef{Value: col}
		if !c.Nullable {
			required = append(required, c.Name)
		}
	}
	ref := object(props, required...)
	ref.Value.Description = description
	return ref
}

func errorSchema() *openapi3.SchemaRef {
	return object(openapi3.Schemas{
		"error": object(openapi3.Schemas{
			"code":    prim("integer", "int32"),
			"message": prim("string", ""),
			"context": prim("object", ""),
		}),
	})
}

func prim(typ, format string) *openapi3.SchemaRef {
	s := &openapi3.Schema{Type: &openapi3.Types{typ}, Format: format}
	if typ == "array" {
		s.Items = anyValue()
	}
	return &openapi3.SchemaRef{Value: s}
}

func object(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func enumString(values ...string) *openapi3.SchemaRef {
	s := openapi3.NewStringSchema()
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return &openapi3.SchemaRef{Value: s}
}

func anyValue() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
}

// componentName creates a valid component schema name from database and
// object names, for example "Warehouse_Orders".
func componentName(database, object string) string {
	s := capitalize(database) + "_" + capitalize(object)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
