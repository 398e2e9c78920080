// Package demo provides an in-memory connector that answers with canned
// schemas and rows. It stands in for warehouses that have no Go driver
// (Databricks, Salesforce) and for databases registered without a
// connection string.
package demo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/query"
)

// Scheme prefixes DSNs handled by the demo connector, e.g. "demo:snowflake".
const Scheme = "demo:"

// ErrNotConnected is returned when the connector is used before Connect.
var ErrNotConnected = errors.New("demo: not connected")

// Connector serves a fixed schema for its flavor. Flavors add tables to
// the base users/orders schema the way the matching warehouse would.
type Connector struct {
	mu        sync.Mutex
	flavor    string
	fixed     bool
	connected bool
	latency   time.Duration
}

// New returns a demo connector whose flavor is taken from the DSN at
// connect time ("demo:snowflake").
func New() connector.Connector {
	return &Connector{}
}

// Flavor returns a factory for a connector with a fixed flavor, used to
// register type tags that have no real backend.
func Flavor(flavor string) connector.Factory {
	return func() connector.Connector {
		return &Connector{flavor: flavor, fixed: true}
	}
}

// WithLatency returns a factory whose connectors sleep for d before
// answering a query, mimicking a remote round trip.
func WithLatency(flavor string, d time.Duration) connector.Factory {
	return func() connector.Connector {
		return &Connector{flavor: flavor, fixed: flavor != "", latency: d}
	}
}

// Connect marks the connector as connected.
func (c *Connector) Connect(_ context.Context, cfg connector.ConnectionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fixed {
		c.flavor = FlavorFromDSN(cfg.DSN)
	}
	c.connected = true
	return nil
}

// FlavorFromDSN extracts the flavor from "demo:<flavor>" or
// "demo://<flavor>". Anything else yields the plain base schema.
func FlavorFromDSN(dsn string) string {
	if !strings.HasPrefix(strings.ToLower(dsn), Scheme) {
		return ""
	}
	rest := strings.TrimPrefix(dsn[len(Scheme):], "//")
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// Disconnect marks the connector as closed.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// Ping fails once the connector is closed.
func (c *Connector) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

// DriverName returns "demo".
func (c *Connector) DriverName() string { return "demo" }

// Query answers by keyword: selects on users or orders return two rows,
// anything mentioning count returns a single count row.
func (c *Connector) Query(ctx context.Context, sql string, _ []interface{}) (connector.Result, error) {
	c.mu.Lock()
	connected, latency := c.connected, c.latency
	c.mu.Unlock()
	if !connected {
		return connector.Result{}, ErrNotConnected
	}

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return connector.Result{}, ctx.Err()
		case <-t.C:
		}
	}

	rows := cannedRows(query.Normalize(sql))
	return connector.Result{Rows: rows, RowCount: len(rows)}, nil
}

func cannedRows(q string) []map[string]interface{} {
	isSelect := strings.Contains(q, "select")
	switch {
	case isSelect && strings.Contains(q, "users"):
		return []map[string]interface{}{
			{"id": 1, "name": "John Doe", "email": "john@example.com", "created_at": "2024-01-15T10:30:00Z"},
			{"id": 2, "name": "Jane Smith", "email": "jane@example.com", "created_at": "2024-01-16T14:22:00Z"},
		}
	case isSelect && strings.Contains(q, "orders"):
		return []map[string]interface{}{
			{"id": 101, "user_id": 1, "total": 299.99, "status": "completed", "created_at": "2024-01-20T09:15:00Z"},
			{"id": 102, "user_id": 2, "total": 199.50, "status": "pending", "created_at": "2024-01-21T16:45:00Z"},
		}
	case strings.Contains(q, "count"):
		return []map[string]interface{}{{"count": 42}}
	default:
		return []map[string]interface{}{{"result": "Query executed successfully"}}
	}
}

// IntrospectSchema returns the canned schema of the connector's flavor.
// Sample data is drawn from the canned rows when requested.
func (c *Connector) IntrospectSchema(_ context.Context, opts connector.IntrospectOptions) (model.SchemaInfo, error) {
	c.mu.Lock()
	connected, flavor := c.connected, c.flavor
	c.mu.Unlock()
	if !connected {
		return model.SchemaInfo{}, ErrNotConnected
	}

	schema := Schema(flavor)
	if opts.IncludeData {
		schema.IncludeData = true
		n := opts.SampleRows
		if n <= 0 {
			n = connector.DefaultSampleRows
		}
		for i := range schema.Tables {
			t := &schema.Tables[i]
			var sample []map[string]interface{}
			if t.Name == "users" || t.Name == "orders" {
				sample = cannedRows("select * from " + t.Name)
			}
			count := int64(len(sample))
			t.RowCount = &count
			t.SampleData = sample[:min(n, len(sample))]
		}
	}
	return schema, nil
}

// Schema returns a fresh copy of the canned schema for flavor.
func Schema(flavor string) model.SchemaInfo {
	schema := model.SchemaInfo{
		Tables: []model.TableInfo{
			{Name: "users", Columns: []model.ColumnInfo{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "name", Type: "VARCHAR(255)"},
				{Name: "email", Type: "VARCHAR(255)"},
				{Name: "created_at", Type: "TIMESTAMP"},
			}},
			{Name: "orders", Columns: []model.ColumnInfo{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "user_id", Type: "INTEGER", ForeignKey: true},
				{Name: "total", Type: "DECIMAL(10,2)"},
				{Name: "status", Type: "VARCHAR(50)"},
				{Name: "created_at", Type: "TIMESTAMP"},
			}},
		},
		Views:      []model.ViewInfo{},
		Procedures: []model.ProcedureInfo{},
	}

	switch flavor {
	case "snowflake":
		schema.Tables = append(schema.Tables, model.TableInfo{Name: "warehouse_analytics", Columns: []model.ColumnInfo{
			{Name: "warehouse_id", Type: "VARCHAR(100)", PrimaryKey: true},
			{Name: "query_count", Type: "NUMBER(38,0)"},
			{Name: "execution_time", Type: "NUMBER(38,3)"},
			{Name: "date", Type: "DATE"},
		}})
	case "databricks":
		schema.Tables = append(schema.Tables, model.TableInfo{Name: "ml_models", Columns: []model.ColumnInfo{
			{Name: "model_id", Type: "STRING", PrimaryKey: true},
			{Name: "model_name", Type: "STRING"},
			{Name: "accuracy", Type: "DOUBLE", Nullable: true},
			{Name: "created_at", Type: "TIMESTAMP"},
		}})
	case "salesforce":
		schema.Tables = []model.TableInfo{
			{Name: "Account", Columns: []model.ColumnInfo{
				{Name: "Id", Type: "ID", PrimaryKey: true},
				{Name: "Name", Type: "STRING"},
				{Name: "Industry", Type: "PICKLIST", Nullable: true},
				{Name: "CreatedDate", Type: "DATETIME"},
			}},
			{Name: "Contact", Columns: []model.ColumnInfo{
				{Name: "Id", Type: "ID", PrimaryKey: true},
				{Name: "FirstName", Type: "STRING", Nullable: true},
				{Name: "LastName", Type: "STRING"},
				{Name: "Email", Type: "EMAIL", Nullable: true},
				{Name: "AccountId", Type: "REFERENCE", Nullable: true, ForeignKey: true},
			}},
		}
	}
	return schema
}
