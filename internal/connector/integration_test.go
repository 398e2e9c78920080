package connector_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/connector/duckdb"
	"github.com/promptelt/promptelt/internal/connector/mssql"
	"github.com/promptelt/promptelt/internal/connector/mysql"
	"github.com/promptelt/promptelt/internal/connector/oracle"
	"github.com/promptelt/promptelt/internal/connector/postgres"
	"github.com/promptelt/promptelt/internal/connector/snowflake"
)

// Integration tests run against live databases named by environment
// variables, e.g. PROMPTELT_IT_POSTGRES_DSN. Backends without a DSN are
// skipped.
func TestMain(m *testing.M) {
	if os.Getenv("PROMPTELT_INTEGRATION") == "" {
		fmt.Println("skipping integration tests: set PROMPTELT_INTEGRATION=1 to run")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runConnectorSuite(t *testing.T, driver string, factory connector.Factory) {
	t.Helper()

	dsn := os.Getenv("PROMPTELT_IT_" + driverEnv(driver) + "_DSN")
	if dsn == "" {
		t.Skipf("PROMPTELT_IT_%s_DSN not set", driverEnv(driver))
	}
	table := os.Getenv("PROMPTELT_IT_" + driverEnv(driver) + "_TABLE")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reg := connector.NewRegistry()
	reg.RegisterDriver(driver, factory)
	conn, err := reg.Open(ctx, "it", connector.ConnectionConfig{Driver: driver, DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(reg.CloseAll)

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	schema, err := conn.IntrospectSchema(ctx, connector.IntrospectOptions{})
	if err != nil {
		t.Fatalf("IntrospectSchema: %v", err)
	}
	t.Logf("%s: %d tables, %d views, %d procedures", driver, len(schema.Tables), len(schema.Views), len(schema.Procedures))
	for _, tbl := range schema.Tables {
		if len(tbl.Columns) == 0 {
			t.Errorf("table %s has no columns", tbl.Name)
		}
	}

	if table == "" {
		return
	}
	if _, ok := schema.Table(table); !ok {
		t.Fatalf("table %q not found in %v", table, schema.TableNames())
	}
	res, err := conn.Query(ctx, "SELECT COUNT(*) AS n FROM "+table, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.RowCount != 1 {
		t.Errorf("COUNT(*) returned %d rows, want 1", res.RowCount)
	}
}

func driverEnv(driver string) string {
	return strings.ToUpper(driver)
}

func TestPostgres(t *testing.T)  { runConnectorSuite(t, "postgres", postgres.New) }
func TestMySQL(t *testing.T)     { runConnectorSuite(t, "mysql", mysql.New) }
func TestSQLServer(t *testing.T) { runConnectorSuite(t, "sqlserver", mssql.New) }
func TestSnowflake(t *testing.T) { runConnectorSuite(t, "snowflake", snowflake.New) }
func TestOracle(t *testing.T)    { runConnectorSuite(t, "oracle", oracle.New) }
func TestDuckDB(t *testing.T)    { runConnectorSuite(t, "duckdb", duckdb.New) }
