// Package connector defines the capability interface every database backend
// implements and the registry that dispatches on a database's type tag.
package connector

import (
	"context"
	"errors"
	"time"

	"github.com/promptelt/promptelt/internal/model"
)

// ErrNotSupported is returned by backends for operations they cannot perform.
var ErrNotSupported = errors.New("operation not supported by this connector")

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PrivateKeyPath  string // PEM private key for Snowflake key-pair auth
}

// Result is what a backend returns for a single statement. For statements
// that return no rows RowCount is the number of affected rows.
type Result struct {
	Rows     []map[string]interface{}
	RowCount int
}

// IntrospectOptions tunes schema introspection.
type IntrospectOptions struct {
	// IncludeData adds row counts and a few sample rows per table.
	IncludeData bool
	// SampleRows caps the sample rows per table when IncludeData is set.
	SampleRows int
}

// DefaultSampleRows is used when IntrospectOptions.SampleRows is zero.
const DefaultSampleRows = 5

// Connector is the interface all database backends implement.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error

	// Query runs one statement with positional parameters.
	Query(ctx context.Context, query string, params []interface{}) (Result, error)

	IntrospectSchema(ctx context.Context, opts IntrospectOptions) (model.SchemaInfo, error)

	// DriverName returns the type tag the backend was registered under.
	DriverName() string
}
