package model

import (
	"regexp"
	"time"
)

// DatabaseConfig is a database registered with the broker. Type selects the
// connector backend through the driver registry.
type DatabaseConfig struct {
	ID               int64                  `json:"id" db:"id"`
	Name             string                 `json:"name" db:"name"`
	Type             string                 `json:"type" db:"type"` // snowflake, databricks, sqlserver, salesforce, postgres, ...
	ConnectionString string                 `json:"connectionString,omitempty" db:"connection_string"`
	Status           string                 `json:"status" db:"status"` // online, offline, warning
	Description      string                 `json:"description,omitempty" db:"description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time              `json:"updatedAt" db:"updated_at"`
}

// Database status values.
const (
	DatabaseOnline  = "online"
	DatabaseOffline = "offline"
	DatabaseWarning = "warning"
)

// QueryResult is the payload of a successful query execution. It is also the
// value stored by the query cache.
type QueryResult struct {
	Rows          []map[string]interface{} `json:"rows"`
	RowCount      int                      `json:"rowCount"`
	Query         string                   `json:"query"`
	Parameters    []interface{}            `json:"parameters,omitempty"`
	ExecutionTime float64                  `json:"executionTime,omitempty"` // milliseconds
	Cached        bool                     `json:"cached,omitempty"`
}

// Connection status values.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionError        = "error"
)

// Connection is the broker's in-memory record of an open database connection.
type Connection struct {
	ID           string                 `json:"id"`
	DatabaseID   int64                  `json:"databaseId"`
	Type         string                 `json:"type"`
	Status       string                 `json:"status"`
	LastActivity time.Time              `json:"lastActivity"`
	Metadata     map[string]interface{} `json:"metadata"`
}

var passwordPattern = regexp.MustCompile(`(?i)(password|pwd)=[^;&]+`)

// MaskConnectionString hides password values in key=value style connection
// strings and URL userinfo so they can be logged or returned to clients.
func MaskConnectionString(s string) string {
	if s == "" {
		return ""
	}
	masked := passwordPattern.ReplaceAllString(s, "${1}=***")
	return urlPasswordPattern.ReplaceAllString(masked, "${1}:***@")
}

var urlPasswordPattern = regexp.MustCompile(`(://[^:/@]+):[^@/]+@`)
