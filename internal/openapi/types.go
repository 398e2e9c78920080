package openapi

import "strings"

// TypeMapping maps database column types to OpenAPI type/format pairs.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object, array
	Format string // OpenAPI format: int32, int64, float, double, date, date-time, uuid, byte
}

// typeGroups lists the database type names per OpenAPI mapping. Names are
// matched after normalization by MapDBType.
var typeGroups = []struct {
	mapping TypeMapping
	names   []string
}{
	{TypeMapping{"integer", "int32"}, []string{"int", "int2", "int4", "integer", "smallint", "tinyint", "mediumint", "serial", "smallserial"}},
	{TypeMapping{"integer", "int64"}, []string{"int8", "bigint", "bigserial", "hugeint", "ubigint", "oid"}},
	{TypeMapping{"number", "float"}, []string{"float", "float4", "real", "binary_float"}},
	{TypeMapping{"number", "double"}, []string{"float8", "double", "double precision", "decimal", "numeric", "number", "money", "smallmoney", "binary_double"}},
	{TypeMapping{"boolean", ""}, []string{"boolean", "bool", "bit"}},
	{TypeMapping{"string", "date"}, []string{"date"}},
	{TypeMapping{"string", "date-time"}, []string{
		"datetime", "datetime2", "datetimeoffset", "smalldatetime", "timestamp", "timestamptz",
		"timestamp with time zone", "timestamp without time zone", "timestamp_ntz", "timestamp_ltz", "timestamp_tz",
	}},
	{TypeMapping{"string", "time"}, []string{"time", "timetz", "time with time zone", "time without time zone"}},
	{TypeMapping{"string", "byte"}, []string{"bytea", "binary", "varbinary", "blob", "image", "raw", "long raw"}},
	{TypeMapping{"string", "uuid"}, []string{"uuid", "uniqueidentifier"}},
	{TypeMapping{"object", ""}, []string{"json", "jsonb", "variant", "object", "struct", "map"}},
	{TypeMapping{"array", ""}, []string{"array", "list"}},
}

var dbTypeToOpenAPI = func() map[string]TypeMapping {
	m := make(map[string]TypeMapping)
	for _, g := range typeGroups {
		for _, n := range g.names {
			m[n] = g.mapping
		}
	}
	return m
}()

// MapDBType converts a database column type to an OpenAPI type mapping.
// Unknown types, including every character type, map to a plain string.
func MapDBType(dbType string) TypeMapping {
	normalized := strings.ToLower(strings.TrimSpace(dbType))

	// "varchar(255)" -> "varchar", "number(10,2)" -> "number"
	if idx := strings.IndexByte(normalized, '('); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, " unsigned"))

	// "text[]" and "integer[]" are arrays of their element type.
	if strings.HasSuffix(normalized, "[]") {
		return TypeMapping{"array", ""}
	}

	if m, ok := dbTypeToOpenAPI[normalized]; ok {
		return m
	}
	return TypeMapping{"string", ""}
}
