package model

// SchemaInfo is the structural description of one database as seen by the
// broker: its tables, views and stored procedures.
type SchemaInfo struct {
	Tables      []TableInfo     `json:"tables"`
	Views       []ViewInfo      `json:"views"`
	Procedures  []ProcedureInfo `json:"procedures"`
	IncludeData bool            `json:"includeData"`
}

// TableInfo describes a single table. Column order is significant.
type TableInfo struct {
	Name       string                   `json:"name"`
	Columns    []ColumnInfo             `json:"columns"`
	RowCount   *int64                   `json:"rowCount,omitempty"`
	SampleData []map[string]interface{} `json:"sampleData,omitempty"`
}

// ColumnInfo describes a single column within a table or view.
type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	PrimaryKey   bool    `json:"primaryKey,omitempty"`
	ForeignKey   bool    `json:"foreignKey,omitempty"`
	DefaultValue *string `json:"defaultValue,omitempty"`
}

// ViewInfo describes a database view and its projected columns.
type ViewInfo struct {
	Name       string       `json:"name"`
	Definition string       `json:"definition"`
	Columns    []ColumnInfo `json:"columns"`
}

// ProcedureInfo describes a stored procedure or function.
type ProcedureInfo struct {
	Name       string          `json:"name"`
	Parameters []ParameterInfo `json:"parameters"`
	ReturnType string          `json:"returnType,omitempty"`
}

// ParameterInfo describes a single parameter of a stored procedure.
type ParameterInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Direction string `json:"direction"` // "IN", "OUT", "INOUT"
	Required  bool   `json:"required"`
}

// Table returns the table with the given name, or false if absent.
func (s SchemaInfo) Table(name string) (TableInfo, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}

// TableNames returns the table names in schema order.
func (s SchemaInfo) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// StringPtr returns a pointer to s. Handy for column defaults in literals.
func StringPtr(s string) *string {
	return &s
}
