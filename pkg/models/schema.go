package models

// SchemaSummary is the table/column metadata the text-to-SQL pipeline works from.
// A SchemaSummary returned by a SchemaProvider is shared between requests and
// must be treated as immutable; derive new values instead of editing one.
type SchemaSummary struct {
	Tables []Table `json:"tables"`
}

// Table is a single table with its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column is a column name and its database type name.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableCount returns the number of tables, treating a nil summary as empty.
func (s *SchemaSummary) TableCount() int {
	if s == nil {
		return 0
	}
	return len(s.Tables)
}
