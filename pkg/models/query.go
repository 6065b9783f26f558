package models

// QueryResult is the row set returned by the query executor.
// Rows map column name to the driver value; Fields keeps the column order.
type QueryResult struct {
	Rows   []map[string]any `json:"rows"`
	Fields []string         `json:"fields"`
}
