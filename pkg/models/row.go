// Package models provides the result types produced when a shared table is
// materialized.
package models

import "sort"

// Row is a single decoded record keyed by column name. Values carry the Go
// type the columnar reader produced for the column (int64, float64, string,
// bool, time.Time, []byte, nested []interface{} or map[string]interface{}).
type Row map[string]interface{}

// Columns returns the row's column names in sorted order
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// RowSet is a materialized table: its rows in file order plus the raw
// schema string the server returned.
type RowSet struct {
	// SchemaString is the table schema exactly as served
	SchemaString string `json:"schemaString"`

	// PartitionColumns lists the table's partition columns
	PartitionColumns []string `json:"partitionColumns,omitempty"`

	// Rows holds the decoded records
	Rows []Row `json:"rows"`
}

// NewRowSet creates an empty row set for the given schema
func NewRowSet(schemaString string, partitionColumns []string) *RowSet {
	return &RowSet{
		SchemaString:     schemaString,
		PartitionColumns: partitionColumns,
		Rows:             []Row{},
	}
}

// Len returns the number of rows
func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// Truncate keeps at most n rows. A negative n is ignored.
func (rs *RowSet) Truncate(n int) {
	if n >= 0 && n < len(rs.Rows) {
		rs.Rows = rs.Rows[:n]
	}
}
