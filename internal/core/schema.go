package core

// Schema represents the structure of a mapped table.
type Schema struct {
	// TableName is the name of the table.
	TableName string

	// PrimaryKey is the name of the primary key column.
	PrimaryKey string

	// Columns contains all column definitions in insertion order.
	Columns []Column
}

// Column represents a single column in a mapped table.
type Column struct {
	// Name is the column name.
	Name string

	// Kind is the scalar kind stored in the column.
	Kind Kind

	// Nullable indicates whether the column can contain NULL values.
	Nullable bool

	// PrimaryKey marks the primary key column.
	PrimaryKey bool
}

// ColumnNames returns the column names in order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
