package tripmerge

import "fmt"

// LogicalType is the warehouse-neutral type of a column.
type LogicalType int

const (
	TypeString LogicalType = iota
	TypeInteger
	TypeFloat
	TypeDecimal
	TypeTimestamp
)

func (t LogicalType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeDecimal:
		return "DECIMAL"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "STRING"
	}
}

// Column is a named, typed field of a batch.
type Column struct {
	Name string
	Type LogicalType
}

// ColumnSchema is the ordered column list of a batch. It is never mutated after resolution.
type ColumnSchema []Column

// Names returns the column names in order.
func (s ColumnSchema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s ColumnSchema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the named column.
func (s ColumnSchema) Lookup(name string) (Column, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}
	return Column{}, false
}

func (s ColumnSchema) String() string {
	return fmt.Sprintf("%d columns", len(s))
}

// SchemaSource records how a batch schema was obtained.
type SchemaSource string

const (
	SchemaExplicit   SchemaSource = "explicit"
	SchemaAutodetect SchemaSource = "autodetect"
)
