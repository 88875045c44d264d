package filter

import "sort"

// ColumnType describes how a column's values may be compared.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeInteger
	TypeDecimal
	TypeFloat
	TypeString
	TypeText
	TypeBoolean
	TypeDateTime
	TypeDate
	TypeTime
	TypeUUID
	TypeJSON
	TypeInterval
	TypeArray
)

var columnTypeNames = map[ColumnType]string{
	TypeUnknown:  "unknown",
	TypeInteger:  "integer",
	TypeDecimal:  "decimal",
	TypeFloat:    "float",
	TypeString:   "string",
	TypeText:     "text",
	TypeBoolean:  "boolean",
	TypeDateTime: "datetime",
	TypeDate:     "date",
	TypeTime:     "time",
	TypeUUID:     "uuid",
	TypeJSON:     "json",
	TypeInterval: "interval",
	TypeArray:    "array",
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsNumeric reports integer, decimal and float columns.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeDecimal || t == TypeFloat
}

// IsText reports string and text columns.
func (t ColumnType) IsText() bool {
	return t == TypeString || t == TypeText
}

// Table is a relation with typed columns.
type Table struct {
	Name    string
	Columns map[string]ColumnType
}

// NewTable builds a Table.
func NewTable(name string, columns map[string]ColumnType) *Table {
	return &Table{Name: name, Columns: columns}
}

// Col returns a column reference, without checking it exists.
func (t *Table) Col(name string) Column {
	return Column{Table: t.Name, Name: name}
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.Columns[name]
	return ok
}

// TypeOf returns the column type, or TypeUnknown.
func (t *Table) TypeOf(name string) ColumnType {
	return t.Columns[name]
}

// ColumnNames returns the sorted column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
