package dynamodel

import (
	"strings"

	"gorm.io/gorm/schema"

	"github.com/godoes/dynamodel/dialect"
)

// Namer maps caller supplied names onto database identifiers.
type Namer struct {
	// NamingStrategy derives column names from Go style field names
	NamingStrategy schema.Namer
	// CaseSensitive determines whether naming is case-sensitive
	CaseSensitive bool
	// Upper folds names to upper case when not CaseSensitive
	Upper bool
}

func newNamer(features dialect.Features, caseSensitive bool) Namer {
	return Namer{
		NamingStrategy: schema.NamingStrategy{},
		CaseSensitive:  caseSensitive,
		Upper:          features.UpperCaseIdentifiers,
	}
}

// ConvertNameToFormat return appropriate capitalization name based on CaseSensitive
func (n Namer) ConvertNameToFormat(x string) string {
	if n.CaseSensitive || !n.Upper {
		return x
	}
	return strings.ToUpper(x)
}

// TableName formats a table name, keeping an owner prefix.
func (n Namer) TableName(table string) string {
	return n.ConvertNameToFormat(table)
}

// ColumnName convert a field name to column name
func (n Namer) ColumnName(field string) string {
	return n.ConvertNameToFormat(n.NamingStrategy.ColumnName("", field))
}

// Resolve finds the column a record key refers to: exact match first, then
// case-insensitive, then the snake_case column name of the key.
func (n Namer) Resolve(columns []dialect.Column, key string) (string, bool) {
	for _, c := range columns {
		if c.Name == key {
			return c.Name, true
		}
	}
	if !n.CaseSensitive {
		for _, c := range columns {
			if strings.EqualFold(c.Name, key) {
				return c.Name, true
			}
		}
	}
	snake := n.ColumnName(key)
	for _, c := range columns {
		if c.Name == snake || !n.CaseSensitive && strings.EqualFold(c.Name, snake) {
			return c.Name, true
		}
	}
	return "", false
}
