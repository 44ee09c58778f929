package dialect

// SQLite renders SQL for SQLite. It has neither stored routines nor cursors.
type SQLite struct {
	standard
}

func (SQLite) Name() string {
	return "sqlite"
}

func (SQLite) Features() Features {
	return Features{
		LargeStringThreshold: 1000000000,
		DefaultStringSize:    4000,
	}
}

func (SQLite) DefaultValue(expr string) any {
	return defaultValue(expr, "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME", "datetime('now')")
}

func (SQLite) SchemaQuery(withOwner bool) string {
	source := "pragma_table_info(?)"
	if withOwner {
		source = "pragma_table_info(?, ?)"
	}
	return `SELECT name, dflt_value, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END FROM ` + source + " ORDER BY cid"
}

func (SQLite) PrimaryKeyQuery(withOwner bool) string {
	source := "pragma_table_info(?)"
	if withOwner {
		source = "pragma_table_info(?, ?)"
	}
	return "SELECT name FROM " + source + " WHERE pk > 0 ORDER BY pk"
}

// CallStatement only passes caller written blocks through.
func (SQLite) CallStatement(name string, kind CallKind, _ []Param) string {
	if kind == Block {
		return name
	}
	return ""
}
