package dialect

import (
	"fmt"
	"strings"
)

// MySQL renders SQL for MySQL and MariaDB. The driver cannot bind output
// arguments, so procedure outputs go through session variables on one connection.
type MySQL struct {
	standard
}

func (MySQL) Name() string {
	return "mysql"
}

func (MySQL) Features() Features {
	return Features{
		StoredRoutines:       true,
		LargeStringThreshold: 65535,
		DefaultStringSize:    4000,
	}
}

func (MySQL) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (MySQL) DefaultValue(expr string) any {
	return defaultValue(expr, "CURRENT_TIMESTAMP", "now()", "CURRENT_DATE", "LOCALTIMESTAMP")
}

func (MySQL) SchemaQuery(withOwner bool) string {
	query := "SELECT COLUMN_NAME, COLUMN_DEFAULT, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = ?"
	if withOwner {
		query += " AND TABLE_SCHEMA = ?"
	} else {
		query += " AND TABLE_SCHEMA = DATABASE()"
	}
	return query + " ORDER BY ORDINAL_POSITION"
}

func (MySQL) PrimaryKeyQuery(withOwner bool) string {
	query := "SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE WHERE CONSTRAINT_NAME = 'PRIMARY' AND TABLE_NAME = ?"
	if withOwner {
		query += " AND TABLE_SCHEMA = ?"
	} else {
		query += " AND TABLE_SCHEMA = DATABASE()"
	}
	return query + " ORDER BY ORDINAL_POSITION"
}

func (MySQL) OutputMode(kind CallKind) OutputMode {
	if kind == Procedure {
		return OutputViaVariables
	}
	return OutputAsResultRow
}

// CallStatement renders
//
//	CALL proc(?, @io, @out)
//	SELECT fn(?, ?) AS `returnValue`
func (m MySQL) CallStatement(name string, kind CallKind, params []Param) string {
	if kind == Block {
		return name
	}
	var (
		ret  string
		args []string
	)
	for _, p := range params {
		switch p.Direction {
		case ReturnValue:
			ret = p.Name
		case In:
			args = append(args, "?")
		default:
			args = append(args, "@"+p.Name)
		}
	}
	call := name + "(" + strings.Join(args, ", ") + ")"
	if kind == Function {
		if ret == "" {
			ret = name
		}
		return "SELECT " + call + " AS " + m.Quote(ret)
	}
	return "CALL " + call
}

func (MySQL) Prologue(p Param) string {
	return fmt.Sprintf("SET @%s = ?", p.Name)
}

func (m MySQL) Epilogue(params []Param) string {
	var cols []string
	for _, p := range params {
		if p.Direction == Out || p.Direction == InOut {
			cols = append(cols, "@"+p.Name+" AS "+m.Quote(p.Name))
		}
	}
	if len(cols) == 0 {
		return ""
	}
	return "SELECT " + strings.Join(cols, ", ")
}

var _ VariableBinder = MySQL{}
