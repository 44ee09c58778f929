package dialect

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm/logger"
)

// SQLServer renders SQL for Microsoft SQL Server.
type SQLServer struct {
	standard
}

func (SQLServer) Name() string {
	return "sqlserver"
}

func (SQLServer) Features() Features {
	return Features{
		StoredRoutines:       true,
		NamedParameters:      true,
		LargeStringThreshold: 4000,
		DefaultStringSize:    4000,
	}
}

func (SQLServer) Quote(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

func (SQLServer) Placeholder(_ int, name string) string {
	return "@" + name
}

func (SQLServer) ParameterName(raw string, native bool) string {
	if native {
		return raw
	}
	return "@" + raw
}

func (SQLServer) Bind(name string, value any) any {
	return sql.Named(name, value)
}

func (SQLServer) SelectPattern(columns, source, where, orderBy string, limit int) string {
	top := ""
	if limit > 0 {
		top = "TOP " + strconv.Itoa(limit) + " "
	}
	return "SELECT " + top + columns + " FROM " + source + where + orderBy
}

// WrapCount keeps the ORDER BY of the core query legal inside a derived table.
func (SQLServer) WrapCount(core string) string {
	return "SELECT COUNT(*) FROM (" + core + " OFFSET 0 ROWS) AS q___"
}

func (SQLServer) WrapPage(core string, offset, size int) string {
	return fmt.Sprintf("%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", core, offset, size)
}

// IdentityRetrieval reads @@IDENTITY on the insert's connection; SCOPE_IDENTITY()
// is empty outside the batch that inserted.
func (SQLServer) IdentityRetrieval(string, string) (string, IdentityTiming) {
	return "SELECT @@IDENTITY", IdentityAfterInsert
}

func (SQLServer) DefaultValue(expr string) any {
	bare := strings.Trim(strings.TrimSpace(expr), "()")
	if strings.HasPrefix(bare, "N'") {
		bare = bare[1:]
	}
	return defaultValue(bare, "getdate()", "sysdatetime()", "CURRENT_TIMESTAMP", "getutcdate()")
}

var (
	atPlaceholder = regexp.MustCompile(`@@?\w+`)
	assignedTo    = regexp.MustCompile(`^\s*=`)
	lastWord      = regexp.MustCompile(`(\w+|\()\s*$`)
)

// comparisons are the words after which "@x =" compares a value instead of
// naming the variable or routine parameter being assigned.
var comparisons = map[string]bool{"WHERE": true, "AND": true, "OR": true, "ON": true, "WHEN": true, "HAVING": true, "NOT": true, "(": true}

// Explain inlines @name placeholders. sql.Named arguments match by name, the
// others fill the remaining placeholders in order. @@ system variables and
// assignment targets (EXEC p @a = @a, SET @ret = ...) are kept.
func (SQLServer) Explain(query string, vars ...any) string {
	named := make(map[string]any)
	var positional []any
	for _, v := range vars {
		if arg, ok := v.(sql.NamedArg); ok {
			named[strings.ToLower(arg.Name)] = explainValue(arg.Value)
			continue
		}
		positional = append(positional, explainValue(v))
	}

	var (
		b      strings.Builder
		values []any
		next   int
		last   int
	)
	for _, loc := range atPlaceholder.FindAllStringIndex(query, -1) {
		m := query[loc[0]:loc[1]]
		b.WriteString(query[last:loc[0]])
		last = loc[1]
		if strings.HasPrefix(m, "@@") || isAssignmentTarget(query[:loc[0]], query[loc[1]:]) {
			b.WriteString(m)
			continue
		}
		if v, ok := named[strings.ToLower(m[1:])]; ok {
			values = append(values, v)
			b.WriteByte('?')
			continue
		}
		if next < len(positional) {
			values = append(values, positional[next])
			next++
			b.WriteByte('?')
			continue
		}
		b.WriteString(m)
	}
	b.WriteString(query[last:])
	return logger.ExplainSQL(b.String(), nil, `'`, values...)
}

func isAssignmentTarget(before, after string) bool {
	if !assignedTo.MatchString(after) || strings.HasPrefix(strings.TrimSpace(after), "==") {
		return false
	}
	word := lastWord.FindStringSubmatch(before)
	return word == nil || !comparisons[strings.ToUpper(word[1])]
}

func explainValue(v any) any {
	if out, ok := v.(sql.Out); ok {
		return out.Dest
	}
	return v
}

func (SQLServer) SchemaQuery(withOwner bool) string {
	query := "SELECT COLUMN_NAME, COLUMN_DEFAULT, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1"
	if withOwner {
		query += " AND TABLE_SCHEMA = @p2"
	}
	return query + " ORDER BY ORDINAL_POSITION"
}

func (SQLServer) PrimaryKeyQuery(withOwner bool) string {
	query := "SELECT kcu.COLUMN_NAME FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc " +
		"JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME " +
		"WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_NAME = @p1"
	if withOwner {
		query += " AND tc.TABLE_SCHEMA = @p2"
	}
	return query + " ORDER BY kcu.ORDINAL_POSITION"
}

// CallStatement renders
//
//	EXEC @returnValue = proc @x = @x, @z = @z OUTPUT
//	SET @returnValue = fn(@x, @y)
func (SQLServer) CallStatement(name string, kind CallKind, params []Param) string {
	if kind == Block {
		return name
	}
	var (
		ret   string
		named []string
		plain []string
	)
	for _, p := range params {
		if p.Direction == ReturnValue {
			ret = p.Name
			continue
		}
		arg := "@" + p.Name + " = @" + p.Name
		if p.IsOutput() {
			arg += " OUTPUT"
		}
		named = append(named, arg)
		plain = append(plain, "@"+p.Name)
	}
	if kind == Function {
		return "SET @" + ret + " = " + name + "(" + strings.Join(plain, ", ") + ")"
	}
	exec := "EXEC "
	if ret != "" {
		exec += "@" + ret + " = "
	}
	exec += name
	if len(named) > 0 {
		exec += " " + strings.Join(named, ", ")
	}
	return exec
}

func (SQLServer) OutBinding(p Param, dest any) any {
	return sql.Named(p.Name, sql.Out{Dest: dest, In: p.Direction == InOut})
}
