package dialect

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sijms/go-ora/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxPLSQLStringSize is the largest VARCHAR2 a PL/SQL output can carry.
const maxPLSQLStringSize = 32767

// Oracle renders SQL for Oracle Database through the go-ora driver.
type Oracle struct {
	standard

	// Version is the major server version. From 12 on, paging uses
	// OFFSET/FETCH instead of the nested rownum window.
	Version int

	// RowNumberAlias is the alias of the rownum column in the paging window, defaulting to r___
	RowNumberAlias string
}

func (Oracle) Name() string {
	return "oracle"
}

func (Oracle) Features() Features {
	return Features{
		Cursors:              true,
		StoredRoutines:       true,
		NamedParameters:      true,
		LargeStringThreshold: 4000,
		DefaultStringSize:    4000,
		UpperCaseIdentifiers: true,
	}
}

func (Oracle) Placeholder(_ int, name string) string {
	return ":" + name
}

// ParameterName keeps the bare name for bound parameters; Oracle rejects
// prefixed names when binding by name.
func (Oracle) ParameterName(raw string, native bool) string {
	if native {
		return raw
	}
	return ":" + raw
}

func (Oracle) Bind(name string, value any) any {
	return sql.Named(name, value)
}

func (Oracle) ConvertValue(v any) any {
	switch val := ptrDereference(v).(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return getTimeValue(val)
	default:
		return convertCustomType(v)
	}
}

func (o Oracle) SelectPattern(columns, source, where, orderBy string, limit int) string {
	query := "SELECT " + columns + " FROM " + source + where + orderBy
	if limit <= 0 {
		return query
	}
	if o.Version > 11 {
		return query + " FETCH FIRST " + strconv.Itoa(limit) + " ROWS ONLY"
	}
	// wrap before filtering so ordering and aggregates see the complete set
	return fmt.Sprintf("SELECT * FROM (%s) WHERE rownum <= %d", query, limit)
}

func (Oracle) WrapCount(core string) string {
	return "SELECT COUNT(*) FROM (" + core + ")"
}

// WrapPage windows the core query.
//
// # Oracle 12 and later
//
//	core OFFSET offset ROWS FETCH NEXT size ROWS ONLY
//
// # Oracle 11g and lower
//
//	SELECT * FROM (SELECT a.*, rownum r___ FROM (core) a WHERE rownum <= offset+size) WHERE r___ > offset
func (o Oracle) WrapPage(core string, offset, size int) string {
	if o.Version > 11 {
		return fmt.Sprintf("%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", core, offset, size)
	}
	alias := o.RowNumberAlias
	if alias == "" {
		alias = "r___"
	}
	return fmt.Sprintf("SELECT * FROM (SELECT a.*, rownum %s FROM (%s) a WHERE rownum <= %d) WHERE %s > %d",
		alias, core, offset+size, alias, offset)
}

func (Oracle) IdentityRetrieval(sequence, _ string) (string, IdentityTiming) {
	if sequence == "" {
		return "", IdentityNone
	}
	return fmt.Sprintf("SELECT %s.NEXTVAL FROM DUAL", sequence), IdentityBeforeInsert
}

func (Oracle) DefaultValue(expr string) any {
	return defaultValue(expr, "SYSDATE", "SYSTIMESTAMP", "CURRENT_TIMESTAMP", "CURRENT_DATE")
}

// CustomizeCommand binds by name; otherwise go-ora binds by position.
func (Oracle) CustomizeCommand(cfg CommandConfig) CommandConfig {
	cfg.BindByName = true
	return cfg
}

var numericPlaceholder = regexp.MustCompile(`:(\d+)`)

func (Oracle) Explain(sql string, vars ...any) string {
	for idx, val := range vars {
		switch v := ptrDereference(val).(type) {
		case bool:
			if v {
				vars[idx] = 1
			} else {
				vars[idx] = 0
			}
		case go_ora.Clob:
			vars[idx] = v.String
		}
	}
	return logger.ExplainSQL(sql, numericPlaceholder, `'`, vars...)
}

func (Oracle) SchemaQuery(withOwner bool) string {
	if withOwner {
		return "SELECT COLUMN_NAME, DATA_DEFAULT AS COLUMN_DEFAULT, NULLABLE AS IS_NULLABLE FROM ALL_TAB_COLUMNS " +
			"WHERE TABLE_NAME = :0 AND OWNER = :1 ORDER BY COLUMN_ID"
	}
	return "SELECT COLUMN_NAME, DATA_DEFAULT AS COLUMN_DEFAULT, NULLABLE AS IS_NULLABLE FROM USER_TAB_COLUMNS " +
		"WHERE TABLE_NAME = :0 ORDER BY COLUMN_ID"
}

func (Oracle) PrimaryKeyQuery(withOwner bool) string {
	if withOwner {
		return "SELECT cols.COLUMN_NAME FROM ALL_CONSTRAINTS cons JOIN ALL_CONS_COLUMNS cols " +
			"ON cons.CONSTRAINT_NAME = cols.CONSTRAINT_NAME AND cons.OWNER = cols.OWNER " +
			"WHERE cons.CONSTRAINT_TYPE = 'P' AND cons.TABLE_NAME = :0 AND cons.OWNER = :1 ORDER BY cols.POSITION"
	}
	return "SELECT cols.COLUMN_NAME FROM USER_CONSTRAINTS cons JOIN USER_CONS_COLUMNS cols " +
		"ON cons.CONSTRAINT_NAME = cols.CONSTRAINT_NAME " +
		"WHERE cons.CONSTRAINT_TYPE = 'P' AND cons.TABLE_NAME = :0 ORDER BY cols.POSITION"
}

// CallStatement wraps the routine in an anonymous PL/SQL block using named notation,
// so parameter order never matters:
//
//	BEGIN :returnValue := FIND_MAX(x => :x, y => :y); END;
func (Oracle) CallStatement(name string, kind CallKind, params []Param) string {
	if kind == Block {
		return name
	}
	var (
		ret  string
		args = make([]Param, 0, len(params))
	)
	for _, p := range params {
		if p.Direction == ReturnValue {
			ret = p.Name
			continue
		}
		args = append(args, p)
	}
	call := name + "(" + argList(args, func(_ int, p Param) string {
		return p.Name + " => :" + p.Name
	}) + ")"
	if kind == Function && ret != "" {
		return "BEGIN :" + ret + " := " + call + "; END;"
	}
	return "BEGIN " + call + "; END;"
}

func (Oracle) OutBinding(p Param, dest any) any {
	if p.Cursor {
		return sql.Named(p.Name, sql.Out{Dest: dest, In: p.Direction == InOut})
	}
	size := p.Size
	if size == UnboundedSize {
		size = maxPLSQLStringSize
	}
	return sql.Named(p.Name, go_ora.Out{Dest: dest, Size: size, In: p.Direction == InOut})
}

func (Oracle) Destination(p Param) any {
	if p.Cursor {
		return new(go_ora.RefCursor)
	}
	return newDestination(p)
}

// Dereference opens the data set of a ref cursor returned by a previous command.
// The cursor must come from the connection the command ran on.
func (Oracle) Dereference(_ context.Context, _ gorm.ConnPool, handle any) (driver.Rows, error) {
	var cursor *go_ora.RefCursor
	switch h := handle.(type) {
	case *go_ora.RefCursor:
		cursor = h
	case go_ora.RefCursor:
		cursor = &h
	default:
		return nil, fmt.Errorf("dialect: oracle cannot dereference %T", handle)
	}
	dataset, err := cursor.Query()
	if err != nil {
		_ = cursor.Close()
		return nil, err
	}
	return &refCursorRows{DataSet: dataset, cursor: cursor}, nil
}

// refCursorRows closes the cursor together with its data set.
type refCursorRows struct {
	*go_ora.DataSet
	cursor *go_ora.RefCursor
}

func (r *refCursorRows) Close() error {
	return errors.Join(r.DataSet.Close(), r.cursor.Close())
}

// BuildUrl create databaseURL from server, port, service, user, password, urlOptions
// this function help build a will formed databaseURL and accept any character as it
// convert special charters to corresponding values in URL
func BuildUrl(server string, port int, service, user, password string, options map[string]string) string {
	return go_ora.BuildUrl(server, port, service, user, password, options)
}

// QuoteLiteral returns value as an Oracle string literal, using the q'[...]'
// form when it contains single quotes.
func QuoteLiteral(value string) string {
	if !strings.Contains(value, "'") {
		return "'" + value + "'"
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}, {"<", ">"}, {"(", ")"}} {
		if !strings.Contains(value, pair[1]+"'") {
			return "q'" + pair[0] + value + pair[1] + "'"
		}
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func convertCustomType(val any) any {
	if val == nil {
		return nil
	}
	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return val
		}
		rv = rv.Elem()
	}
	// custom time type
	if m := rv.MethodByName("Time"); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		if t, ok := m.Call(nil)[0].Interface().(time.Time); ok {
			return getTimeValue(t)
		}
	}
	return val
}

func ptrDereference(obj any) any {
	if obj == nil {
		return obj
	}
	if t := reflect.TypeOf(obj); t.Kind() != reflect.Ptr {
		return obj
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() == reflect.Ptr && v.IsNil() {
		return obj
	}
	return v.Interface()
}

func getTimeValue(t time.Time) any {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return t
}
