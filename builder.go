package dynamodel

import (
	"strings"

	"github.com/thoas/go-funk"

	"github.com/godoes/dynamodel/dialect"
)

// Statement is SQL text with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// PagingQuery is the count and window pair of one page request. Both are
// derived from the same core query.
type PagingQuery struct {
	CountQuery string
	PageQuery  string
	Offset     int
	Size       int
}

// Builder renders statements for a table through a dialect profile.
type Builder struct {
	profile dialect.Profile
	table   *Table
	namer   Namer
}

func NewBuilder(profile dialect.Profile, table *Table, namer Namer) *Builder {
	return &Builder{profile: profile, table: table, namer: namer}
}

func clause(keyword, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) > len(keyword) && strings.EqualFold(raw[:len(keyword)+1], keyword+" ") {
		return " " + raw
	}
	return " " + keyword + " " + raw
}

func whereClause(raw string) string {
	return clause("WHERE", raw)
}

func orderByClause(raw string) string {
	return clause("ORDER BY", raw)
}

func (b *Builder) source(o Options) string {
	src := strings.TrimSpace(o.Source)
	if src == "" {
		return b.table.Qualified()
	}
	if len(src) > 7 && strings.EqualFold(src[:7], "SELECT ") {
		return "(" + src + ") src___"
	}
	return src
}

func (b *Builder) primaryKey(o Options) string {
	if o.PrimaryKey != "" {
		return o.PrimaryKey
	}
	return b.table.PrimaryKey
}

func columnsOrStar(columns string) string {
	if strings.TrimSpace(columns) == "" {
		return "*"
	}
	return columns
}

func (b *Builder) BuildSelect(o Options) string {
	return b.profile.SelectPattern(columnsOrStar(o.Columns), b.source(o), whereClause(o.Where), orderByClause(o.OrderBy), o.Limit)
}

func (b *Builder) BuildCount(o Options) string {
	return b.profile.CountRowPattern(b.source(o)) + whereClause(o.Where)
}

// BuildAggregate renders SELECT fn(column) over the filtered source.
func (b *Builder) BuildAggregate(fn, column string, o Options) (string, error) {
	sqlFn, ok := b.profile.AggregateFunction(fn)
	if !ok {
		return "", configError("aggregate", "unknown aggregate function %q", fn)
	}
	return "SELECT " + sqlFn + "(" + columnsOrStar(column) + ") FROM " + b.source(o) + whereClause(o.Where), nil
}

// BuildPaging renders the count query and the page window over one core query.
// Without an order the primary key is used so page boundaries are stable.
func (b *Builder) BuildPaging(o Options) (PagingQuery, error) {
	if o.PageSize <= 0 {
		return PagingQuery{}, configError("paging", "page size must be positive, got %d", o.PageSize)
	}
	if o.CurrentPage < 1 {
		return PagingQuery{}, configError("paging", "current page must be at least 1, got %d", o.CurrentPage)
	}
	order := o.OrderBy
	if strings.TrimSpace(order) == "" {
		order = b.primaryKey(o)
	}
	if order == "" {
		return PagingQuery{}, configError("paging", "an order or a primary key is required")
	}

	core := b.profile.SelectPattern(columnsOrStar(o.Columns), b.source(o), whereClause(o.Where), orderByClause(order), 0)
	offset := (o.CurrentPage - 1) * o.PageSize
	return PagingQuery{
		CountQuery: b.profile.WrapCount(core),
		PageQuery:  b.profile.WrapPage(core, offset, o.PageSize),
		Offset:     offset,
		Size:       o.PageSize,
	}, nil
}

// field is a record value matched to a table column.
type field struct {
	column string
	value  any
}

// fields matches the record keys to columns, in record order, skipping
// unknown keys and the excluded columns.
func (b *Builder) fields(columns []dialect.Column, rec *Record, exclude ...string) []field {
	keys := funk.FilterString(rec.Columns(), func(key string) bool {
		return !funk.ContainsString(exclude, key)
	})
	out := make([]field, 0, len(keys))
	for _, key := range keys {
		column, ok := b.namer.Resolve(columns, key)
		if !ok || funk.ContainsString(exclude, column) {
			continue
		}
		out = append(out, field{column: column, value: rec.Value(key)})
	}
	return out
}

func (b *Builder) bind(args *[]any, name string, value any) string {
	marker := b.profile.Placeholder(len(*args), name)
	*args = append(*args, b.profile.Bind(name, b.profile.ConvertValue(value)))
	return marker
}

// BuildInsert renders an INSERT of every record field that names a column.
func (b *Builder) BuildInsert(columns []dialect.Column, rec *Record, exclude ...string) (Statement, error) {
	fields := b.fields(columns, rec, exclude...)
	if len(fields) == 0 {
		return Statement{}, &SchemaError{Table: b.table.Qualified(), Reason: "record has no fields matching a column"}
	}
	var (
		args    []any
		names   = make([]string, len(fields))
		markers = make([]string, len(fields))
	)
	for i, f := range fields {
		names[i] = f.column
		markers[i] = b.bind(&args, f.column, f.value)
	}
	return Statement{
		SQL:  b.profile.InsertPattern(b.table.Qualified(), strings.Join(names, ", "), strings.Join(markers, ", ")),
		Args: args,
	}, nil
}

// BuildUpdate renders an UPDATE of the record fields for the row with key.
func (b *Builder) BuildUpdate(columns []dialect.Column, rec *Record, primaryKey string, key any) (Statement, error) {
	if primaryKey == "" {
		return Statement{}, configError("update", "table %s has no primary key", b.table.Qualified())
	}
	fields := b.fields(columns, rec, primaryKey)
	if len(fields) == 0 {
		return Statement{}, &SchemaError{Table: b.table.Qualified(), Reason: "record has no fields matching a column"}
	}
	var args []any
	assignments := funk.Map(fields, func(f field) string {
		return f.column + " = " + b.bind(&args, f.column, f.value)
	}).([]string)
	where := " WHERE " + primaryKey + " = " + b.bind(&args, "key___", key)
	return Statement{
		SQL:  b.profile.UpdatePattern(b.table.Qualified(), strings.Join(assignments, ", ")) + where,
		Args: args,
	}, nil
}

// BuildDelete renders a DELETE by key, or by the where option when key is nil.
func (b *Builder) BuildDelete(primaryKey string, key any, o Options) (Statement, error) {
	target := b.profile.DeletePattern(b.table.Qualified())
	if key == nil {
		if strings.TrimSpace(o.Where) == "" {
			return Statement{}, configError("delete", "a key or a where condition is required")
		}
		return Statement{SQL: target + whereClause(o.Where), Args: o.Args}, nil
	}
	if primaryKey == "" {
		return Statement{}, configError("delete", "table %s has no primary key", b.table.Qualified())
	}
	var args []any
	where := " WHERE " + primaryKey + " = " + b.bind(&args, "key___", key)
	return Statement{SQL: target + where, Args: args}, nil
}
