package dynamodel

import (
	"context"
	"math"

	"github.com/godoes/dynamodel/dialect"
)

// Page is one window of a paged query.
type Page struct {
	CountQuery   string
	PageQuery    string
	TotalRecords int64
	TotalPages   int
	CurrentPage  int
	Items        []*Record
}

// Query streams the records of a caller written query with positional arguments.
func (m *Model) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	s, err := m.acquire(ctx, m.options(nil))
	if err != nil {
		return nil, err
	}
	rows, err := s.stream(ctx, "query", query, args)
	if err != nil {
		_ = s.release(false)
		return nil, err
	}
	return rows, nil
}

// QueryNamed streams a query whose arguments are bound by name where the
// dialect allows it, and by position otherwise.
func (m *Model) QueryNamed(ctx context.Context, query string, args Args, opts ...Option) (*Rows, error) {
	o := m.options(opts)
	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	bound := make([]any, len(args))
	for i, arg := range args {
		v := m.profile.ConvertValue(arg.Value)
		if s.cfg.BindByName {
			bound[i] = m.profile.Bind(arg.Name, v)
		} else {
			bound[i] = v
		}
	}
	rows, err := s.stream(ctx, "query", query, bound)
	if err != nil {
		_ = s.release(false)
		return nil, err
	}
	return rows, nil
}

// QueryMultiple runs a command returning several result sets.
func (m *Model) QueryMultiple(ctx context.Context, query string, args ...any) (*ResultSets, error) {
	s, err := m.acquire(ctx, m.options(nil))
	if err != nil {
		return nil, err
	}
	rows, cancel, err := s.query(ctx, "query", query, args, nil)
	if err != nil {
		_ = s.release(false)
		return nil, err
	}
	src, err := dialect.FromSQLRows(rows)
	if err != nil {
		cancel()
		_ = s.release(false)
		return nil, m.providerError("query", query, nil, args, err)
	}
	return successiveSets(src.(nextSetter), func() error {
		cancel()
		return s.release(true)
	}), nil
}

// Execute runs a command and returns the number of affected rows.
func (m *Model) Execute(ctx context.Context, query string, args ...any) (n int64, err error) {
	s, err := m.acquire(ctx, m.options(nil))
	if err != nil {
		return 0, err
	}
	defer s.finish(&err)
	result, err := s.exec(ctx, "execute", query, args, nil)
	if err != nil {
		return 0, err
	}
	n, _ = result.RowsAffected()
	return n, nil
}

// ExecuteBatch runs statements in order inside one transaction, unless
// WithoutTransaction is given, and returns the total of affected rows.
func (m *Model) ExecuteBatch(ctx context.Context, statements []Statement, opts ...Option) (total int64, err error) {
	o := m.options(opts)
	s, err := m.acquire(ctx, o)
	if err != nil {
		return 0, err
	}
	defer s.finish(&err)
	if !o.NoTransaction {
		if err = s.begin(ctx); err != nil {
			return 0, err
		}
	}
	for _, stmt := range statements {
		result, err := s.exec(ctx, "execute batch", stmt.SQL, stmt.Args, nil)
		if err != nil {
			return total, err
		}
		if n, rerr := result.RowsAffected(); rerr == nil && n > 0 {
			total += n
		}
	}
	return total, nil
}

// All streams the records of the model table, filtered and sorted by opts.
func (m *Model) All(ctx context.Context, opts ...Option) (*Rows, error) {
	o := m.options(opts)
	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	rows, err := s.stream(ctx, "all", m.builder.BuildSelect(o), o.Args)
	if err != nil {
		_ = s.release(false)
		return nil, err
	}
	return rows, nil
}

// Single returns the record with primary key key, or nil when there is none.
func (m *Model) Single(ctx context.Context, key any, opts ...Option) (rec *Record, err error) {
	o := m.options(opts)
	pk := o.PrimaryKey
	if pk == "" {
		if pk, err = m.table.Key(ctx); err != nil {
			return nil, err
		}
	}
	if pk == "" {
		return nil, configError("single", "table %s has no primary key", m.table.Qualified())
	}

	var args []any
	o.Where = pk + " = " + m.builder.bind(&args, "key___", key)
	o.Args = args
	o.Limit = 1

	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	defer s.finish(&err)
	return s.queryRow(ctx, "single", m.builder.BuildSelect(o), args, nil)
}

// Count returns the number of records matching opts.
func (m *Model) Count(ctx context.Context, opts ...Option) (int64, error) {
	o := m.options(opts)
	v, err := m.scalar(ctx, o, "count", m.builder.BuildCount(o), o.Args)
	if err != nil {
		return 0, err
	}
	return Coerce[int64](v)
}

// Aggregate applies count, sum, max, min or avg to column over the records matching opts.
func (m *Model) Aggregate(ctx context.Context, fn, column string, opts ...Option) (any, error) {
	o := m.options(opts)
	query, err := m.builder.BuildAggregate(fn, column, o)
	if err != nil {
		return nil, err
	}
	return m.scalar(ctx, o, fn, query, o.Args)
}

func (m *Model) scalar(ctx context.Context, o Options, op, query string, args []any) (v any, err error) {
	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	defer s.finish(&err)
	return s.scalar(ctx, op, query, args)
}

// Page counts the matching records and reads one page of them. Both queries
// run on one connection.
func (m *Model) Page(ctx context.Context, opts ...Option) (page *Page, err error) {
	o := m.options(opts)
	if o.PrimaryKey == "" && o.OrderBy == "" && o.Source == "" {
		if o.PrimaryKey, err = m.table.Key(ctx); err != nil {
			return nil, err
		}
	}
	paging, err := m.builder.BuildPaging(o)
	if err != nil {
		return nil, err
	}

	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	defer s.finish(&err)

	page = &Page{CountQuery: paging.CountQuery, PageQuery: paging.PageQuery, CurrentPage: o.CurrentPage}
	total, err := s.scalar(ctx, "page count", paging.CountQuery, o.Args)
	if err != nil {
		return nil, err
	}
	if page.TotalRecords, err = Coerce[int64](total); err != nil {
		return nil, err
	}
	page.TotalPages = int(math.Ceil(float64(page.TotalRecords) / float64(paging.Size)))

	rows, cancel, err := s.query(ctx, "page", paging.PageQuery, o.Args, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	src, err := dialect.FromSQLRows(rows)
	if err != nil {
		return nil, m.providerError("page", paging.PageQuery, nil, o.Args, err)
	}
	if page.Items, err = newRows(src, nil).Collect(); err != nil {
		return nil, m.providerError("page", paging.PageQuery, nil, o.Args, err)
	}
	return page, nil
}

// Insert adds rec to the table and stores the generated primary key in it.
func (m *Model) Insert(ctx context.Context, rec *Record, opts ...Option) (out *Record, err error) {
	o := m.options(opts)
	columns, err := m.table.Columns(ctx)
	if err != nil {
		return nil, err
	}
	pk, err := m.table.Key(ctx)
	if err != nil {
		return nil, err
	}

	timing := dialect.IdentityNone
	var (
		identity string
		exclude  []string
	)
	if _, v, supplied := rec.Lookup(pk); pk != "" && (!supplied || v == nil) {
		identity, timing = m.profile.IdentityRetrieval(m.table.Sequence, pk)
		if timing != dialect.IdentityBeforeInsert {
			exclude = append(exclude, pk)
		}
	}

	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	defer s.finish(&err)

	if timing == dialect.IdentityBeforeInsert {
		id, err := s.scalar(ctx, "next identity", identity, nil)
		if err != nil {
			return nil, err
		}
		setKey(rec, pk, id)
	}
	stmt, err := m.builder.BuildInsert(columns, rec, exclude...)
	if err != nil {
		return nil, err
	}

	switch timing {
	case dialect.IdentityReturning:
		id, err := s.scalar(ctx, "insert", stmt.SQL+identity, stmt.Args)
		if err != nil {
			return nil, err
		}
		setKey(rec, pk, id)
	case dialect.IdentityLastInsertID:
		result, err := s.exec(ctx, "insert", stmt.SQL, stmt.Args, nil)
		if err != nil {
			return nil, err
		}
		if id, ierr := result.LastInsertId(); ierr == nil {
			setKey(rec, pk, id)
		}
	case dialect.IdentityAfterInsert:
		if _, err = s.exec(ctx, "insert", stmt.SQL, stmt.Args, nil); err != nil {
			return nil, err
		}
		id, err := s.scalar(ctx, "read identity", identity, nil)
		if err != nil {
			return nil, err
		}
		setKey(rec, pk, id)
	default:
		if _, err = s.exec(ctx, "insert", stmt.SQL, stmt.Args, nil); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// setKey stores a generated key under the record's own spelling of the column.
func setKey(rec *Record, pk string, id any) {
	if key, _, ok := rec.Lookup(pk); ok {
		pk = key
	}
	rec.Set(pk, id)
}

// Update writes the fields of rec to the row with primary key key.
func (m *Model) Update(ctx context.Context, rec *Record, key any, opts ...Option) (int64, error) {
	o := m.options(opts)
	columns, err := m.table.Columns(ctx)
	if err != nil {
		return 0, err
	}
	pk := o.PrimaryKey
	if pk == "" {
		if pk, err = m.table.Key(ctx); err != nil {
			return 0, err
		}
	}
	stmt, err := m.builder.BuildUpdate(columns, rec, pk, key)
	if err != nil {
		return 0, err
	}
	return m.Session(opts...).Execute(ctx, stmt.SQL, stmt.Args...)
}

// Delete removes the row with primary key key. A nil key deletes the rows
// matching the Where option.
func (m *Model) Delete(ctx context.Context, key any, opts ...Option) (int64, error) {
	o := m.options(opts)
	pk := o.PrimaryKey
	if pk == "" && key != nil {
		var err error
		if pk, err = m.table.Key(ctx); err != nil {
			return 0, err
		}
	}
	stmt, err := m.builder.BuildDelete(pk, key, o)
	if err != nil {
		return 0, err
	}
	return m.Session(opts...).Execute(ctx, stmt.SQL, stmt.Args...)
}

// Prototype returns an empty record of the table, filled with the column defaults.
func (m *Model) Prototype(ctx context.Context) (*Record, error) {
	columns, err := m.table.Columns(ctx)
	if err != nil {
		return nil, err
	}
	rec := NewRecord()
	for _, c := range columns {
		var v any
		if c.HasDefault {
			v = m.profile.DefaultValue(c.Default)
		}
		rec.Set(c.Name, v)
	}
	return rec, nil
}

// ColumnNames lists the columns of the model table.
func (m *Model) ColumnNames(ctx context.Context) ([]string, error) {
	columns, err := m.table.Columns(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names, nil
}
