package dynamodel

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/godoes/dynamodel/dialect"
)

// passthrough hands arguments to the mock unchanged, so provider out bindings survive.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) {
	return v, nil
}

func newMock(t *testing.T, profile dialect.Profile) (*Model, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.ValueConverterOption(passthrough{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := New(Config{Conn: db, Profile: profile, Table: "emp", PrimaryKey: "id", Logger: logger.Discard})
	require.NoError(t, err)
	return m, mock
}

// fakeRows is an in-memory cursor.
type fakeRows struct {
	columns []string
	data    [][]driver.Value
	pos     int
	closed  bool
}

func (r *fakeRows) Columns() []string {
	return r.columns
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}

type cursorRef struct {
	name string
}

// cursorOracle serves cursors from memory instead of go-ora ref cursors.
type cursorOracle struct {
	dialect.Oracle
	cursors map[string]*fakeRows
}

func (o *cursorOracle) Destination(p dialect.Param) any {
	if p.Cursor {
		return &cursorRef{name: p.Name}
	}
	return o.Oracle.Destination(p)
}

func (o *cursorOracle) Dereference(_ context.Context, _ gorm.ConnPool, handle any) (driver.Rows, error) {
	ref, ok := handle.(*cursorRef)
	if !ok {
		return nil, errors.New("not a cursor")
	}
	rows, ok := o.cursors[ref.name]
	if !ok {
		return nil, errors.New("ORA-01001: invalid cursor")
	}
	return rows, nil
}

func TestOracleProcedureOutputs(t *testing.T) {
	m, mock := newMock(t, dialect.Oracle{Version: 19})
	mock.ExpectExec("BEGIN FIND_MAX(x => :x, y => :y, result => :result, doubled => :doubled); END;").
		WithArgs(sql.Named("x", 1), sql.Named("y", 0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := m.CallProcedure(context.Background(), "FIND_MAX", CallArgs{
		In:    Named("x", 1, "y", false),
		Out:   Args{Typed("result", dialect.KindInt, nil)},
		InOut: Args{Typed("doubled", dialect.KindInt, nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"result", "doubled"}, res.Values.Columns())
	for _, name := range res.Values.Columns() {
		v, ok := res.Values.Get(name)
		require.True(t, ok)
		assert.Nil(t, v, name)
	}
	assert.Nil(t, res.Sets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOracleFunctionReturnValue(t *testing.T) {
	m, mock := newMock(t, dialect.Oracle{Version: 19})
	mock.ExpectExec("BEGIN :returnValue := F_ADD(a => :a); END;").
		WithArgs(sql.Named("a", 1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := m.CallFunction(context.Background(), "F_ADD", CallArgs{In: Named("a", 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultReturnName}, res.Values.Columns())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOracleCursorsDereferencedInOrder(t *testing.T) {
	emps := &fakeRows{columns: []string{"ID", "NAME"}, data: [][]driver.Value{{int64(1), "Ann"}, {int64(2), "Bob"}}}
	mgrs := &fakeRows{columns: []string{"ID"}, data: [][]driver.Value{{int64(9)}}}
	profile := &cursorOracle{Oracle: dialect.Oracle{Version: 19}, cursors: map[string]*fakeRows{"emps": emps, "mgrs": mgrs}}
	m, mock := newMock(t, profile)
	mock.ExpectExec("BEGIN EMP_PKG.LISTS(dept => :dept, emps => :emps, mgrs => :mgrs); END;").
		WithArgs(sql.Named("dept", 10), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sets, err := m.QueryMultipleProcedure(context.Background(), "EMP_PKG.LISTS", CallArgs{
		In:  Named("dept", 10),
		Out: Named("emps", Cursor{}, "mgrs", Cursor{}),
	})
	require.NoError(t, err)
	require.Len(t, sets.Sets(), 2)

	got, err := sets.Collect()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0], 2)
	assert.Equal(t, "Bob", got[0][1].Value("NAME"))
	require.Len(t, got[1], 1)
	assert.Equal(t, int64(9), got[1][0].Value("ID"))
	assert.True(t, emps.closed)
	assert.True(t, mgrs.closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCursorDereferenceFailureClosesOpenedSets(t *testing.T) {
	emps := &fakeRows{columns: []string{"ID"}}
	profile := &cursorOracle{Oracle: dialect.Oracle{Version: 19}, cursors: map[string]*fakeRows{"emps": emps}}
	m, mock := newMock(t, profile)
	mock.ExpectExec("BEGIN EMP_PKG.LISTS(emps => :emps, gone => :gone); END;").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := m.QueryMultipleProcedure(context.Background(), "EMP_PKG.LISTS", CallArgs{
		Out: Named("emps", Cursor{}, "gone", Cursor{}),
	})
	require.ErrorIs(t, err, ErrProvider)
	assert.True(t, emps.closed)
}

func TestCursorUnsupportedBeforeAnyCommand(t *testing.T) {
	m, mock := newMock(t, dialect.MySQL{})
	_, err := m.CallProcedure(context.Background(), "p", CallArgs{Out: Named("rc", Cursor{})})
	require.ErrorIs(t, err, ErrUnsupported)
	var unsupported *UnsupportedFeatureError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "mysql", unsupported.Dialect)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoredRoutinesUnsupported(t *testing.T) {
	m, mock := newMock(t, dialect.SQLite{})
	_, err := m.CallProcedure(context.Background(), "p", CallArgs{In: Named("a", 1)})
	require.ErrorIs(t, err, ErrUnsupported)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutputsFromResultRow(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectQuery("CALL add_one($1, NULL)").
		WithArgs(41).
		WillReturnRows(sqlmock.NewRows([]string{"b"}).AddRow(int64(42)))

	res, err := m.CallProcedure(context.Background(), "add_one", CallArgs{
		In:  Named("a", 41),
		Out: Named("b", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Values.Value("b"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFunction(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectQuery(`SELECT add($1, $2) AS "returnValue"`).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"returnValue"}).AddRow(int64(3)))

	res, err := m.CallFunction(context.Background(), "add", CallArgs{In: Named("a", 1, "b", 2)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Values.Value(DefaultReturnName))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRefCursorInsideTransaction(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT get_emps($1) AS "emps"`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"emps"}).AddRow("<unnamed portal 1>"))
	mock.ExpectQuery(`FETCH ALL IN "<unnamed portal 1>"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ann").AddRow(int64(2), "Bob"))
	mock.ExpectCommit()

	rows, err := m.QueryProcedure(context.Background(), "get_emps", CallArgs{
		In:     Named("dept", 10),
		Return: Named("emps", Cursor{}),
	})
	require.NoError(t, err)
	records, err := rows.Collect()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"id", "name"}, records[0].Columns())
	assert.Equal(t, "Bob", records[1].Value("name"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNullCursorKeepsItsPosition(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectBegin()
	mock.ExpectQuery("CALL get_two(NULL, NULL)").
		WillReturnRows(sqlmock.NewRows([]string{"prc1", "prc2"}).AddRow(nil, "p2"))
	mock.ExpectQuery(`FETCH ALL IN "p2"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	sets, err := m.QueryMultipleProcedure(context.Background(), "get_two", CallArgs{
		Out: Named("prc1", Cursor{}, "prc2", Cursor{}),
	})
	require.NoError(t, err)
	require.Len(t, sets.Sets(), 2)

	got, err := sets.Collect()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0])
	require.Len(t, got[1], 1)
	assert.Equal(t, int64(2), got[1][0].Value("id"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbandonedProcedureStreamReleasesCursors(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectBegin()
	mock.ExpectQuery("CALL get_two(NULL, NULL)").
		WillReturnRows(sqlmock.NewRows([]string{"prc1", "prc2"}).AddRow("p1", "p2"))
	mock.ExpectQuery(`FETCH ALL IN "p1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2))).
		RowsWillBeClosed()
	mock.ExpectQuery(`FETCH ALL IN "p2"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3))).
		RowsWillBeClosed()
	mock.ExpectCommit()

	rows, err := m.QueryProcedure(context.Background(), "get_two", CallArgs{
		Out: Named("prc1", Cursor{}, "prc2", Cursor{}),
	})
	require.NoError(t, err)
	for rec, err := range rows.All() {
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Value("id"))
		break
	}
	require.NoError(t, rows.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, m.DB().(*sql.DB).Stats().InUse)
}

func TestAbandonedResultSetsRelease(t *testing.T) {
	m, mock := newMock(t, dialect.MySQL{})
	mock.ExpectQuery("SELECT id FROM emp; SELECT id FROM dept").
		WillReturnRows(
			sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)),
			sqlmock.NewRows([]string{"id"}).AddRow(int64(10)),
		).
		RowsWillBeClosed()

	sets, err := m.QueryMultiple(context.Background(), "SELECT id FROM emp; SELECT id FROM dept")
	require.NoError(t, err)
	require.True(t, sets.Next())
	require.True(t, sets.Rows().Next())
	assert.Equal(t, int64(1), sets.Rows().Record().Value("id"))

	require.NoError(t, sets.Close())
	require.NoError(t, sets.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, m.DB().(*sql.DB).Stats().InUse)
}

func TestMySQLOutputVariables(t *testing.T) {
	m, mock := newMock(t, dialect.MySQL{})
	mock.ExpectExec("SET @total = ?").WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CALL accumulate(?, @msg, @total)").WithArgs(10).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT @msg AS `msg`, @total AS `total`").
		WillReturnRows(sqlmock.NewRows([]string{"msg", "total"}).AddRow("ok", int64(15)))

	res, err := m.CallProcedure(context.Background(), "accumulate", CallArgs{
		In:    Named("amount", 10),
		Out:   Named("msg", nil),
		InOut: Named("total", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Values.Value("msg"))
	assert.Equal(t, int64(15), res.Values.Value("total"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateArgumentIsRejected(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	_, err := m.CallProcedure(context.Background(), "p", CallArgs{In: Named("x", 1), Out: Named("x", nil)})
	require.ErrorIs(t, err, ErrConfiguration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderError(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectExec("DELETE FROM emp WHERE id = $1").
		WithArgs(7).
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})

	_, err := m.Delete(context.Background(), 7)
	require.ErrorIs(t, err, ErrProvider)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "23503", pe.Code)
	assert.Equal(t, "DELETE FROM emp WHERE id = $1", pe.SQL)
	assert.Equal(t, "DELETE FROM emp WHERE id = 7", pe.Explained)
	require.Len(t, pe.Params, 1)
	assert.Equal(t, 7, pe.Params[0].Value)
	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandTimeout(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectExec("UPDATE emp SET dept = 1").
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := m.Session(WithTimeout(10*time.Millisecond)).Execute(context.Background(), "UPDATE emp SET dept = 1")
	require.ErrorIs(t, err, ErrProvider)
}

func TestConfiguredTimeoutAppliesToEveryCommand(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m, err := New(Config{Conn: db, Profile: dialect.Postgres{}, Table: "emp", Logger: logger.Discard, Timeout: 10 * time.Millisecond})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE emp SET dept = 1").
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = m.Execute(context.Background(), "UPDATE emp SET dept = 1")
	require.ErrorIs(t, err, ErrProvider)

	mock.ExpectQuery("SELECT 1").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	_, err = Scalar[int64](context.Background(), m, "SELECT 1")
	require.ErrorIs(t, err, ErrProvider)

	mock.ExpectQuery("SELECT id FROM emp").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = m.Query(context.Background(), "SELECT id FROM emp")
	require.ErrorIs(t, err, ErrProvider)
}

func TestExecuteBatch(t *testing.T) {
	t.Run("Commit", func(t *testing.T) {
		m, mock := newMock(t, dialect.Postgres{})
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE emp SET dept = $1").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM emp WHERE dept = $1").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		n, err := m.ExecuteBatch(context.Background(), []Statement{
			{SQL: "UPDATE emp SET dept = $1", Args: []any{1}},
			{SQL: "DELETE FROM emp WHERE dept = $1", Args: []any{2}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		m, mock := newMock(t, dialect.Postgres{})
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE emp SET dept = 1").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM dept").WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		_, err := m.ExecuteBatch(context.Background(), []Statement{
			{SQL: "UPDATE emp SET dept = 1"},
			{SQL: "DELETE FROM dept"},
		})
		require.ErrorIs(t, err, ErrProvider)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPageOnOneConnection(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectQuery("SELECT COUNT(*) FROM (SELECT * FROM emp WHERE dept = $1 ORDER BY id) AS q___").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(45)))
	mock.ExpectQuery("SELECT * FROM emp WHERE dept = $1 ORDER BY id LIMIT 20 OFFSET 20").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)).AddRow(int64(22)))

	page, err := m.Page(context.Background(), Where("dept = $1", 10), CurrentPage(2))
	require.NoError(t, err)
	assert.Equal(t, int64(45), page.TotalRecords)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(21), page.Items[0].Value("id"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryNamedOracle(t *testing.T) {
	m, mock := newMock(t, dialect.Oracle{Version: 19})
	mock.ExpectQuery("SELECT * FROM EMP WHERE ACTIVE = :active").
		WithArgs(sql.Named("active", 1)).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(int64(1), "Ann"))

	rows, err := m.QueryNamed(context.Background(), "SELECT * FROM EMP WHERE ACTIVE = :active", Named("active", true))
	require.NoError(t, err)
	records, err := rows.Collect()
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, v, ok := records[0].Lookup("name")
	require.True(t, ok)
	assert.Equal(t, "Ann", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithConnIsNotClosed(t *testing.T) {
	m, mock := newMock(t, dialect.Postgres{})
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE emp SET dept = 1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	tx, err := m.DB().(*sql.DB).Begin()
	require.NoError(t, err)
	n, err := m.Session(WithConn(tx)).Execute(context.Background(), "UPDATE emp SET dept = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
