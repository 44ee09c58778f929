package dialect

import (
	"database/sql"
	"database/sql/driver"
	"io"
)

// sqlRows exposes *sql.Rows through the driver.Rows contract so cursors and
// plain result sets are read the same way.
type sqlRows struct {
	rows    *sql.Rows
	columns []string
}

// FromSQLRows adapts rows. Closing the result closes rows.
func FromSQLRows(rows *sql.Rows) (driver.Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &sqlRows{rows: rows, columns: columns}, nil
}

func (r *sqlRows) Columns() []string {
	return r.columns
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Next(dest []driver.Value) error {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	values := make([]any, len(r.columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return err
	}
	for i := range values {
		dest[i] = values[i]
	}
	return nil
}

// NextSet advances to the next result set of a multi-statement command.
func (r *sqlRows) NextSet() (bool, error) {
	if !r.rows.NextResultSet() {
		return false, r.rows.Err()
	}
	columns, err := r.rows.Columns()
	if err != nil {
		return false, err
	}
	r.columns = columns
	return true, nil
}
