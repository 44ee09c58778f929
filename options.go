package dynamodel

import (
	"time"

	"gorm.io/gorm"
)

const defaultPageSize = 20

// Options configure one engine call. The zero value of every field means "use
// the default":
//
//   - Source defaults to the table name. A SELECT statement is used as a subquery.
//   - Columns defaults to "*".
//   - PrimaryKey defaults to the table's primary key.
//   - PageSize defaults to 20 and CurrentPage to 1.
//   - Timeout defaults to Config.Timeout.
//   - Conn defaults to a connection acquired from the model for the duration of the call.
type Options struct {
	Source     string
	Columns    string
	PrimaryKey string
	Where      string
	OrderBy    string
	Args       []any
	Limit      int

	PageSize    int
	CurrentPage int

	Timeout time.Duration
	// Conn overrides the connection. It is never closed by the engine.
	Conn gorm.ConnPool
	// NoTransaction runs ExecuteBatch statements without a wrapping transaction.
	NoTransaction bool
}

type Option func(*Options)

// Where filters by a raw condition, with or without the WHERE keyword.
func Where(condition string, args ...any) Option {
	return func(o *Options) {
		o.Where = condition
		o.Args = args
	}
}

// OrderBy sorts by a raw order list, with or without the ORDER BY keywords.
func OrderBy(order string) Option {
	return func(o *Options) {
		o.OrderBy = order
	}
}

func Columns(columns string) Option {
	return func(o *Options) {
		o.Columns = columns
	}
}

// Source reads from a table name or a SELECT statement instead of the model table.
func Source(source string) Option {
	return func(o *Options) {
		o.Source = source
	}
}

func PrimaryKey(column string) Option {
	return func(o *Options) {
		o.PrimaryKey = column
	}
}

func Limit(n int) Option {
	return func(o *Options) {
		o.Limit = n
	}
}

func PageSize(n int) Option {
	return func(o *Options) {
		o.PageSize = n
	}
}

// CurrentPage selects the 1-based page returned by Page.
func CurrentPage(n int) Option {
	return func(o *Options) {
		o.CurrentPage = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithConn runs the call on conn: a *sql.DB, *sql.Conn or *sql.Tx.
func WithConn(conn gorm.ConnPool) Option {
	return func(o *Options) {
		o.Conn = conn
	}
}

func WithoutTransaction() Option {
	return func(o *Options) {
		o.NoTransaction = true
	}
}

// options merges opts over the model defaults. Paging fields are left as
// given so invalid values can be reported.
func (m *Model) options(opts []Option) Options {
	o := m.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout == 0 {
		o.Timeout = m.Timeout
	}
	return o
}
