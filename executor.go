package dynamodel

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/godoes/dynamodel/dialect"
)

// session is the connection scope of one engine call. Everything it acquires
// is given back by release.
type session struct {
	m    *Model
	pool gorm.ConnPool
	conn *sql.Conn
	tx   *sql.Tx
	cfg  dialect.CommandConfig
}

type connProvider interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

func (m *Model) commandConfig(o Options) dialect.CommandConfig {
	return m.profile.CustomizeCommand(dialect.CommandConfig{
		Timeout:    o.Timeout,
		BindByName: m.profile.Features().NamedParameters,
	})
}

// acquire pins a connection for the call. A caller supplied *sql.Conn or
// *sql.Tx is used as is; a pool hands out a dedicated connection.
func (m *Model) acquire(ctx context.Context, o Options) (*session, error) {
	s := &session{m: m, cfg: m.commandConfig(o)}
	provider, ok := o.Conn.(connProvider)
	if o.Conn == nil {
		provider, ok = m.db, true
	}
	if !ok {
		s.pool = o.Conn
		return s, nil
	}
	conn, err := provider.Conn(ctx)
	if err != nil {
		return nil, m.providerError("acquire connection", "", nil, nil, err)
	}
	s.conn, s.pool = conn, conn
	return s, nil
}

// begin opens a transaction unless the session already runs in one.
func (s *session) begin(ctx context.Context) error {
	if _, ok := s.pool.(*sql.Tx); ok || s.tx != nil {
		return nil
	}
	beginner, ok := s.pool.(gorm.TxBeginner)
	if !ok {
		return configError("begin", "connection %T cannot begin a transaction", s.pool)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return s.m.providerError("begin transaction", "", nil, nil, err)
	}
	s.tx, s.pool = tx, tx
	return nil
}

// release ends the transaction opened by begin and returns the connection.
func (s *session) release(commit bool) error {
	var errs []error
	if s.tx != nil {
		var err error
		if commit {
			err = s.tx.Commit()
		} else {
			err = s.tx.Rollback()
		}
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		s.tx = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	return errors.Join(errs...)
}

// finish releases s, committing only when *err is nil, and reports release
// failures through *err.
func (s *session) finish(err *error) {
	if rerr := s.release(*err == nil); rerr != nil && *err == nil {
		*err = rerr
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *session) exec(ctx context.Context, op, query string, args []any, params []dialect.Param) (sql.Result, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	begin := time.Now()
	result, err := s.pool.ExecContext(ctx, query, args...)
	affected := int64(-1)
	if err == nil {
		affected, _ = result.RowsAffected()
	}
	s.m.trace(ctx, begin, query, args, affected, err)
	if err != nil {
		return nil, s.m.providerError(op, query, params, args, err)
	}
	return result, nil
}

// query runs a row returning command. The returned cancel func ends the
// command timeout and must be called after the rows are closed.
func (s *session) query(ctx context.Context, op, query string, args []any, params []dialect.Param) (*sql.Rows, context.CancelFunc, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)

	begin := time.Now()
	rows, err := s.pool.QueryContext(ctx, query, args...)
	s.m.trace(ctx, begin, query, args, -1, err)
	if err != nil {
		cancel()
		return nil, nil, s.m.providerError(op, query, params, args, err)
	}
	return rows, cancel, nil
}

// queryRow reads the first row of a command into a record, nil when it returns no rows.
func (s *session) queryRow(ctx context.Context, op, query string, args []any, params []dialect.Param) (*Record, error) {
	rows, cancel, err := s.query(ctx, op, query, args, params)
	if err != nil {
		return nil, err
	}
	defer cancel()
	src, err := dialect.FromSQLRows(rows)
	if err != nil {
		return nil, s.m.providerError(op, query, params, args, err)
	}
	r := newRows(src, nil)
	defer r.Close()
	if !r.Next() {
		if r.Err() != nil {
			return nil, s.m.providerError(op, query, params, args, r.Err())
		}
		return nil, nil
	}
	return r.Record(), nil
}

// scalar is the first column of the first row, nil for no rows.
func (s *session) scalar(ctx context.Context, op, query string, args []any) (any, error) {
	rec, err := s.queryRow(ctx, op, query, args, nil)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.At(0), nil
}

// stream hands the rows of a command to the caller. Closing the stream
// releases the session.
func (s *session) stream(ctx context.Context, op, query string, args []any) (*Rows, error) {
	rows, cancel, err := s.query(ctx, op, query, args, nil)
	if err != nil {
		return nil, err
	}
	src, err := dialect.FromSQLRows(rows)
	if err != nil {
		cancel()
		return nil, s.m.providerError(op, query, nil, args, err)
	}
	return newRows(src, func() error {
		cancel()
		return s.release(true)
	}), nil
}

func (m *Model) trace(ctx context.Context, begin time.Time, query string, args []any, rows int64, err error) {
	m.Logger.Trace(ctx, begin, func() (string, int64) {
		return m.profile.Explain(query, traceValues(args)...), rows
	}, err)
}

// traceValues unwraps named and output arguments for display.
func traceValues(args []any) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		if named, ok := arg.(sql.NamedArg); ok {
			arg = named.Value
		}
		if out, ok := arg.(sql.Out); ok {
			arg = dialect.DestinationValue(out.Dest)
		}
		values[i] = arg
	}
	return values
}

func (m *Model) providerError(op, query string, params []dialect.Param, args []any, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	e := &ProviderError{Op: op, SQL: query, Code: dialect.ErrorCode(err), Cause: err}
	if params != nil {
		e.Params = snapshot(params)
	} else {
		e.Params = argSnapshot(args)
	}
	if query != "" {
		e.Explained = m.profile.Explain(query, traceValues(args)...)
	}
	return e
}

func argSnapshot(args []any) []ParamSnapshot {
	if len(args) == 0 {
		return nil
	}
	out := make([]ParamSnapshot, len(args))
	for i, arg := range args {
		if named, ok := arg.(sql.NamedArg); ok {
			out[i] = ParamSnapshot{Name: named.Name, Value: named.Value}
			continue
		}
		out[i] = ParamSnapshot{Value: arg}
	}
	return out
}
