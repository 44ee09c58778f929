package dynamodel

import (
	"context"
	"strings"

	"github.com/godoes/dynamodel/dialect"
)

// DefaultReturnName names the implicit return argument added by CallFunction.
const DefaultReturnName = "returnValue"

// CallResult is the outcome of a routine call.
type CallResult struct {
	// Values holds output, input-output and return values by parameter name.
	// Cursor parameters hold the raw provider handle.
	Values *Record
	// Sets holds the dereferenced cursors in parameter order, or the result sets
	// the routine returned. It is nil unless the call was a query.
	Sets *ResultSets
}

// Close releases the result sets, if any.
func (r *CallResult) Close() error {
	if r == nil || r.Sets == nil {
		return nil
	}
	return r.Sets.Close()
}

type call struct {
	name  string
	kind  dialect.CallKind
	args  CallArgs
	query bool
}

// invoke runs one routine call:
// classify, render and bind, execute, read the outputs, then dereference the
// cursors when the call is a query.
func (m *Model) invoke(ctx context.Context, c call, o Options) (result *CallResult, err error) {
	features := m.profile.Features()
	if c.kind != dialect.Block && !features.StoredRoutines {
		return nil, &UnsupportedFeatureError{Dialect: m.profile.Name(), Feature: "stored routines"}
	}
	params, err := Classify(m.profile, c.args)
	if err != nil {
		return nil, err
	}
	statement := m.profile.CallStatement(c.name, c.kind, params)
	if strings.TrimSpace(statement) == "" {
		return nil, configError("call", "empty statement for %q", c.name)
	}
	var cursors []dialect.Param
	for _, p := range params {
		if p.Cursor && p.IsOutput() {
			cursors = append(cursors, p)
		}
	}

	s, err := m.acquire(ctx, o)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			s.finish(&err)
		}
	}()
	if c.query && len(cursors) > 0 && features.CursorsNeedTransaction {
		if err = s.begin(ctx); err != nil {
			return nil, err
		}
	}

	result = &CallResult{Values: NewRecord()}
	if c.query && len(cursors) == 0 {
		sets, qerr := m.querySets(ctx, s, c.kind, statement, params)
		if qerr != nil {
			return nil, qerr
		}
		handedOff = true
		result.Sets = sets
		return result, nil
	}

	switch m.profile.OutputMode(c.kind) {
	case dialect.OutputAsResultRow:
		err = m.callResultRow(ctx, s, statement, params, result.Values)
	case dialect.OutputViaVariables:
		err = m.callVariables(ctx, s, statement, params, result.Values)
	default:
		err = m.callBinding(ctx, s, statement, params, result.Values)
	}
	if err != nil {
		return nil, err
	}
	if !c.query || len(cursors) == 0 {
		return result, nil
	}

	sets := make([]*Rows, 0, len(cursors))
	for _, p := range cursors {
		handle := result.Values.Value(p.Name)
		if handle == nil {
			sets = append(sets, newRows(emptyRows{}, nil))
			continue
		}
		src, derr := m.profile.Dereference(ctx, s.pool, handle)
		if derr != nil {
			for _, rows := range sets {
				_ = rows.Close()
			}
			return nil, m.providerError("dereference cursor "+p.Name, statement, params, nil, derr)
		}
		sets = append(sets, newRows(src, nil))
	}
	handedOff = true
	result.Sets = cursorSets(sets, func() error { return s.release(true) })
	return result, nil
}

// callBinding binds outputs as provider out arguments.
func (m *Model) callBinding(ctx context.Context, s *session, statement string, params []dialect.Param, values *Record) error {
	args := make([]any, len(params))
	dests := make([]any, len(params))
	for i, p := range params {
		if p.IsOutput() {
			dests[i] = m.profile.Destination(p)
			args[i] = m.profile.OutBinding(p, dests[i])
			continue
		}
		args[i] = m.profile.Bind(p.Name, inputValue(m.profile, p))
	}
	if _, err := s.exec(ctx, "call", statement, args, params); err != nil {
		return err
	}
	for i, p := range params {
		if !p.IsOutput() {
			continue
		}
		if p.Cursor {
			values.Set(p.Name, dests[i])
			continue
		}
		values.Set(p.Name, dialect.DestinationValue(dests[i]))
	}
	return nil
}

// callResultRow binds the inputs and reads the outputs from the row the call returns.
func (m *Model) callResultRow(ctx context.Context, s *session, statement string, params []dialect.Param, values *Record) error {
	var args []any
	for _, p := range params {
		if p.Direction == dialect.In || p.Direction == dialect.InOut {
			args = append(args, inputValue(m.profile, p))
		}
	}
	row, err := s.queryRow(ctx, "call", statement, args, params)
	if err != nil {
		return err
	}
	assignOutputs(params, row, values)
	return nil
}

// callVariables seeds session variables, calls, then selects the variables back.
// All three steps run on the session connection.
func (m *Model) callVariables(ctx context.Context, s *session, statement string, params []dialect.Param, values *Record) error {
	binder, ok := m.profile.(dialect.VariableBinder)
	if !ok {
		return &UnsupportedFeatureError{Dialect: m.profile.Name(), Feature: "output variables"}
	}
	var args []any
	for _, p := range params {
		switch p.Direction {
		case dialect.In:
			args = append(args, inputValue(m.profile, p))
		case dialect.InOut:
			if _, err := s.exec(ctx, "seed output variable", binder.Prologue(p), []any{inputValue(m.profile, p)}, params); err != nil {
				return err
			}
		}
	}
	if _, err := s.exec(ctx, "call", statement, args, params); err != nil {
		return err
	}
	epilogue := binder.Epilogue(params)
	if epilogue == "" {
		return nil
	}
	row, err := s.queryRow(ctx, "read output variables", epilogue, nil, params)
	if err != nil {
		return err
	}
	assignOutputs(params, row, values)
	return nil
}

// assignOutputs copies the output columns of row into values, matching by
// name and falling back to the position among the outputs.
func assignOutputs(params []dialect.Param, row *Record, values *Record) {
	i := 0
	for _, p := range params {
		if !p.IsOutput() {
			continue
		}
		var v any
		if row != nil {
			if _, found, ok := row.Lookup(p.Name); ok {
				v = found
			} else {
				v = row.At(i)
			}
		}
		values.Set(p.Name, v)
		i++
	}
}

// querySets runs a routine whose result sets are read directly. Output values
// are not collected.
func (m *Model) querySets(ctx context.Context, s *session, kind dialect.CallKind, statement string, params []dialect.Param) (*ResultSets, error) {
	var args []any
	switch m.profile.OutputMode(kind) {
	case dialect.OutputByBinding:
		for _, p := range params {
			if p.IsOutput() {
				args = append(args, m.profile.OutBinding(p, m.profile.Destination(p)))
				continue
			}
			args = append(args, m.profile.Bind(p.Name, inputValue(m.profile, p)))
		}
	case dialect.OutputViaVariables:
		binder, _ := m.profile.(dialect.VariableBinder)
		for _, p := range params {
			switch {
			case p.Direction == dialect.In:
				args = append(args, inputValue(m.profile, p))
			case p.Direction == dialect.InOut && binder != nil:
				if _, err := s.exec(ctx, "seed output variable", binder.Prologue(p), []any{inputValue(m.profile, p)}, params); err != nil {
					return nil, err
				}
			}
		}
	default:
		for _, p := range params {
			if p.Direction == dialect.In || p.Direction == dialect.InOut {
				args = append(args, inputValue(m.profile, p))
			}
		}
	}

	rows, cancel, err := s.query(ctx, "call", statement, args, params)
	if err != nil {
		return nil, err
	}
	src, err := dialect.FromSQLRows(rows)
	if err != nil {
		cancel()
		return nil, m.providerError("call", statement, params, args, err)
	}
	return successiveSets(src.(nextSetter), func() error {
		cancel()
		return s.release(true)
	}), nil
}

// routineKind calls a routine with a return argument as a function.
func routineKind(args CallArgs) dialect.CallKind {
	if len(args.Return) > 0 {
		return dialect.Function
	}
	return dialect.Procedure
}

// CallProcedure executes a stored routine and returns its output values.
// Cursor outputs are returned as raw handles; use QueryProcedure to read them.
func (m *Model) CallProcedure(ctx context.Context, name string, args CallArgs, opts ...Option) (*CallResult, error) {
	return m.invoke(ctx, call{name: name, kind: routineKind(args), args: args}, m.options(opts))
}

// CallFunction executes a stored function. Without a return argument one named
// returnValue is added.
func (m *Model) CallFunction(ctx context.Context, name string, args CallArgs, opts ...Option) (*CallResult, error) {
	if len(args.Return) == 0 {
		args.Return = Args{{Name: DefaultReturnName}}
	}
	return m.invoke(ctx, call{name: name, kind: dialect.Function, args: args}, m.options(opts))
}

// ExecuteBlock runs caller written SQL, such as an anonymous PL/SQL block, with
// routine style arguments.
func (m *Model) ExecuteBlock(ctx context.Context, block string, args CallArgs, opts ...Option) (*CallResult, error) {
	return m.invoke(ctx, call{name: block, kind: dialect.Block, args: args}, m.options(opts))
}

// QueryProcedure calls a routine and streams its first cursor or result set.
func (m *Model) QueryProcedure(ctx context.Context, name string, args CallArgs, opts ...Option) (*Rows, error) {
	sets, err := m.QueryMultipleProcedure(ctx, name, args, opts...)
	if err != nil {
		return nil, err
	}
	if !sets.Next() {
		err = sets.Err()
		if cerr := sets.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = configError("query procedure", "%s returned no result set", name)
		}
		return nil, err
	}
	first := sets.Rows()
	// closing the returned stream closes every set and releases the call
	return &Rows{src: first.src, columns: first.columns, buf: first.buf, closeFn: sets.Close}, nil
}

// QueryMultipleProcedure calls a routine and returns every cursor or result set.
func (m *Model) QueryMultipleProcedure(ctx context.Context, name string, args CallArgs, opts ...Option) (*ResultSets, error) {
	result, err := m.invoke(ctx, call{name: name, kind: routineKind(args), args: args, query: true}, m.options(opts))
	if err != nil {
		return nil, err
	}
	if result.Sets == nil {
		return cursorSets(nil, nil), nil
	}
	return result.Sets, nil
}
