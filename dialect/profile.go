// Package dialect holds the per-database SQL templates and parameter conventions
// used by dynamodel. Every profile is a pure value: it renders SQL text and
// provider bindings, it never opens connections on its own.
package dialect

import (
	"context"
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Direction of a routine parameter.
type Direction int

const (
	In Direction = iota
	Out
	InOut
	ReturnValue
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	case InOut:
		return "inout"
	case ReturnValue:
		return "return"
	default:
		return "unknown"
	}
}

// Kind is the provider type a parameter is bound as.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindDecimal
	KindBool
	KindTime
	KindBytes
	KindGUID
	KindCursor
)

// UnboundedSize marks a string parameter whose buffer must not be sized up front.
const UnboundedSize = -1

// Param describes one bound argument of a routine call.
type Param struct {
	Name      string
	Direction Direction
	Value     any
	Kind      Kind
	Size      int
	Cursor    bool
}

// IsOutput reports whether the provider writes a value back into p.
func (p Param) IsOutput() bool {
	return p.Direction != In
}

// Column is a column descriptor loaded from the database catalog.
type Column struct {
	Name       string
	Default    string
	HasDefault bool
	Nullable   bool
}

// Features are the capability flags of a dialect.
type Features struct {
	// Cursors is true when ref-cursor parameters can be bound.
	Cursors bool
	// CursorsNeedTransaction is true when a cursor can only be streamed inside
	// the transaction that opened it.
	CursorsNeedTransaction bool
	// NativeGUID is true when uuid values can be bound without conversion.
	NativeGUID bool
	// StoredRoutines is true when procedures and functions can be called.
	StoredRoutines bool
	// NamedParameters is true when generated SQL binds parameters by name.
	NamedParameters bool
	// LargeStringThreshold is the longest string bound with a literal size.
	LargeStringThreshold int
	// DefaultStringSize is the buffer size for string outputs.
	DefaultStringSize int
	// UpperCaseIdentifiers is true when unquoted identifiers fold to upper case.
	UpperCaseIdentifiers bool
}

// IdentityTiming says how a generated primary key is obtained on insert.
type IdentityTiming int

const (
	IdentityNone IdentityTiming = iota
	IdentityBeforeInsert
	IdentityAfterInsert
	IdentityReturning
	IdentityLastInsertID
)

// OutputMode says how output values of a routine travel back to the caller.
type OutputMode int

const (
	// OutputByBinding uses sql.Out style bound arguments.
	OutputByBinding OutputMode = iota
	// OutputAsResultRow reads outputs from the single row the call returns.
	OutputAsResultRow
	// OutputViaVariables stores outputs in session variables and selects them afterwards.
	OutputViaVariables
)

// CallKind distinguishes the routine invocations a profile renders.
type CallKind int

const (
	Procedure CallKind = iota
	Function
	// Block is caller supplied SQL text executed with routine style parameters.
	Block
)

// CommandConfig is the per-command configuration a profile may adjust.
type CommandConfig struct {
	Timeout    time.Duration
	BindByName bool
}

// Profile is the dialect strategy used by the statement builder and the call executor.
//
// Clause arguments (where, orderBy) are either empty or complete fragments with a
// leading space, e.g. " WHERE ID = :ID".
type Profile interface {
	Name() string
	Features() Features

	// Quote quotes an identifier.
	Quote(identifier string) string
	// Placeholder is the SQL text marker of the index-th (0-based) parameter named name.
	Placeholder(index int, name string) string
	// ParameterName prefixes raw for SQL text, or leaves it bare for native binding.
	ParameterName(raw string, native bool) string
	// Bind returns the database/sql argument carrying value for the parameter named name.
	Bind(name string, value any) any
	// ConvertValue adapts an input value to what the provider accepts.
	ConvertValue(v any) any

	CountRowPattern(source string) string
	SelectPattern(columns, source, where, orderBy string, limit int) string
	InsertPattern(target, fields, values string) string
	UpdatePattern(target, assignments string) string
	DeletePattern(target string) string
	WrapCount(core string) string
	WrapPage(core string, offset, size int) string

	IdentityRetrieval(sequence, primaryKey string) (string, IdentityTiming)
	DefaultValue(expr string) any
	AggregateFunction(name string) (string, bool)
	CustomizeCommand(cfg CommandConfig) CommandConfig
	Explain(sql string, vars ...any) string

	// SchemaQuery selects COLUMN_NAME, COLUMN_DEFAULT, IS_NULLABLE for a table,
	// binding the table name and, when withOwner is set, the owner/schema.
	SchemaQuery(withOwner bool) string
	// PrimaryKeyQuery selects the primary key column names of a table.
	PrimaryKeyQuery(withOwner bool) string

	OutputMode(kind CallKind) OutputMode
	CallStatement(name string, kind CallKind, params []Param) string
	// OutBinding returns the argument binding an output parameter to dest.
	OutBinding(p Param, dest any) any
	// Destination allocates the receiver of an output parameter.
	Destination(p Param) any
	// Dereference turns a cursor handle into a row stream on conn.
	Dereference(ctx context.Context, conn gorm.ConnPool, handle any) (driver.Rows, error)
}

// VariableBinder is implemented by profiles using OutputViaVariables.
type VariableBinder interface {
	// Prologue returns the statement seeding the variable of an input-output parameter.
	Prologue(p Param) string
	// Epilogue selects every output variable as one row.
	Epilogue(params []Param) string
}
