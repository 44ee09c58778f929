package dialect

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres renders SQL for PostgreSQL. Outputs of routines come back as the row
// returned by CALL or SELECT; refcursors are fetched by portal name inside the
// transaction that opened them.
type Postgres struct {
	standard
}

func (Postgres) Name() string {
	return "postgres"
}

func (Postgres) Features() Features {
	return Features{
		Cursors:                true,
		CursorsNeedTransaction: true,
		NativeGUID:             true,
		StoredRoutines:         true,
		LargeStringThreshold:   10485760,
		DefaultStringSize:      4000,
	}
}

func (Postgres) Quote(identifier string) string {
	return pq.QuoteIdentifier(identifier)
}

func (Postgres) Placeholder(index int, _ string) string {
	return "$" + strconv.Itoa(index+1)
}

func (Postgres) IdentityRetrieval(sequence, primaryKey string) (string, IdentityTiming) {
	if sequence != "" {
		return "SELECT nextval(" + pq.QuoteLiteral(sequence) + ")", IdentityBeforeInsert
	}
	if primaryKey == "" {
		return "", IdentityNone
	}
	return " RETURNING " + primaryKey, IdentityReturning
}

var pgCast = regexp.MustCompile(`::[a-zA-Z ]+(\[\])?$`)

func (Postgres) DefaultValue(expr string) any {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(strings.ToLower(expr), "nextval(") {
		// serial columns are filled by the server
		return nil
	}
	return defaultValue(pgCast.ReplaceAllString(expr, ""),
		"now()", "CURRENT_TIMESTAMP", "CURRENT_DATE", "LOCALTIMESTAMP", "transaction_timestamp()")
}

var dollarPlaceholder = regexp.MustCompile(`\$(\d+)`)

func (Postgres) Explain(sql string, vars ...any) string {
	return logger.ExplainSQL(sql, dollarPlaceholder, `'`, vars...)
}

func (Postgres) SchemaQuery(withOwner bool) string {
	query := "SELECT column_name, column_default, is_nullable FROM information_schema.columns WHERE table_name = $1"
	if withOwner {
		query += " AND table_schema = $2"
	} else {
		query += " AND table_schema = current_schema()"
	}
	return query + " ORDER BY ordinal_position"
}

func (Postgres) PrimaryKeyQuery(withOwner bool) string {
	query := "SELECT kcu.column_name FROM information_schema.table_constraints tc " +
		"JOIN information_schema.key_column_usage kcu " +
		"ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema " +
		"WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = $1"
	if withOwner {
		query += " AND tc.table_schema = $2"
	} else {
		query += " AND tc.table_schema = current_schema()"
	}
	return query + " ORDER BY kcu.ordinal_position"
}

func (Postgres) OutputMode(CallKind) OutputMode {
	return OutputAsResultRow
}

// CallStatement renders
//
//	CALL proc($1, NULL)               -- procedures; OUT arguments are passed as NULL
//	SELECT fn($1, $2) AS "returnValue" -- functions with a return value
//	SELECT * FROM fn($1)              -- functions returning their OUT arguments
//
// Only In and InOut parameters are bound, numbered in declaration order.
func (p Postgres) CallStatement(name string, kind CallKind, params []Param) string {
	if kind == Block {
		return name
	}
	var (
		ret   string
		args  []string
		bound int
	)
	for _, param := range params {
		switch param.Direction {
		case ReturnValue:
			ret = param.Name
		case Out:
			if kind == Procedure {
				args = append(args, "NULL")
			}
		default:
			args = append(args, p.Placeholder(bound, param.Name))
			bound++
		}
	}
	call := name + "(" + strings.Join(args, ", ") + ")"
	switch {
	case kind == Procedure:
		return "CALL " + call
	case ret != "":
		return "SELECT " + call + " AS " + p.Quote(ret)
	default:
		return "SELECT * FROM " + call
	}
}

// Dereference fetches every row of the named portal on conn. The portal only
// lives until the enclosing transaction ends.
func (Postgres) Dereference(ctx context.Context, conn gorm.ConnPool, handle any) (driver.Rows, error) {
	var name string
	switch h := handle.(type) {
	case string:
		name = h
	case []byte:
		name = string(h)
	default:
		return nil, fmt.Errorf("dialect: postgres cannot dereference %T", handle)
	}
	rows, err := conn.QueryContext(ctx, "FETCH ALL IN "+pq.QuoteIdentifier(name))
	if err != nil {
		return nil, err
	}
	return FromSQLRows(rows)
}
