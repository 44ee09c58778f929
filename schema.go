package dynamodel

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/godoes/dynamodel/dialect"
)

// SchemaSource loads table metadata. owner is the schema the table lives in,
// empty for the connection's default schema.
type SchemaSource interface {
	Columns(ctx context.Context, table, owner string) ([]dialect.Column, error)
	PrimaryKey(ctx context.Context, table, owner string) (string, error)
}

// QuerySchema reads metadata with the catalog queries of a dialect profile.
type QuerySchema struct {
	Profile dialect.Profile
	DB      gorm.ConnPool
}

func (s QuerySchema) Columns(ctx context.Context, table, owner string) ([]dialect.Column, error) {
	rows, err := s.DB.QueryContext(ctx, s.Profile.SchemaQuery(owner != ""), catalogArgs(table, owner)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []dialect.Column
	for rows.Next() {
		var (
			name     string
			def      sql.NullString
			nullable sql.NullString
		)
		if err = rows.Scan(&name, &def, &nullable); err != nil {
			return nil, err
		}
		columns = append(columns, dialect.Column{
			Name:       name,
			Default:    strings.TrimSpace(def.String),
			HasDefault: def.Valid,
			Nullable:   strings.HasPrefix(strings.ToUpper(nullable.String), "Y"),
		})
	}
	return columns, rows.Err()
}

func (s QuerySchema) PrimaryKey(ctx context.Context, table, owner string) (string, error) {
	rows, err := s.DB.QueryContext(ctx, s.Profile.PrimaryKeyQuery(owner != ""), catalogArgs(table, owner)...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var key string
	if rows.Next() {
		if err = rows.Scan(&key); err != nil {
			return "", err
		}
	}
	return key, rows.Err()
}

func catalogArgs(table, owner string) []any {
	if owner == "" {
		return []any{table}
	}
	return []any{table, owner}
}

// Table is the metadata context of a model. Columns are fetched from the
// schema source once, on first use.
type Table struct {
	Name       string
	Owner      string
	PrimaryKey string
	// Sequence generates primary keys on dialects that need one (Oracle, PostgreSQL).
	Sequence string

	source SchemaSource

	mu       sync.Mutex
	group    singleflight.Group
	columns  []dialect.Column
	keyFound bool
}

// newTable splits an owner qualified name ("HR.EMPLOYEES").
func newTable(name, primaryKey, sequence string, source SchemaSource) *Table {
	t := &Table{PrimaryKey: primaryKey, Sequence: sequence, source: source, keyFound: primaryKey != ""}
	if i := strings.LastIndex(name, "."); i >= 0 {
		t.Owner, t.Name = name[:i], name[i+1:]
	} else {
		t.Name = name
	}
	return t
}

// Qualified is the table name as written in SQL.
func (t *Table) Qualified() string {
	if t.Owner == "" {
		return t.Name
	}
	return t.Owner + "." + t.Name
}

// Columns returns the table columns in catalog order. Concurrent first callers
// share one fetch; a failed fetch is retried by the next caller.
func (t *Table) Columns(ctx context.Context) ([]dialect.Column, error) {
	if t.Name == "" {
		return nil, configError("columns", "model has no table")
	}
	t.mu.Lock()
	columns := t.columns
	t.mu.Unlock()
	if columns != nil {
		return columns, nil
	}

	v, err, _ := t.group.Do("columns", func() (any, error) {
		t.mu.Lock()
		loaded := t.columns
		t.mu.Unlock()
		if loaded != nil {
			return loaded, nil
		}
		columns, err := t.source.Columns(ctx, t.Name, t.Owner)
		if err != nil {
			return nil, &SchemaError{Table: t.Qualified(), Reason: "loading columns", Cause: err}
		}
		if len(columns) == 0 {
			return nil, &SchemaError{Table: t.Qualified(), Reason: "no columns found"}
		}
		t.mu.Lock()
		t.columns = columns
		t.mu.Unlock()
		return columns, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dialect.Column), nil
}

// Key returns the primary key column, asking the schema source when none was configured.
// An empty result means the table has no primary key.
func (t *Table) Key(ctx context.Context) (string, error) {
	t.mu.Lock()
	key, found := t.PrimaryKey, t.keyFound
	t.mu.Unlock()
	if found || t.Name == "" {
		return key, nil
	}

	v, err, _ := t.group.Do("key", func() (any, error) {
		key, err := t.source.PrimaryKey(ctx, t.Name, t.Owner)
		if err != nil {
			return "", &SchemaError{Table: t.Qualified(), Reason: "loading primary key", Cause: err}
		}
		t.mu.Lock()
		t.PrimaryKey, t.keyFound = key, true
		t.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
