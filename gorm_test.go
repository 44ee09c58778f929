package dynamodel

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"

	"github.com/godoes/dynamodel/dialect"
)

// catalogDialector serves column metadata from memory through its migrator.
type catalogDialector struct {
	conn    gorm.ConnPool
	columns map[string][]gorm.ColumnType
}

func (d catalogDialector) Name() string {
	return "postgres"
}

func (d catalogDialector) Initialize(db *gorm.DB) error {
	db.ConnPool = d.conn
	return nil
}

func (d catalogDialector) Migrator(*gorm.DB) gorm.Migrator {
	return catalogMigrator{columns: d.columns}
}

func (d catalogDialector) DataTypeOf(*schema.Field) string {
	return ""
}

func (d catalogDialector) DefaultValueOf(*schema.Field) clause.Expression {
	return clause.Expr{SQL: "DEFAULT"}
}

func (d catalogDialector) BindVarTo(writer clause.Writer, _ *gorm.Statement, _ interface{}) {
	_ = writer.WriteByte('?')
}

func (d catalogDialector) QuoteTo(writer clause.Writer, str string) {
	_, _ = writer.WriteString(str)
}

func (d catalogDialector) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, nil, `'`, vars...)
}

type catalogMigrator struct {
	gorm.Migrator
	columns map[string][]gorm.ColumnType
}

func (m catalogMigrator) ColumnTypes(dst interface{}) ([]gorm.ColumnType, error) {
	name, _ := dst.(string)
	columns, ok := m.columns[name]
	if !ok {
		return nil, errors.New("relation " + name + " does not exist")
	}
	return columns, nil
}

func column(name string, pk, nullable bool, def *string) gorm.ColumnType {
	ct := migrator.ColumnType{
		NameValue:       sql.NullString{String: name, Valid: true},
		PrimaryKeyValue: sql.NullBool{Bool: pk, Valid: true},
		NullableValue:   sql.NullBool{Bool: nullable, Valid: true},
	}
	if def != nil {
		ct.DefaultValueValue = sql.NullString{String: *def, Valid: true}
	}
	return ct
}

func openGorm(t *testing.T) *gorm.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	anon := "anon"
	gdb, err := gorm.Open(catalogDialector{
		conn:    db,
		columns: map[string][]gorm.ColumnType{
			"emp": {
				column("id", true, false, nil),
				column("name", false, true, &anon),
			},
			"hr.dept": {
				column("code", true, false, nil),
			},
			"audit": {
				column("at", false, false, nil),
			},
		},
	}, &gorm.Config{Logger: logger.Discard, DisableAutomaticPing: true})
	require.NoError(t, err)
	return gdb
}

func TestGormSchema(t *testing.T) {
	ctx := context.Background()
	src := GormSchema{DB: openGorm(t)}

	columns, err := src.Columns(ctx, "emp", "")
	require.NoError(t, err)
	assert.Equal(t, []dialect.Column{
		{Name: "id"},
		{Name: "name", Default: "anon", HasDefault: true, Nullable: true},
	}, columns)

	tests := []struct {
		table, owner, want string
	}{
		{"emp", "", "id"},
		{"dept", "hr", "code"},
		{"audit", "", ""},
	}
	for _, tt := range tests {
		key, err := src.PrimaryKey(ctx, tt.table, tt.owner)
		require.NoError(t, err)
		assert.Equal(t, tt.want, key, tt.table)
	}

	_, err = src.Columns(ctx, "missing", "")
	require.Error(t, err)
}

func TestFromGorm(t *testing.T) {
	ctx := context.Background()
	gdb := openGorm(t)

	m, err := FromGorm(gdb, Config{Table: "emp"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", m.Profile().Name())
	assert.Equal(t, logger.Discard, m.Logger)
	assert.IsType(t, GormSchema{}, m.Schema)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, sqlDB, m.DB())

	key, err := m.Table().Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id", key)
	names, err := m.ColumnNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, names)

	m, err = FromGorm(gdb, Config{Table: "emp", Profile: dialect.MySQL{}})
	require.NoError(t, err)
	assert.Equal(t, "mysql", m.Profile().Name())
}
