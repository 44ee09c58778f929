package dynamodel

import (
	"context"

	"gorm.io/gorm"

	"github.com/godoes/dynamodel/dialect"
)

// GormSchema reads table metadata through the migrator of a gorm connection.
type GormSchema struct {
	DB *gorm.DB
}

func (g GormSchema) columnTypes(ctx context.Context, table, owner string) ([]gorm.ColumnType, error) {
	if owner != "" {
		table = owner + "." + table
	}
	return g.DB.WithContext(ctx).Migrator().ColumnTypes(table)
}

func (g GormSchema) Columns(ctx context.Context, table, owner string) ([]dialect.Column, error) {
	types, err := g.columnTypes(ctx, table, owner)
	if err != nil {
		return nil, err
	}
	columns := make([]dialect.Column, 0, len(types))
	for _, ct := range types {
		def, hasDefault := ct.DefaultValue()
		nullable, _ := ct.Nullable()
		columns = append(columns, dialect.Column{
			Name:       ct.Name(),
			Default:    def,
			HasDefault: hasDefault,
			Nullable:   nullable,
		})
	}
	return columns, nil
}

func (g GormSchema) PrimaryKey(ctx context.Context, table, owner string) (string, error) {
	types, err := g.columnTypes(ctx, table, owner)
	if err != nil {
		return "", err
	}
	for _, ct := range types {
		if pk, ok := ct.PrimaryKey(); ok && pk {
			return ct.Name(), nil
		}
	}
	return "", nil
}

// FromGorm builds a model on the connection, logger and migrator of db.
// Fields already set in config take precedence.
func FromGorm(db *gorm.DB, config Config) (*Model, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, configError("open", "%v", err)
	}
	if config.Conn == nil {
		config.Conn = sqlDB
	}
	if config.Dialect == "" && config.Profile == nil {
		config.Dialect = db.Dialector.Name()
	}
	if config.Logger == nil {
		config.Logger = db.Logger
	}
	if config.Schema == nil {
		config.Schema = GormSchema{DB: db}
	}
	return New(config)
}
