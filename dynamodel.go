// Package dynamodel runs ad-hoc SQL, stored procedures and functions against
// Oracle, PostgreSQL, MySQL, SQLite and SQL Server through one API, discovering
// table metadata at runtime and returning ordered records.
package dynamodel

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sijms/go-ora/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/godoes/dynamodel/dialect"
)

// Connector hands out dedicated connections. *sql.DB implements it.
type Connector interface {
	gorm.ConnPool
	Conn(ctx context.Context) (*sql.Conn, error)
}

type Config struct {
	DriverName string
	DSN        string
	Conn       Connector //*sql.DB

	// Dialect selects the profile by registry name; it defaults to DriverName.
	Dialect string
	Profile dialect.Profile

	Table      string
	PrimaryKey string
	Sequence   string
	Schema     SchemaSource

	Logger  logger.Interface
	Timeout time.Duration

	NamingCaseSensitive bool // whether naming is case-sensitive
	DBVer               string

	// SessionParams are set on every Oracle session, e.g. NLS_DATE_FORMAT.
	SessionParams map[string]string
}

// driverNames are the database/sql drivers opened for a dialect when Config.DriverName is empty.
var driverNames = map[string]string{
	"oracle":    "oracle",
	"postgres":  "postgres",
	"mysql":     "mysql",
	"sqlite":    "sqlite",
	"sqlserver": "sqlserver",
}

// Model is a table bound to a connection and a dialect. It is safe for concurrent use.
type Model struct {
	*Config

	profile  dialect.Profile
	db       Connector
	owned    *sql.DB
	table    *Table
	namer    Namer
	builder  *Builder
	defaults Options

	sessionKeys []string
}

//goland:noinspection GoUnusedExportedFunction
func Open(dialectName, dsn string) (*Model, error) {
	return New(Config{Dialect: dialectName, DSN: dsn})
}

func New(config Config) (m *Model, err error) {
	m = &Model{Config: &config}
	if m.Logger == nil {
		m.Logger = logger.Default
	}

	name := config.Dialect
	if name == "" {
		name = config.DriverName
	}
	if m.profile = config.Profile; m.profile == nil {
		if m.profile, err = dialect.Lookup(name); err != nil {
			return nil, configError("open", "%v", err)
		}
	}

	if config.Conn != nil {
		m.db = config.Conn
	} else {
		if m.DriverName == "" {
			m.DriverName = driverNames[m.profile.Name()]
		}
		if m.DriverName == "" || m.DSN == "" {
			return nil, configError("open", "a connection or a driver name and DSN are required")
		}
		if m.owned, err = sql.Open(m.DriverName, m.DSN); err != nil {
			return nil, configError("open", "%v", err)
		}
		m.db = m.owned
	}
	defer func() {
		if err != nil && m.owned != nil {
			_ = m.owned.Close()
		}
	}()

	if _, ok := m.profile.(dialect.Oracle); ok && config.Profile == nil {
		if err = m.initializeOracle(); err != nil {
			return nil, err
		}
	}

	m.namer = newNamer(m.profile.Features(), m.NamingCaseSensitive)
	if m.Schema == nil {
		m.Schema = QuerySchema{Profile: m.profile, DB: m.db}
	}
	m.table = newTable(m.namer.TableName(m.Config.Table), m.namer.ConvertNameToFormat(m.Config.PrimaryKey), m.Sequence, m.Schema)
	m.builder = NewBuilder(m.profile, m.table, m.namer)
	m.defaults = Options{PageSize: defaultPageSize, CurrentPage: 1, Timeout: m.Timeout}
	return m, nil
}

// initializeOracle reads the server version, which decides the paging syntax,
// and installs the session parameters.
func (m *Model) initializeOracle() (err error) {
	if m.DBVer == "" {
		err = m.db.QueryRowContext(context.Background(), "select version from product_component_version where rownum = 1").Scan(&m.DBVer)
		if err != nil {
			return m.providerError("read server version", "", nil, nil, err)
		}
	}
	dbVer, _ := strconv.Atoi(strings.Split(m.DBVer, ".")[0])
	m.profile = dialect.Oracle{Version: dbVer}

	if sqlDB, ok := m.db.(*sql.DB); ok && len(m.SessionParams) > 0 {
		if m.sessionKeys, err = AddSessionParams(sqlDB, m.SessionParams); err != nil {
			return m.providerError("set session parameters", "", nil, nil, err)
		}
	}
	return nil
}

// ForTable returns a model for another table on the same connection.
func (m *Model) ForTable(table, primaryKey, sequence string) *Model {
	config := *m.Config
	config.Table, config.PrimaryKey, config.Sequence = table, primaryKey, sequence
	clone := *m
	clone.Config = &config
	clone.table = newTable(m.namer.TableName(table), m.namer.ConvertNameToFormat(primaryKey), sequence, m.Schema)
	clone.builder = NewBuilder(m.profile, clone.table, m.namer)
	return &clone
}

// Session returns a model whose calls default to opts, e.g. a transaction:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	m.Session(dynamodel.WithConn(tx)).Insert(ctx, rec)
func (m *Model) Session(opts ...Option) *Model {
	clone := *m
	clone.defaults = m.options(opts)
	return &clone
}

func (m *Model) Profile() dialect.Profile {
	return m.profile
}

func (m *Model) Table() *Table {
	return m.table
}

func (m *Model) Builder() *Builder {
	return m.builder
}

// DB returns the connection the model was opened with.
func (m *Model) DB() Connector {
	return m.db
}

// Close removes the session parameters and closes a connection opened by New.
func (m *Model) Close() error {
	if sqlDB, ok := m.db.(*sql.DB); ok {
		DelSessionParams(sqlDB, m.sessionKeys)
	}
	if m.owned != nil {
		return m.owned.Close()
	}
	return nil
}

// AddSessionParams setting database connection session parameters
func AddSessionParams(db *sql.DB, params map[string]string) (keys []string, err error) {
	if db == nil {
		return
	}
	if _, ok := db.Driver().(*go_ora.OracleDriver); !ok {
		return
	}

	for key, value := range params {
		if key == "" || value == "" {
			continue
		}
		if err = go_ora.AddSessionParam(db, key, dialect.QuoteLiteral(value)); err != nil {
			return keys, fmt.Errorf("session parameter %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return
}

// DelSessionParams remove session parameters
func DelSessionParams(db *sql.DB, keys []string) {
	if db == nil {
		return
	}
	if _, ok := db.Driver().(*go_ora.OracleDriver); !ok {
		return
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		go_ora.DelSessionParam(db, key)
	}
}
