// Package cli provides the dynq command-line interface.
package cli

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	// database/sql drivers selectable through the driver setting
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"github.com/godoes/dynamodel"
)

// Version is set at build time.
var Version = "0.1.0"

// defaultDrivers overrides the driver the library would open for a dialect.
var defaultDrivers = map[string]string{
	"postgres": "pgx",
}

type app struct {
	cfgFile string
	cfg     *Config
	log     *slog.Logger
	model   *dynamodel.Model
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	a := &app{log: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "dynq",
		Short: "Run SQL, pages and stored routines against any supported database",
		Long: `dynq drives the dynamodel engine from the command line.

Connection settings come from dynq.yaml, DYNQ_* environment variables and flags,
in increasing order of precedence.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./dynq.yaml)")
	flags.String("dialect", "", "Dialect: oracle, postgres, mysql, sqlite, sqlserver")
	flags.String("driver", "", "database/sql driver name (default depends on the dialect)")
	flags.String("dsn", "", "Data source name")
	flags.String("table", "", "Table used by page and columns")
	flags.String("primary-key", "", "Primary key column (default: read from the catalog)")
	flags.String("sequence", "", "Sequence generating primary keys")
	flags.Duration("timeout", 0, "Command timeout")
	flags.StringP("output", "o", "", "Output format (table|json)")
	flags.BoolP("verbose", "v", false, "Log every statement")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newExecCommand(a))
	rootCmd.AddCommand(newPageCommand(a))
	rootCmd.AddCommand(newCallCommand(a))
	rootCmd.AddCommand(newColumnsCommand(a))
	return rootCmd
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, used, err := LoadConfig(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if used != "" {
		a.log.Debug("using config file", "path", used)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = defaultDrivers[cfg.Dialect]
	}
	gormLevel := logger.Warn
	if cfg.Verbose {
		gormLevel = logger.Info
	}
	a.model, err = dynamodel.New(dynamodel.Config{
		DriverName:    driver,
		DSN:           cfg.DSN,
		Dialect:       cfg.Dialect,
		Table:         cfg.Table,
		PrimaryKey:    cfg.PrimaryKey,
		Sequence:      cfg.Sequence,
		Timeout:       cfg.Timeout,
		SessionParams: cfg.SessionParams,
		Logger: logger.New(log.New(cmd.ErrOrStderr(), "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold: cfg.Timeout / 2,
			LogLevel:      gormLevel,
			Colorful:      false,
		}),
	})
	if err != nil {
		return err
	}
	a.log.Debug("opened model", "dialect", a.model.Profile().Name(), "driver", driver, "table", cfg.Table)
	return nil
}

func (a *app) close() error {
	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	return err
}

func (a *app) requireTable() error {
	if a.cfg.Table == "" {
		return fmt.Errorf("table is required")
	}
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
