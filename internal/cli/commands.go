package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/godoes/dynamodel"
)

// parseValue reads a command line argument: integers and floats become
// numbers, NULL becomes nil, anything else stays text.
func parseValue(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseValue(arg)
	}
	return values
}

// parsePairs turns name=value arguments into Args, keeping their order.
func parsePairs(pairs []string) (dynamodel.Args, error) {
	args := make(dynamodel.Args, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		args = append(args, dynamodel.Arg{Name: name, Value: parseValue(value)})
	}
	return args, nil
}

func newQueryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL [ARGS...]",
		Short: "Run a query and print its records",
		Example: `  dynq query "SELECT * FROM emp WHERE dept = ?" 10
  dynq query "SELECT * FROM emp WHERE dept = \$1" 10 -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.model.Query(cmd.Context(), args[0], parseValues(args[1:])...)
			if err != nil {
				return err
			}
			columns := rows.Columns()
			records, err := rows.Collect()
			if err != nil {
				return err
			}
			return renderRecords(cmd.OutOrStdout(), columns, records, a.cfg.Output)
		},
	}
}

func newExecCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL [ARGS...]",
		Short: "Run a command and print the number of affected rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.model.Execute(cmd.Context(), args[0], parseValues(args[1:])...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", n)
			return nil
		},
	}
}

type pageOptions struct {
	where   string
	orderBy string
	columns string
	page    int
	size    int
}

func newPageCommand(a *app) *cobra.Command {
	opts := &pageOptions{}
	cmd := &cobra.Command{
		Use:   "page [WHERE-ARGS...]",
		Short: "Print one page of the configured table",
		Example: `  dynq page --table emp --where "dept = ?" --page 2 --size 10 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTable(); err != nil {
				return err
			}
			page, err := a.model.Page(cmd.Context(),
				dynamodel.Where(opts.where, parseValues(args)...),
				dynamodel.OrderBy(opts.orderBy),
				dynamodel.Columns(opts.columns),
				dynamodel.CurrentPage(opts.page),
				dynamodel.PageSize(opts.size),
			)
			if err != nil {
				return err
			}
			a.log.Debug("page", "count", page.CountQuery, "query", page.PageQuery)
			if err = renderRecords(cmd.OutOrStdout(), nil, page.Items, a.cfg.Output); err != nil {
				return err
			}
			if a.cfg.Output != "json" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d records\n", page.CurrentPage, page.TotalPages, page.TotalRecords)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.where, "where", "", "Filter condition")
	cmd.Flags().StringVar(&opts.orderBy, "order-by", "", "Sort order (default: primary key)")
	cmd.Flags().StringVar(&opts.columns, "columns", "", "Column list (default: *)")
	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&opts.size, "size", 20, "Page size")
	return cmd
}

type callOptions struct {
	in       []string
	inOut    []string
	out      []string
	cursors  []string
	ret      string
	function bool
}

func (o *callOptions) args() (dynamodel.CallArgs, error) {
	var (
		args dynamodel.CallArgs
		err  error
	)
	if args.In, err = parsePairs(o.in); err != nil {
		return args, err
	}
	if args.InOut, err = parsePairs(o.inOut); err != nil {
		return args, err
	}
	for _, name := range o.out {
		args.Out = append(args.Out, dynamodel.Arg{Name: name})
	}
	for _, name := range o.cursors {
		args.Out = append(args.Out, dynamodel.Arg{Name: name, Value: dynamodel.Cursor{}})
	}
	if o.ret != "" {
		args.Return = dynamodel.Args{{Name: o.ret}}
	}
	return args, nil
}

func newCallCommand(a *app) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Call a stored procedure or function",
		Long: `Call a stored procedure or function and print its output values.

With --cursor the named output cursors are read and printed in order instead.`,
		Example: `  dynq call FIND_MAX --in x=1 --in y=2 --out result
  dynq call get_emps --in dept=10 --cursor emps
  dynq call add --function --in a=1 --in b=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := opts.args()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(opts.cursors) > 0 {
				sets, err := a.model.QueryMultipleProcedure(ctx, args[0], callArgs)
				if err != nil {
					return err
				}
				results, err := sets.Collect()
				if err != nil {
					return err
				}
				for i, records := range results {
					if a.cfg.Output != "json" && i < len(opts.cursors) {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", opts.cursors[i])
					}
					if err = renderRecords(cmd.OutOrStdout(), nil, records, a.cfg.Output); err != nil {
						return err
					}
				}
				return nil
			}

			var result *dynamodel.CallResult
			if opts.function {
				result, err = a.model.CallFunction(ctx, args[0], callArgs)
			} else {
				result, err = a.model.CallProcedure(ctx, args[0], callArgs)
			}
			if err != nil {
				return err
			}
			defer result.Close()
			return renderRecords(cmd.OutOrStdout(), nil, []*dynamodel.Record{result.Values}, a.cfg.Output)
		},
	}
	cmd.Flags().StringArrayVar(&opts.in, "in", nil, "Input argument name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.inOut, "inout", nil, "Input-output argument name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.out, "out", nil, "Output argument name (repeatable)")
	cmd.Flags().StringArrayVar(&opts.cursors, "cursor", nil, "Output cursor name (repeatable)")
	cmd.Flags().StringVar(&opts.ret, "return", "", "Name of the return value")
	cmd.Flags().BoolVar(&opts.function, "function", false, "Call as a function")
	return cmd
}

func newColumnsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "Print the columns of the configured table with their defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireTable(); err != nil {
				return err
			}
			proto, err := a.model.Prototype(cmd.Context())
			if err != nil {
				return err
			}
			key, err := a.model.Table().Key(cmd.Context())
			if err != nil {
				return err
			}
			records := make([]*dynamodel.Record, 0, proto.Len())
			for i, name := range proto.Columns() {
				records = append(records, dynamodel.RecordOf(
					"column", name,
					"default", proto.At(i),
					"primary_key", name == key,
				))
			}
			return renderRecords(cmd.OutOrStdout(), nil, records, a.cfg.Output)
		},
	}
}
