package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"

	"github.com/quelmap-inc/quelmap/internal/datasets"
)

func NewCmdTables() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables held by the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			rt, err := o.Runtime()
			if err != nil {
				return err
			}
			tables, err := rt.Catalog.Tables(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing tables: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "NAME\tROUTE")
			for _, t := range tables {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Route)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

type TableOptions struct {
	GlobalOptions

	SortColumn    string
	SortDirection string
	Filter        string
	Limit         int
	Pages         int
	All           bool
}

func DefaultTableOptions() *TableOptions {
	return &TableOptions{
		GlobalOptions: DefaultGlobalOptions(),
		SortDirection: "asc",
		Limit:         datasets.DefaultPageSize,
		Pages:         1,
	}
}

func NewCmdTable() *cobra.Command {
	o := DefaultTableOptions()
	cmd := &cobra.Command{
		Use:   "table NAME",
		Short: "Preview rows of a table, optionally sorted and filtered.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd, args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *TableOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.SortColumn, "sort", o.SortColumn, "Column to sort by (server-side)")
	fs.StringVar(&o.SortDirection, "direction", o.SortDirection, "Sort direction. One of: (asc, desc)")
	fs.StringVar(&o.Filter, "filter", o.Filter, "Filter as column=value (server-side)")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Rows per page")
	fs.IntVar(&o.Pages, "pages", o.Pages, "Number of pages to fetch")
	fs.BoolVar(&o.All, "all", o.All, "Fetch every page of the view")
}

func (o *TableOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !funk.Contains([]string{"asc", "desc"}, o.SortDirection) {
		return fmt.Errorf("direction must be one of (asc, desc)")
	}
	if o.Filter != "" && !strings.Contains(o.Filter, "=") {
		return fmt.Errorf("filter must be column=value")
	}
	if o.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	if o.Pages <= 0 {
		return fmt.Errorf("pages must be positive")
	}
	return nil
}

func (o *TableOptions) viewKey(table string) datasets.ViewKey {
	key := datasets.ViewKey{Table: table}
	if o.SortColumn != "" {
		key.SortColumn = o.SortColumn
		key.SortDirection = o.SortDirection
	}
	if o.Filter != "" {
		column, value, _ := strings.Cut(o.Filter, "=")
		key.FilterColumn = column
		key.FilterValue = value
	}
	return key
}

func (o *TableOptions) Run(cmd *cobra.Command, args []string) error {
	rt, err := o.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	key := o.viewKey(args[0])
	rt.Pages.SetPageSize(o.Limit)

	view, err := rt.Pages.First(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", args[0], err)
	}
	for page := 1; view.HasMore && (o.All || page < o.Pages); page++ {
		view, err = rt.Pages.Next(ctx, key)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", args[0], err)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, strings.Join(view.Columns, "\t"))
	for _, row := range view.Rows {
		cells := make([]string, len(view.Columns))
		for i, col := range view.Columns {
			cells[i] = fmt.Sprintf("%v", row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rows\n", view.FetchedCount, view.TotalRows)
	return nil
}
