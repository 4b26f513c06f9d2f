package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func NewCmdHistory() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analyses, newest first.",
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

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "SPACE\tWHEN\tSTATE\tQUERY")
			for _, e := range rt.Ledger.Entries() {
				state := "done"
				if e.IsLoading {
					state = "running"
				}
				when := time.UnixMilli(e.Timestamp).Format(time.RFC3339)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, when, state, e.Query)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())

	cmd.AddCommand(newCmdHistoryRemove())
	cmd.AddCommand(newCmdHistoryClear())
	return cmd
}

func newCmdHistoryRemove() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "remove SPACE",
		Short: "Remove one entry from the history.",
		Args:  cobra.ExactArgs(1),
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
			return rt.Ledger.Remove(args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func newCmdHistoryClear() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all history entries.",
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
			return rt.Ledger.Clear()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}
