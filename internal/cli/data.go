package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
)

func printConnectionResult(w io.Writer, resp *api.ConnectionResponse) {
	fmt.Fprintln(w, resp.Message)
	for _, name := range resp.TableNames {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

func NewCmdUpload() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload data files to the server and register them as tables.",
		Args:  cobra.MinimumNArgs(1),
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
			resp, err := rt.Mutator.UploadFiles(cmd.Context(), args)
			if err != nil {
				return fmt.Errorf("uploading files: %w", err)
			}
			printConnectionResult(cmd.OutOrStdout(), resp)
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdConnectPostgres() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "connect-postgres CONNECTION_STRING",
		Short: "Import tables from a PostgreSQL database.",
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
			resp, err := rt.Mutator.ConnectPostgres(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			printConnectionResult(cmd.OutOrStdout(), resp)
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdUploadSQLite() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "upload-sqlite FILE",
		Short: "Upload a SQLite database and register its tables.",
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
			resp, err := rt.Mutator.UploadSQLite(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("uploading sqlite database: %w", err)
			}
			printConnectionResult(cmd.OutOrStdout(), resp)
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdRenameTable() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "rename-table OLD NEW",
		Short: "Rename a server-held table.",
		Args:  cobra.ExactArgs(2),
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
			if err := rt.Mutator.RenameTable(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("renaming table: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdDeleteTable() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "delete-table NAME",
		Short: "Delete a server-held table.",
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
			if err := rt.Mutator.DeleteTable(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting table: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}
