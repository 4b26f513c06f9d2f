package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quelmap-inc/quelmap/internal/store"
)

func NewCmdSettings() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage the stored model endpoint settings.",
	}
	cmd.AddCommand(newCmdSettingsShow())
	cmd.AddCommand(newCmdSettingsSetBaseURL())
	cmd.AddCommand(newCmdSettingsSetAPIKey())
	cmd.AddCommand(newCmdSettingsReset())
	return cmd
}

func newCmdSettingsShow() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored settings.",
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
			baseURL, err := rt.Settings.BaseURL()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = store.DefaultModelBaseURL
			}
			apiKey, err := rt.Settings.APIKey()
			if err != nil {
				return err
			}
			keyState := "not set"
			if apiKey != "" {
				keyState = "set"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "base-url: %s\napi-key: %s\n", baseURL, keyState)
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func newCmdSettingsSetBaseURL() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "set-base-url URL",
		Short: "Store the model endpoint base URL.",
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
			return rt.Settings.SetBaseURL(args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func newCmdSettingsSetAPIKey() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "set-api-key KEY",
		Short: "Store the model endpoint API key.",
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
			return rt.Settings.SetAPIKey(args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func newCmdSettingsReset() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings.",
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
			return rt.Settings.Reset()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}
