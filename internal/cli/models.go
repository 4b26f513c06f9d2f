package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quelmap-inc/quelmap/internal/store"
)

func NewCmdModels() *cobra.Command {
	o := DefaultGlobalOptions()
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models available at the configured model endpoint.",
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
				return fmt.Errorf("reading settings: %w", err)
			}
			if baseURL == "" {
				baseURL = store.DefaultModelBaseURL
			}
			apiKey, err := rt.Settings.APIKey()
			if err != nil {
				return fmt.Errorf("reading settings: %w", err)
			}

			models, err := rt.Client.GetModelList(cmd.Context(), baseURL, apiKey)
			if err != nil {
				return fmt.Errorf("listing models at %s: %w", baseURL, err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\n", m.ID, m.Name)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}
