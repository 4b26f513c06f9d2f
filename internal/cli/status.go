package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quelmap-inc/quelmap/internal/client"
)

type StatusOptions struct {
	GlobalOptions

	Watch    bool
	Interval time.Duration
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      5 * time.Second,
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the quelmap server is reachable.",
		Args:  cobra.NoArgs,
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

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.BoolVarP(&o.Watch, "watch", "w", o.Watch, "Keep probing and print reachability transitions")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Probe interval when watching")
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return nil
}

func (o *StatusOptions) Run(cmd *cobra.Command, args []string) error {
	rt, err := o.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	checker := client.NewHealthChecker(rt.Client, o.Interval)
	checker.Start(ctx)

	if checker.State() == client.HealthStateReachable {
		fmt.Fprintln(cmd.OutOrStdout(), "server is reachable")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "server is unreachable")
	}
	if !o.Watch {
		if checker.State() != client.HealthStateReachable {
			os.Exit(1)
		}
		return nil
	}

	// transitions are logged by the checker; block until interrupted
	<-ctx.Done()
	return nil
}
