package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

type ReportOptions struct {
	GlobalOptions

	Output string
}

func DefaultReportOptions() *ReportOptions {
	return &ReportOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdReport() *cobra.Command {
	o := DefaultReportOptions()
	cmd := &cobra.Command{
		Use:   "report SPACE [INDEX]",
		Short: "Show the report at a position in a space's thread (latest by default).",
		Args:  cobra.RangeArgs(1, 2),
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

func (o *ReportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *ReportOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func (o *ReportOptions) Run(cmd *cobra.Command, args []string) error {
	rt, err := o.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	spaceID := args[0]

	jobIDs, err := rt.Coordinator.SpaceJobs(ctx, spaceID)
	if err != nil {
		return fmt.Errorf("reading space %s: %w", spaceID, err)
	}
	if len(jobIDs) == 0 {
		return fmt.Errorf("space %s has no analyses", spaceID)
	}

	index := len(jobIDs) - 1
	if len(args) == 2 {
		index, err = strconv.Atoi(args[1])
		if err != nil || index < 0 || index >= len(jobIDs) {
			return fmt.Errorf("INDEX must be between 0 and %d", len(jobIDs)-1)
		}
	}

	report, err := watchJob(ctx, rt, spaceID, jobIDs[index])
	if err != nil {
		return err
	}
	if o.Output != "" {
		return printStructured(cmd.OutOrStdout(), o.Output, report)
	}
	renderReport(cmd.OutOrStdout(), report)
	renderSteps(cmd.OutOrStdout(), report)
	return nil
}
