package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/analysis"
)

type AnalyzeOptions struct {
	GlobalOptions

	Tables []string
	Mode   string
	Model  string
	Output string
}

func DefaultAnalyzeOptions() *AnalyzeOptions {
	return &AnalyzeOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Mode:          string(api.ModeStandard),
	}
}

func NewCmdAnalyze() *cobra.Command {
	o := DefaultAnalyzeOptions()
	cmd := &cobra.Command{
		Use:   "analyze QUERY",
		Short: "Start a new analysis and follow it to completion.",
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

func (o *AnalyzeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringArrayVarP(&o.Tables, "table", "t", o.Tables, "Table to analyze (repeatable)")
	fs.StringVar(&o.Mode, "mode", o.Mode, "Analysis mode. One of: (standard, agentic)")
	fs.StringVar(&o.Model, "model", o.Model, "Model id to run the analysis with")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *AnalyzeOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !funk.Contains([]string{string(api.ModeStandard), string(api.ModeAgentic)}, o.Mode) {
		return fmt.Errorf("mode must be one of (standard, agentic)")
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func (o *AnalyzeOptions) Run(cmd *cobra.Command, args []string) error {
	rt, err := o.Runtime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	spaceID, err := rt.Coordinator.NewSpace(ctx)
	if err != nil {
		return fmt.Errorf("creating analysis space: %w", err)
	}

	return submitAndWatch(ctx, rt, analysis.SubmitRequest{
		SpaceID: spaceID,
		Query:   args[0],
		Tables:  o.Tables,
		Mode:    api.AnalysisMode(o.Mode),
		Model:   o.Model,
		Index:   analysis.AppendJob,
	}, o.Output)
}

func NewCmdFollowup() *cobra.Command {
	o := DefaultAnalyzeOptions()
	cmd := &cobra.Command{
		Use:   "followup SPACE QUERY",
		Short: "Append a follow-up analysis to an existing space.",
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
			return submitAndWatch(cmd.Context(), rt, analysis.SubmitRequest{
				SpaceID: args[0],
				Query:   args[1],
				Tables:  o.Tables,
				Mode:    api.AnalysisMode(o.Mode),
				Model:   o.Model,
				Index:   analysis.AppendJob,
			}, o.Output)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdRedo() *cobra.Command {
	o := DefaultAnalyzeOptions()
	cmd := &cobra.Command{
		Use:   "redo SPACE INDEX QUERY",
		Short: "Replace the analysis at a position in the thread and recompute it.",
		Long: "Replace the analysis at the given position. The server drops the thread " +
			"from that position onward, so the job id occupying the position afterwards " +
			"is a new one; it is resolved by re-reading the space.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 0 {
				return fmt.Errorf("INDEX must be a non-negative integer")
			}
			rt, err := o.Runtime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			result, err := rt.Coordinator.Submit(ctx, analysis.SubmitRequest{
				SpaceID: args[0],
				Query:   args[2],
				Tables:  o.Tables,
				Mode:    api.AnalysisMode(o.Mode),
				Model:   o.Model,
				Index:   index,
			})
			if err != nil {
				return err
			}
			if result.BusinessError != "" {
				return fmt.Errorf("server rejected the analysis: %s", result.BusinessError)
			}

			// the thread was truncated at the edited position; poll
			// whichever job id occupies it now
			jobID, err := rt.Coordinator.JobAt(ctx, args[0], index)
			if err != nil {
				return fmt.Errorf("resolving edited job: %w", err)
			}

			report, err := watchJob(ctx, rt, args[0], jobID)
			if err != nil {
				return err
			}
			if o.Output != "" {
				return printStructured(cmd.OutOrStdout(), o.Output, report)
			}
			renderReport(cmd.OutOrStdout(), report)
			renderSteps(cmd.OutOrStdout(), report)
			return nil
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}
