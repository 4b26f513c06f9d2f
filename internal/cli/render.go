package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
	"github.com/quelmap-inc/quelmap/internal/analysis"
	"github.com/quelmap-inc/quelmap/internal/client"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var legalOutputTypes = []string{jsonFormat, yamlFormat}

func printStructured(w io.Writer, output string, v interface{}) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(w, "%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(w, "%s\n", string(marshalled))
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}

// watchJob follows a job's polling cycle to its terminal state, printing
// progress lines as they change. The ledger's loading flag for the owning
// space is cleared once the job is terminal, whatever the outcome.
func watchJob(ctx context.Context, rt *Runtime, spaceID, jobID string) (*api.Report, error) {
	sub := rt.Poller.Watch(jobID)
	defer sub.Cancel()

	var last *api.Report
	lastProgress := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case update, ok := <-sub.Updates():
			if !ok {
				// cycle finished: the job is terminal
				_ = rt.Ledger.SetLoading(spaceID, false)
				if last == nil {
					return nil, fmt.Errorf("no report received for job %s", jobID)
				}
				if last.Error != "" {
					return last, &client.JobError{JobID: jobID, Message: last.Error}
				}
				return last, nil
			}
			if update.Warning != nil {
				fmt.Fprintf(os.Stderr, "warning: server unreachable, still retrying: %v\n", update.Warning)
				continue
			}
			last = update.Report
			if p := update.Report.Progress; p != "" && p != lastProgress && !update.Report.Terminal() {
				fmt.Fprintf(os.Stderr, "%s\n", p)
				lastProgress = p
			}
		}
	}
}

// renderReport writes the report's content blocks in order. Rendering is
// plain text on purpose: images are noted, not drawn.
func renderReport(w io.Writer, report *api.Report) {
	for _, block := range report.Content {
		switch block.Type {
		case api.ContentMarkdown:
			fmt.Fprintln(w, block.Content)
		case api.ContentVariable:
			fmt.Fprintln(w, block.Data)
		case api.ContentTable:
			fmt.Fprintln(w, block.Table)
		case api.ContentImage:
			fmt.Fprintf(w, "[image, %d bytes base64]\n", len(block.Base64))
		default:
			fmt.Fprintf(w, "[unknown content block %q]\n", block.Type)
		}
	}
}

func renderSteps(w io.Writer, report *api.Report) {
	if len(report.Steps) == 0 {
		return
	}
	fmt.Fprintln(w, "steps:")
	for i, step := range report.Steps {
		line := fmt.Sprintf("  %d. %s", i+1, step.Type)
		if step.Query != "" {
			line += ": " + step.Query
		}
		fmt.Fprintln(w, line)
		if step.Python != "" {
			for _, l := range strings.Split(strings.TrimRight(step.Python, "\n"), "\n") {
				fmt.Fprintf(w, "     | %s\n", l)
			}
		}
	}
}

// submitAndWatch runs a submission end to end: submit, report business
// errors, then follow the job to completion and render the result.
func submitAndWatch(ctx context.Context, rt *Runtime, req analysis.SubmitRequest, output string) error {
	result, err := rt.Coordinator.Submit(ctx, req)
	if err != nil {
		return err
	}
	if result.BusinessError != "" {
		return fmt.Errorf("server rejected the analysis: %s", result.BusinessError)
	}

	fmt.Fprintf(os.Stderr, "space %s, job %s\n", req.SpaceID, result.JobID)

	report, err := watchJob(ctx, rt, req.SpaceID, result.JobID)
	if err != nil {
		if report != nil {
			// job failed server-side; the error is part of the report
			fmt.Fprintf(os.Stderr, "analysis failed: %s\n", report.Error)
		}
		return err
	}

	if output != "" {
		return printStructured(os.Stdout, output, report)
	}
	renderReport(os.Stdout, report)
	renderSteps(os.Stdout, report)
	return nil
}
