package commands

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the advisory status record for a background job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, closeFn, err := openControlPlane()
		if err != nil {
			return err
		}
		defer closeFn()

		info, found, err := cp.JobStatusOf(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("querying job status: %w", err)
		}
		if !found {
			warnLabel.Fprintln(cmd.OutOrStdout(), "no status recorded for this job id")
			return nil
		}
		printJobStatus(cmd, info)
		return nil
	},
}

func printJobStatus(cmd *cobra.Command, info agentmodel.BackgroundJobStatusInfo) {
	out := cmd.OutOrStdout()
	label := statusLabel(info.Status)
	label.Fprintf(out, "%s\n", info.Status)
	fieldLabel.Fprintf(out, "job:       ")
	fmt.Fprintln(out, info.JobID)
	fieldLabel.Fprintf(out, "type:      ")
	fmt.Fprintln(out, info.Type)
	fieldLabel.Fprintf(out, "attempt:   ")
	fmt.Fprintln(out, info.Attempt)
	fieldLabel.Fprintf(out, "created:   ")
	fmt.Fprintln(out, info.CreatedAt)
	if info.StartedAt != nil {
		fieldLabel.Fprintf(out, "started:   ")
		fmt.Fprintln(out, *info.StartedAt)
	}
	if info.CompletedAt != nil {
		fieldLabel.Fprintf(out, "completed: ")
		fmt.Fprintln(out, *info.CompletedAt)
	}
	if info.LastError != "" {
		fieldLabel.Fprintf(out, "error:     ")
		fmt.Fprintln(out, info.LastError)
	}
	if len(info.ResultData) > 0 {
		fieldLabel.Fprintf(out, "result:    ")
		fmt.Fprintf(out, "%s\n", units.BytesSize(float64(len(info.ResultData))))
	}
}

func statusLabel(status agentmodel.BackgroundJobStatus) *color.Color {
	switch status {
	case agentmodel.JobCompleted:
		return successLabel
	case agentmodel.JobFailed:
		return failLabel
	case agentmodel.JobCancelled:
		return warnLabel
	default:
		return color.New()
	}
}
