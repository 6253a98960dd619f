package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a running or queued job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, closeFn, err := openControlPlane()
		if err != nil {
			return err
		}
		defer closeFn()

		ok := cp.CancelJob(context.Background(), args[0])
		if !ok {
			warnLabel.Fprintln(cmd.OutOrStdout(), "job not cancelled: either it is not live in this process, "+
				"or agentctl is running as a separate process from agentd (cancellation requires the "+
				"in-process dispatcher; see internal/controlplane)")
			return nil
		}
		successLabel.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
		return nil
	},
}
