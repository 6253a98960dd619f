package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

var (
	auditEventType     string
	auditCorrelationID string
	auditSince         string
	auditLimit         int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, closeFn, err := openControlPlane()
		if err != nil {
			return err
		}
		defer closeFn()

		filter := audit.QueryFilter{
			EventType:     agentmodel.AuditEventType(auditEventType),
			CorrelationID: auditCorrelationID,
			Limit:         auditLimit,
		}
		if auditSince != "" {
			since, err := time.Parse(time.RFC3339, auditSince)
			if err != nil {
				return fmt.Errorf("parsing --since %q: %w", auditSince, err)
			}
			filter.Start = &since
		}

		entries, err := cp.QueryAudit(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if len(entries) == 0 {
			warnLabel.Fprintln(cmd.OutOrStdout(), "no matching audit entries")
			return nil
		}
		for _, e := range entries {
			printAuditEntry(cmd, e)
		}
		return nil
	},
}

func printAuditEntry(cmd *cobra.Command, e agentmodel.AuditLog) {
	out := cmd.OutOrStdout()
	label := resultLabel(e.Result)
	label.Fprintf(out, "%s", e.Result)
	fmt.Fprintf(out, "  %s  %-22s  %s\n", e.Timestamp.Format(time.RFC3339), e.EventType, e.Target)
	if e.CorrelationID != "" {
		fieldLabel.Fprintf(out, "    correlation: ")
		fmt.Fprintln(out, e.CorrelationID)
	}
	if e.Description != "" {
		fieldLabel.Fprintf(out, "    desc:        ")
		fmt.Fprintln(out, e.Description)
	}
	if e.Error != "" {
		fieldLabel.Fprintf(out, "    error:       ")
		fmt.Fprintln(out, e.Error)
	}
}

func resultLabel(r agentmodel.AuditResult) *color.Color {
	switch r {
	case agentmodel.ResultSuccess:
		return successLabel
	case agentmodel.ResultFailure:
		return failLabel
	default:
		return warnLabel
	}
}

func init() {
	auditCmd.Flags().StringVar(&auditEventType, "event-type", "", "filter by audit event type")
	auditCmd.Flags().StringVar(&auditCorrelationID, "correlation-id", "", "filter by correlation id (task id or job id)")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "only entries at or after this RFC3339 timestamp")
	auditCmd.Flags().IntVar(&auditLimit, "limit", audit.DefaultQueryLimit, "maximum entries to return (capped at audit.MaxQueryLimit)")
}
