package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencopilot/agentcore/internal/config"
	"github.com/opencopilot/agentcore/internal/controlplane"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Inspect and control a running agentcore daemon",
	Long: "agentctl queries and cancels background jobs and tasks and reads the audit log " +
		"of a running agentd daemon, reading the same stores agentd writes (spec.md's " +
		"Task/JobStatus/Audit stores).",
	SilenceUsage: true,
}

// Execute runs the agentctl command tree; errors are already printed by cobra before
// being returned, matching the teacher's cmd/sett/commands.Execute shape.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "agentd.yaml", "path to the daemon's YAML configuration")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(taskCmd)
}

// openControlPlane loads the daemon config from configPath and opens a ControlPlane
// against it (internal/controlplane.OpenFromConfig), returning a cleanup func callers
// must defer.
func openControlPlane() (*controlplane.ControlPlane, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return controlplane.OpenFromConfig(cfg)
}

var (
	successLabel = color.New(color.FgGreen, color.Bold)
	failLabel    = color.New(color.FgRed, color.Bold)
	warnLabel    = color.New(color.FgYellow, color.Bold)
	fieldLabel   = color.New(color.Faint)
)
