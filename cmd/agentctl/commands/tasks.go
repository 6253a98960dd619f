package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <installation-id>",
	Short: "List tasks for a GitHub App installation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		installationID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("installation id must be an integer: %w", err)
		}

		cp, closeFn, err := openControlPlane()
		if err != nil {
			return err
		}
		defer closeFn()

		tasks, err := cp.TasksForInstallation(context.Background(), installationID)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			warnLabel.Fprintln(cmd.OutOrStdout(), "no tasks for this installation")
			return nil
		}
		for _, t := range tasks {
			printTaskSummary(cmd, t)
		}
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Show a task's full record, including its plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, closeFn, err := openControlPlane()
		if err != nil {
			return err
		}
		defer closeFn()

		t, err := cp.Task(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("fetching task %s: %w", args[0], err)
		}
		printTaskDetail(cmd, t)
		return nil
	},
}

func printTaskSummary(cmd *cobra.Command, t agentmodel.AgentTask) {
	out := cmd.OutOrStdout()
	taskStatusLabel(t.Status).Fprintf(out, "%-17s", t.Status)
	fmt.Fprintf(out, "  %s\n", t.ID)
}

func printTaskDetail(cmd *cobra.Command, t agentmodel.AgentTask) {
	out := cmd.OutOrStdout()
	taskStatusLabel(t.Status).Fprintf(out, "%s\n", t.Status)
	fieldLabel.Fprintf(out, "id:          ")
	fmt.Fprintln(out, t.ID)
	fieldLabel.Fprintf(out, "repo:        ")
	fmt.Fprintf(out, "%s/%s#%d\n", t.Owner, t.Repo, t.IssueNumber)
	if t.PullRequestNumber != 0 {
		fieldLabel.Fprintf(out, "pull request: ")
		fmt.Fprintln(out, t.PullRequestNumber)
	}
	if t.BranchName != "" {
		fieldLabel.Fprintf(out, "branch:      ")
		fmt.Fprintln(out, t.BranchName)
	}
	if t.LastError != "" {
		fieldLabel.Fprintf(out, "last error:  ")
		fmt.Fprintln(out, t.LastError)
	}
	if t.Plan != nil {
		fieldLabel.Fprintf(out, "plan:        ")
		fmt.Fprintln(out, t.Plan.ProblemSummary)
		for _, step := range t.Plan.Steps {
			mark := " "
			if step.Done {
				mark = "x"
			}
			fmt.Fprintf(out, "  [%s] %s: %s\n", mark, step.ID, step.Title)
		}
	}
}

func taskStatusLabel(status agentmodel.AgentTaskStatus) *color.Color {
	switch status {
	case agentmodel.TaskCompleted:
		return successLabel
	case agentmodel.TaskFailed:
		return failLabel
	case agentmodel.TaskCancelled:
		return warnLabel
	default:
		return warnLabel
	}
}
