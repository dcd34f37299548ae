package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reflexd/internal/kernel"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

var (
	taskFailed     bool
	taskErrored    bool
	taskReflection string
	taskGraphPath  string
)

var taskCmd = &cobra.Command{
	Use:   "task <description>",
	Short: "Record one task attempt through the full pipeline",
	Long: `Run a task attempt through validation, context retrieval, episode
recording, fallback, and fitness evaluation. The attempt's outcome is
reported by the caller via flags; reflexd records it and reacts to it.

Examples:
  # Record a successful attempt
  reflexd task "fix login bug" --reflection "resolved auth token expiry"

  # Record a failed attempt (engages fallback)
  reflexd task "scrape listings" --failed --reflection "selector timed out"

  # Validate and run a task graph from a JSON file
  reflexd task --graph plan.json --reflection "executed plan"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().BoolVar(&taskFailed, "failed", false, "report the attempt as failed")
	taskCmd.Flags().BoolVar(&taskErrored, "errored", false, "report the attempt as errored")
	taskCmd.Flags().StringVar(&taskReflection, "reflection", "", "what was learned from the attempt")
	taskCmd.Flags().StringVar(&taskGraphPath, "graph", "", "path to a task graph JSON file")
}

func runTask(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && taskGraphPath == "" {
		return fmt.Errorf("a task description or --graph is required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	runner := kernel.RunnerFunc(func(_ context.Context, _ string, _ *string) (bool, string, error) {
		if taskErrored {
			return false, taskReflection, fmt.Errorf("attempt errored")
		}
		return !taskFailed, taskReflection, nil
	})

	k, err := a.newKernel(runner)
	if err != nil {
		return err
	}

	var result kernel.Result
	if taskGraphPath != "" {
		var g taskgraph.Graph
		content, err := os.ReadFile(taskGraphPath)
		if err != nil {
			return fmt.Errorf("read graph file: %w", err)
		}
		if err := json.Unmarshal(content, &g); err != nil {
			return fmt.Errorf("parse graph file: %w", err)
		}
		result, err = k.RunGraph(cmd.Context(), g)
		if err != nil {
			return err
		}
	} else {
		result, err = k.RunTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
	}
	return printJSON(result)
}
