package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reflexd/internal/analogy"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

var analogyThreshold float64

var analogyCmd = &cobra.Command{
	Use:   "analogy <graphA.json> <graphB.json>",
	Short: "Judge whether two task graphs are the same kind of problem",
	Long: `Score two task graphs for analogy. Both graphs are validated first;
a malformed graph is rejected before any scoring happens.

Examples:
  reflexd analogy plan-a.json plan-b.json
  reflexd analogy plan-a.json plan-b.json --threshold 0.9`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		validator := taskgraph.NewValidator()
		graphs := make([]taskgraph.Graph, 2)
		for i, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read graph file: %w", err)
			}
			if err := json.Unmarshal(content, &graphs[i]); err != nil {
				return fmt.Errorf("parse graph file %s: %w", path, err)
			}
			if err := validator.Validate(graphs[i]); err != nil {
				return fmt.Errorf("graph %s: %w", path, err)
			}
		}

		threshold := analogyThreshold
		if threshold == 0 {
			threshold = a.cfg.Analogy.Threshold
		}
		scorer := analogy.NewValidator(a.logger)
		score := scorer.Score(graphs[0], graphs[1])
		return printJSON(map[string]any{
			"score":      score,
			"threshold":  threshold,
			"analogous":  score >= threshold,
			"structural": analogy.StructuralScore(graphs[0], graphs[1]),
			"semantic":   analogy.SemanticScore(graphs[0], graphs[1]),
		})
	},
}

func init() {
	analogyCmd.Flags().Float64Var(&analogyThreshold, "threshold", 0, "analogy threshold (defaults to config)")
	rootCmd.AddCommand(analogyCmd)
}
