package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reflexd/internal/fitness"
)

var strategyCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List recovery strategies and their learned weights",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.ledger.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var fitnessCmd = &cobra.Command{
	Use:   "fitness",
	Short: "Report the fitness trend over recent episodes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		evaluator, err := fitness.NewEvaluator(a.episodes, a.logger,
			fitness.WithWindow(a.cfg.Fitness.Window),
			fitness.WithAlpha(a.cfg.Fitness.Alpha),
		)
		if err != nil {
			return err
		}
		eval, err := evaluator.Evaluate(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(eval)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the store is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.db.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
		fmt.Println("ok")
		return nil
	},
}
