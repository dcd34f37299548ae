package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reflexd/internal/consolidation"
	"github.com/fyrsmithlabs/reflexd/internal/similarity"
)

var (
	episodeLimit     int
	retrieveTopK     int
	consolidateEps   float64
	consolidateMinN  int
	consolidateWatch bool
)

var episodeCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List recent episodes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		episodes, err := a.episodes.Recent(cmd.Context(), episodeLimit)
		if err != nil {
			return err
		}
		return printJSON(episodes)
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve prior context for a task description",
	Long: `Find the episodes most similar to a task description.

Examples:
  reflexd retrieve "authentication problem"
  reflexd retrieve "authentication problem" --top-k 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		retriever, err := similarity.NewRetriever(a.episodes, a.logger)
		if err != nil {
			return err
		}
		topK := retrieveTopK
		if topK == 0 {
			topK = a.cfg.Retrieval.TopK
		}
		result, err := retriever.Retrieve(cmd.Context(), args[0], topK)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Cluster the episode corpus into abstractions",
	Long: `Recompute abstractions from the full episode corpus. Existing
abstractions are replaced, not merged. With fewer episodes than
min-samples the run reports insufficient data and changes nothing.

With --watch the command keeps running and reconsolidates on the
configured interval until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		engine, err := consolidation.NewEngine(a.db, a.logger)
		if err != nil {
			return err
		}
		eps := consolidateEps
		if eps == 0 {
			eps = a.cfg.Consolidation.Eps
		}
		minSamples := consolidateMinN
		if minSamples == 0 {
			minSamples = a.cfg.Consolidation.MinSamples
		}

		if consolidateWatch {
			scheduler, err := consolidation.NewScheduler(engine, a.logger,
				consolidation.WithInterval(a.cfg.Consolidation.Interval.Duration()),
				consolidation.WithParams(eps, minSamples),
			)
			if err != nil {
				return err
			}
			if err := scheduler.Start(); err != nil {
				return err
			}
			defer func() { _ = scheduler.Stop() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return nil
		}

		outcome, err := engine.Consolidate(cmd.Context(), eps, minSamples)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var abstractionsCmd = &cobra.Command{
	Use:   "abstractions",
	Short: "List abstractions from the last consolidation run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		engine, err := consolidation.NewEngine(a.db, a.logger)
		if err != nil {
			return err
		}
		abstractions, err := engine.Abstractions(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(abstractions)
	},
}

func init() {
	episodeCmd.Flags().IntVar(&episodeLimit, "limit", 20, "maximum episodes to list")
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "number of similar episodes to return")
	consolidateCmd.Flags().Float64Var(&consolidateEps, "eps", 0, "cosine distance neighborhood radius")
	consolidateCmd.Flags().IntVar(&consolidateMinN, "min-samples", 0, "minimum cluster size")
	consolidateCmd.Flags().BoolVar(&consolidateWatch, "watch", false, "keep consolidating on the configured interval")
}
