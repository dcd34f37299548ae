// Package main implements the reflexd CLI, a thin adapter over the
// reasoning core.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflexd/internal/config"
	"github.com/fyrsmithlabs/reflexd/internal/episode"
	"github.com/fyrsmithlabs/reflexd/internal/fallback"
	"github.com/fyrsmithlabs/reflexd/internal/fitness"
	"github.com/fyrsmithlabs/reflexd/internal/kernel"
	"github.com/fyrsmithlabs/reflexd/internal/logging"
	"github.com/fyrsmithlabs/reflexd/internal/modify"
	"github.com/fyrsmithlabs/reflexd/internal/similarity"
	"github.com/fyrsmithlabs/reflexd/internal/store"
	"github.com/fyrsmithlabs/reflexd/internal/strategy"
	"github.com/fyrsmithlabs/reflexd/internal/taskgraph"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "reflexd",
	Short:        "Episodic memory and reasoning core",
	Long:         "reflexd records task attempts as episodes, retrieves prior context for new tasks, consolidates recurring patterns, and recovers from failures using learned strategy weights.",
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(episodeCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(abstractionsCmd)
	rootCmd.AddCommand(strategyCmd)
	rootCmd.AddCommand(fitnessCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(healthCmd)
}

// app bundles the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *store.DB
	episodes *episode.Store
	ledger   *strategy.Ledger
	modify   *modify.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(store.Config{
		Path:         cfg.Store.Path,
		BusyRetries:  cfg.Store.BusyRetries,
		RetryBackoff: cfg.Store.RetryBackoff.Duration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	episodes, err := episode.NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	ledger, err := strategy.NewLedger(db, logger)
	if err != nil {
		return nil, err
	}
	manager, err := modify.NewManager(db, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		episodes: episodes,
		ledger:   ledger,
		modify:   manager,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	_ = a.db.Close()
}

// newKernel wires the full task pipeline. The runner reports the outcome
// the caller supplies on the command line; recovery strategies are only
// scored and recorded here, their actions are assumed unexecutable from
// the CLI and report failure.
func (a *app) newKernel(runner kernel.Runner) (*kernel.Kernel, error) {
	retriever, err := similarity.NewRetriever(a.episodes, a.logger)
	if err != nil {
		return nil, err
	}
	executor := fallback.ExecutorFunc(func(_ context.Context, _ string, _ fallback.FailureSignal) bool {
		return false
	})
	engine, err := fallback.NewEngine(a.ledger, a.episodes, executor, a.logger,
		fallback.WithEpsilon(a.cfg.Fallback.Epsilon),
		fallback.WithRand(rand.New(rand.NewSource(rand.Int63()))),
	)
	if err != nil {
		return nil, err
	}
	evaluator, err := fitness.NewEvaluator(a.episodes, a.logger,
		fitness.WithWindow(a.cfg.Fitness.Window),
		fitness.WithAlpha(a.cfg.Fitness.Alpha),
	)
	if err != nil {
		return nil, err
	}
	return kernel.New(kernel.Config{
		DB:        a.db,
		Episodes:  a.episodes,
		Retriever: retriever,
		Validator: taskgraph.NewValidator(),
		Fallback:  engine,
		Fitness:   evaluator,
		Runner:    runner,
		TopK:      a.cfg.Retrieval.TopK,
	}, a.logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
