package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/internal/aggregator"
	"github.com/transitwatch/transitwatch/internal/config"
	"github.com/transitwatch/transitwatch/internal/decider"
	"github.com/transitwatch/transitwatch/internal/pipeline"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/store"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Drain the report queue into the store without running the HTTP gateway",
	RunE:  runConsume,
}

func runConsume(cmd *cobra.Command, args []string) error {
	printHeader("transitwatch consume")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.SeedReportTypes(report.TypeNames()); err != nil {
		return fmt.Errorf("seed report types: %w", err)
	}

	q, err := openQueue(cfg.Queue)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	agg, err := aggregator.New(s)
	if err != nil {
		return fmt.Errorf("new aggregator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pipeline.NewWithThresholds(q, s, agg, decider.Thresholds(cfg.Decider)).Run(ctx)
}
