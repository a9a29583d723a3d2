package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/internal/aggregator"
	"github.com/transitwatch/transitwatch/internal/config"
	"github.com/transitwatch/transitwatch/internal/decider"
	"github.com/transitwatch/transitwatch/internal/httpapi"
	"github.com/transitwatch/transitwatch/internal/pipeline"
	"github.com/transitwatch/transitwatch/internal/queue"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/scheduler"
	"github.com/transitwatch/transitwatch/internal/store"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway, queue consumer, and staleness sweep together",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("transitwatch serve")

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routine := pipeline.NewWithThresholds(q, s, agg, decider.Thresholds(cfg.Decider))
	go func() {
		if err := routine.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("pipeline stopped unexpectedly", "error", err)
		}
	}()

	if cfg.Scheduler.Enabled {
		everyTick, err := scheduler.ParseCron("* * * * *")
		if err != nil {
			return fmt.Errorf("parse sweep cron: %w", err)
		}

		sched := scheduler.New(scheduler.Config{
			Enabled:      cfg.Scheduler.Enabled,
			TickInterval: cfg.Scheduler.SweepInterval,
			LockPath:     cfg.Scheduler.LockPath,
		})
		sched.Register(&scheduler.Job{
			Name:     "staleness_sweep",
			Cron:     everyTick,
			Category: scheduler.CategorySweep,
			Run: func(ctx context.Context) error {
				swept, err := agg.SweepStale()
				if err != nil {
					return err
				}
				if swept > 0 {
					slog.Info("staleness sweep resolved stale incidents", "count", swept)
				}
				return nil
			},
		})
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("scheduler stopped unexpectedly", "error", err)
			}
		}()
	}

	srv := httpapi.New(q, s, agg)
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

func openQueue(cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case "kafka":
		return queue.NewKafkaQueue(queue.KafkaConfig{
			Brokers:       joinBrokers(cfg.Brokers),
			Topic:         cfg.Topic,
			ConsumerGroup: cfg.ConsumerGroup,
		}), nil
	default:
		return queue.NewMemQueue(cfg.MemCapacity), nil
	}
}

func joinBrokers(brokers []string) string {
	out := ""
	for i, b := range brokers {
		if i > 0 {
			out += ","
		}
		out += b
	}
	return out
}
