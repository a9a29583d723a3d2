// Package pipeline wires the Decider, ReputationEngine, and Aggregator
// together into the single consumer loop that drains the report queue.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/transitwatch/transitwatch/internal/aggregator"
	"github.com/transitwatch/transitwatch/internal/decider"
	"github.com/transitwatch/transitwatch/internal/errkind"
	"github.com/transitwatch/transitwatch/internal/queue"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/reputation"
	"github.com/transitwatch/transitwatch/internal/store"
)

// Routine is the consumer loop driver: the one goroutine that inserts
// reports, updates user trust scores, and recomputes incidents.
type Routine struct {
	queue      queue.Queue
	store      *store.Store
	aggregator *aggregator.Aggregator
	thresholds decider.Thresholds
}

// New constructs a Routine using the Decider's default thresholds.
func New(q queue.Queue, s *store.Store, agg *aggregator.Aggregator) *Routine {
	return &Routine{queue: q, store: s, aggregator: agg, thresholds: decider.DefaultThresholds()}
}

// NewWithThresholds constructs a Routine with deployment-tuned Decider
// thresholds (see internal/config's DeciderConfig).
func NewWithThresholds(q queue.Queue, s *store.Store, agg *aggregator.Aggregator, th decider.Thresholds) *Routine {
	return &Routine{queue: q, store: s, aggregator: agg, thresholds: th}
}

// Run drains the queue until ctx is cancelled. Honors at-least-once
// delivery semantics: a message that fails with a store error is logged
// and dropped rather than requeued, since recomputation is pure over the
// current report set and safe to retry on the next report at that
// location.
func (r *Routine) Run(ctx context.Context) error {
	slog.Info("pipeline: routine started")
	for {
		raw, err := r.queue.BlockingPop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("pipeline: routine stopped", "reason", errkind.Shutdown)
				return ctx.Err()
			}
			slog.Warn("pipeline: blocking pop error", "error", err)
			continue
		}

		if err := r.processMessage(raw); err != nil {
			if errors.Is(err, errkind.UnknownType) {
				slog.Error("pipeline: unknown report type — schema drift, stopping consumer", "error", err)
				return err
			}
			slog.Warn("pipeline: dropped message", "error", err)
		}
	}
}

// processMessage runs one message through decide -> reputation -> (if
// accepted) Aggregator.Routine. Returns nil for an accepted or rejected
// report. Otherwise returns an error wrapping its errkind (InvalidInput,
// UnknownUser, StoreError, UnknownType); Run logs and drops the message for
// every kind except UnknownType, which stops the loop.
func (r *Routine) processMessage(raw []byte) error {
	msg, err := report.ParseJSON(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.InvalidInput, err)
	}

	userID, err := r.store.GetUserIDByUsername(msg.UserName)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", errkind.UnknownUser, msg.UserName)
	}
	if err != nil {
		return fmt.Errorf("%w: lookup user: %v", errkind.StoreError, err)
	}

	user, err := r.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("%w: load user: %v", errkind.StoreError, err)
	}

	accept, prob, err := decider.Decide(decider.Input{
		ReporterLocation: msg.UserLocation,
		TargetLocation:   msg.LocationPos,
		DelayMinutes:     msg.DelayMinutes,
		User: decider.UserStats{
			TrustScore:  user.TrustScore,
			ReportsMade: user.ReportsMade,
		},
		Thresholds: r.thresholds,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.InvalidInput, err)
	}

	newScore := reputation.NewScore(user.TrustScore, accept)
	if err := r.store.UpdateTrustScore(userID, newScore); err != nil {
		return fmt.Errorf("%w: update trust score: %v", errkind.StoreError, err)
	}

	if !accept {
		slog.Info("pipeline: report rejected", "user", msg.UserName, "prob", prob)
		return nil
	}

	inc, err := r.aggregator.Routine(msg, userID)
	if err != nil {
		return err
	}

	slog.Info("pipeline: report accepted", "user", msg.UserName, "prob", prob, "incident_id", inc.ID, "status", inc.Status)
	return nil
}
