// Package ordersync reports purchased orders back to the deal board so the
// payout can be claimed.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pauljones0/bfmr-deal-bot/internal/bfmr"
	"github.com/pauljones0/bfmr-deal-bot/internal/metrics"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// ErrSyncInProgress is returned when a sync is already running.
var ErrSyncInProgress = errors.New("order sync already in progress")

const defaultBatch = 50

// Queue is the pending side of the tracking ledger.
type Queue interface {
	PendingTracking(ctx context.Context, limit int) ([]models.TrackingSubmission, error)
	MarkTrackingSubmitted(ctx context.Context, sub models.TrackingSubmission, at time.Time) error
}

// Board accepts tracking submissions.
type Board interface {
	SubmitTracking(ctx context.Context, sub models.TrackingSubmission) error
}

type Syncer struct {
	queue   Queue
	board   Board
	metrics *metrics.Metrics
	batch   int

	syncing atomic.Bool
	now     func() time.Time
}

func New(queue Queue, board Board, m *metrics.Metrics) *Syncer {
	return &Syncer{queue: queue, board: board, metrics: m, batch: defaultBatch, now: time.Now}
}

// Result counts what one sync did.
type Result struct {
	Pending   int
	Submitted int
	Failed    int
}

// Sync submits every pending tracking entry. A rejected entry is logged and
// left pending for the next sync. Rejected credentials stop the run.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	pending, err := s.queue.PendingTracking(ctx, s.batch)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read pending tracking: %w", err)
	}
	res := Result{Pending: len(pending)}
	if len(pending) == 0 {
		return res, nil
	}
	slog.Info("Submitting tracking", "pending", len(pending))

	for _, sub := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log := slog.With("id", sub.ID, "code", sub.DealCode)

		if err := s.board.SubmitTracking(ctx, sub); err != nil {
			res.Failed++
			s.count("failed")
			if bfmr.IsUnauthorized(err) {
				return res, fmt.Errorf("board rejected API credentials: %w", err)
			}
			log.Warn("Tracking submission failed", "error", err)
			continue
		}

		if err := s.queue.MarkTrackingSubmitted(ctx, sub, s.now()); err != nil {
			// Left pending, so the next sync submits it again.
			log.Error("Submitted tracking but could not mark it", "error", err)
		}
		res.Submitted++
		s.count("submitted")
		log.Info("Tracking submitted", "quantity", sub.Quantity)
	}
	return res, nil
}

func (s *Syncer) count(result string) {
	if s.metrics != nil {
		s.metrics.TrackingSubmitted.WithLabelValues(result).Inc()
	}
}
