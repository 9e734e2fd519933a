package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/bfmr-deal-bot/internal/filter"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// CheckDeals runs one full cycle: fetch, filter, then drive each actionable
// deal in turn. Overlapping calls return ErrCheckInProgress.
func (o *Orchestrator) CheckDeals(ctx context.Context) (CycleSummary, error) {
	if o.paused.Load() {
		return CycleSummary{}, ErrPaused
	}
	if !o.checking.CompareAndSwap(false, true) {
		return CycleSummary{}, ErrCheckInProgress
	}
	defer o.checking.Store(false)
	defer o.releaseSessions()

	start := o.now()
	defer func() { o.Metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	deals, err := o.Source.FetchDeals(ctx)
	if err != nil {
		return CycleSummary{}, fmt.Errorf("failed to fetch deals: %w", err)
	}

	rules := o.Rules.Current()
	actionable, rejected := filter.Apply(deals, rules, o.ordered(ctx))
	summary := CycleSummary{
		Fetched:    len(deals),
		Actionable: len(actionable),
		Rejected:   rejected,
	}
	slog.Info("Deal check started", "fetched", len(deals), "actionable", len(actionable), "rejected", rejected)

	for _, deal := range actionable {
		if ctx.Err() != nil {
			slog.Warn("Deal check cancelled", "remaining", len(actionable)-summary.Processed-summary.Skipped)
			break
		}
		if o.paused.Load() {
			slog.Warn("Bot paused mid-cycle, stopping")
			break
		}

		key := deal.Key()
		if o.inFlight.Processed(key) {
			summary.Skipped++
			continue
		}
		if !o.inFlight.TryAcquire(key) {
			summary.Skipped++
			continue
		}

		result := o.processSafely(ctx, deal)
		o.inFlight.Release(key)
		if result.Reservation.TotalReserved > 0 {
			o.inFlight.MarkProcessed(key)
		}
		summary.Processed++
		summary.Results = append(summary.Results, result)
	}

	if o.Store != nil && o.opts.MaxStoredOutcomes > 0 {
		if err := o.Store.TrimOldOutcomes(ctx, o.opts.MaxStoredOutcomes); err != nil {
			slog.Warn("Failed to trim outcome history", "error", err)
		}
	}

	slog.Info("Deal check finished", "processed", summary.Processed, "skipped", summary.Skipped, "duration", time.Since(start))
	return summary, nil
}

// RetryDeal re-reads a deal from the board and drives it again, ignoring
// the processed mark. With amazonOnly it takes the Amazon cart path.
func (o *Orchestrator) RetryDeal(ctx context.Context, code string, amazonOnly bool) (DealResult, error) {
	if !o.checking.CompareAndSwap(false, true) {
		return DealResult{}, ErrCheckInProgress
	}
	defer o.checking.Store(false)
	defer o.releaseSessions()

	deal, err := o.Source.FetchDealByCode(ctx, code)
	if err != nil {
		return DealResult{}, err
	}

	key := deal.Key()
	o.inFlight.Clear(key)
	if !o.inFlight.TryAcquire(key) {
		return DealResult{}, ErrCheckInProgress
	}
	defer o.inFlight.Release(key)

	var result DealResult
	if amazonOnly {
		result = o.safely(ctx, deal, o.ProcessAmazonDeal)
	} else {
		result = o.processSafely(ctx, deal)
	}
	if result.Reservation.TotalReserved > 0 {
		o.inFlight.MarkProcessed(key)
	}
	return result, nil
}

func (o *Orchestrator) processSafely(ctx context.Context, deal models.Deal) DealResult {
	return o.safely(ctx, deal, o.ProcessDeal)
}

// safely turns a panic in one deal into an error outcome so the cycle moves on.
func (o *Orchestrator) safely(ctx context.Context, deal models.Deal, fn func(context.Context, models.Deal) DealResult) (result DealResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic processing deal", "code", deal.DealCode, "panic", r)
			result = DealResult{DealCode: deal.DealCode}
			o.record(ctx, deal, &result, "", models.ActionError, 0, fmt.Sprintf("panic: %v", r))
			result = o.finish(result, StateFailed, "panic")
		}
	}()
	return fn(ctx, deal)
}

// ordered reports whether a purchase is already on the ledger. A failed
// lookup counts as ordered so a deal is never bought twice.
func (o *Orchestrator) ordered(ctx context.Context) filter.OrderedFunc {
	if o.Store == nil {
		return nil
	}
	return func(code string) bool {
		found, err := o.Store.HasOrder(ctx, code)
		if err != nil {
			slog.Warn("Order ledger lookup failed, skipping deal", "code", code, "error", err)
			return true
		}
		return found
	}
}

func (o *Orchestrator) releaseSessions() {
	for _, s := range o.Sessions {
		s.Release()
	}
}

// Pause stops new cycles until Resume.
func (o *Orchestrator) Pause(reason string) {
	if o.paused.CompareAndSwap(false, true) {
		slog.Error("Bot paused", "reason", reason)
		o.Metrics.Paused.Set(1)
	}
}

func (o *Orchestrator) Resume() {
	if o.paused.CompareAndSwap(true, false) {
		slog.Info("Bot resumed")
	}
	o.fatalLogins.Store(0)
	o.Metrics.Paused.Set(0)
}

func (o *Orchestrator) Paused() bool { return o.paused.Load() }
