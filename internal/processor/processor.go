package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/metrics"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/retailer"
)

var (
	ErrCheckInProgress = errors.New("deal check already in progress")
	ErrPaused          = errors.New("bot paused after repeated fatal logins")
)

type Options struct {
	BatchSize           int
	StepTimeout         time.Duration
	FatalLoginThreshold int
	MaxStoredOutcomes   int
	ProcessedTTL        time.Duration
}

type Deps struct {
	Source   DealSource
	Adapters []retailer.Adapter
	Reserver Reserver
	Store    OutcomeStore
	Notifier OutcomeNotifier
	Rules    config.Provider
	Metrics  *metrics.Metrics
	Sessions []Session
}

// Orchestrator drives deals from discovery to cart.
type Orchestrator struct {
	Deps
	opts     Options
	inFlight *InFlightTracker

	checking    atomic.Bool
	paused      atomic.Bool
	fatalLogins atomic.Int32

	now func() time.Time
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 45 * time.Second
	}
	if opts.FatalLoginThreshold <= 0 {
		opts.FatalLoginThreshold = 3
	}
	if opts.ProcessedTTL <= 0 {
		opts.ProcessedTTL = 6 * time.Hour
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return &Orchestrator{
		Deps:     deps,
		opts:     opts,
		inFlight: NewInFlightTracker(opts.ProcessedTTL),
		now:      time.Now,
	}
}

// ProcessDeal validates every enabled retailer, reserves what the valid ones
// can take, and allocates the reservation across them.
func (o *Orchestrator) ProcessDeal(ctx context.Context, deal models.Deal) DealResult {
	rules := o.Rules.Current()
	log := slog.With("code", deal.DealCode)
	result := DealResult{DealCode: deal.DealCode, State: StateDiscovered}

	result.State = StateValidating
	result.Checks = o.validateAll(ctx, &deal, rules)
	valid := result.Valid()
	if len(valid) == 0 {
		log.Info("No retailer validated, skipping reservation")
		return o.finish(result, StateRejected, "no valid retailer")
	}
	totalBuyable := lo.SumBy(valid, func(c RetailerCheck) int { return c.MaxPerOrder })

	if rules.DryRun {
		for _, c := range valid {
			o.record(ctx, deal, &result, c.Retailer, models.ActionDryRun, c.MaxPerOrder,
				fmt.Sprintf("would reserve up to %d at %s", c.MaxPerOrder, c.Validation.ObservedPrice))
		}
		return o.finish(result, StateDryRun, "dry run")
	}

	result.State = StateReserving
	if login := o.login(ctx); !login.Success {
		detail := "board login failed"
		if login.Err != nil {
			detail = fmt.Sprintf("board login failed: %v", login.Err)
		}
		o.recordAll(ctx, deal, &result, valid, models.ActionReservationFailed, 0, detail)
		return o.finish(result, StateFailed, detail)
	}

	res := o.Reserver.ReserveIncrementally(ctx, deal.DealCode, o.opts.BatchSize, totalBuyable)
	result.Reservation = res
	o.Metrics.Reservations.WithLabelValues(string(res.State)).Inc()
	o.Metrics.UnitsReserved.Add(float64(res.TotalReserved))
	if !res.Success {
		detail := fmt.Sprintf("reservation %s after %d attempts", res.State, res.Attempts)
		if res.Detail != "" {
			detail += ": " + res.Detail
		}
		o.recordAll(ctx, deal, &result, valid, models.ActionReservationFailed, 0, detail)
		return o.finish(result, StateFailed, detail)
	}

	result.Verify = o.Reserver.VerifyReservation(ctx, deal.DealCode)
	if !o.confirmed(result.Verify, res.TotalReserved, log) && rules.BlocksOnVerification() {
		if err := o.Reserver.UnreserveDeal(ctx, deal.DealCode); err != nil {
			log.Warn("Rollback unreserve failed", "error", err)
		}
		o.recordAll(ctx, deal, &result, valid, models.ActionRolledBack, res.TotalReserved, "reservation not confirmed on tracker")
		return o.finish(result, StateFailed, "reservation not confirmed")
	}

	result.State = StateAllocating
	capacities := lo.Map(valid, func(c RetailerCheck, _ int) Capacity {
		return Capacity{Retailer: c.Retailer, MaxPerOrder: c.MaxPerOrder}
	})
	result.Allocations, result.Shortfall = Allocate(res.TotalReserved, capacities)
	if result.Shortfall > 0 {
		log.Warn("Allocation shortfall", "reserved", res.TotalReserved, "unplaced", result.Shortfall)
		o.Metrics.AllocationShortfall.Add(float64(result.Shortfall))
	}

	attempted, succeeded, dealWentBad := 0, 0, 0
	var badStatus string
	for i, alloc := range result.Allocations {
		if alloc.Quantity == 0 {
			continue
		}
		attempted++
		ok, status := o.commit(ctx, deal, &result, valid[i], alloc.Quantity)
		switch {
		case ok:
			succeeded++
		case retailer.ShouldRollBack(status):
			dealWentBad++
			badStatus = status
		}
	}

	switch {
	case succeeded == attempted:
		return o.finish(result, StateCommitted, "")
	case succeeded > 0:
		return o.finish(result, StatePartiallyCommitted, "")
	case dealWentBad == attempted:
		log.Warn("Deal went bad at cart, returning reservation", "status", badStatus)
		o.rollback(ctx, deal, &result, res.TotalReserved, badStatus)
		return o.finish(result, StateFailed, badStatus)
	default:
		return o.finish(result, StateFailed, "no retailer accepted its allocation")
	}
}

// commit places qty units with one retailer and records the outcome. The
// returned status is the cart status on failure.
func (o *Orchestrator) commit(ctx context.Context, deal models.Deal, result *DealResult, check RetailerCheck, qty int) (bool, string) {
	adapter, err := retailer.ForDeal(o.Adapters, check.Retailer)
	if err != nil {
		o.record(ctx, deal, result, check.Retailer, models.ActionCartAddFailed, qty, err.Error())
		return false, ""
	}

	committer, ok := adapter.(retailer.Committer)
	if !ok {
		o.record(ctx, deal, result, check.Retailer, models.ActionReadyForManualAdd, qty, check.URL)
		return true, ""
	}

	cart, err := o.safeCommit(ctx, committer, check.URL, deal, qty)
	if err != nil {
		o.record(ctx, deal, result, check.Retailer, models.ActionCartAddFailed, qty, err.Error())
		return false, ""
	}
	if !cart.Success {
		o.record(ctx, deal, result, check.Retailer, models.ActionCartAddFailed, qty, cart.Status)
		return false, cart.Status
	}
	o.record(ctx, deal, result, check.Retailer, models.ActionCartAdded, cart.Quantity, check.URL)
	return true, ""
}

// ProcessAmazonDeal is the Amazon-only path: validate, reserve, revalidate,
// then add to cart, returning the reservation if the page turned bad.
func (o *Orchestrator) ProcessAmazonDeal(ctx context.Context, deal models.Deal) DealResult {
	rules := o.Rules.Current()
	log := slog.With("code", deal.DealCode, "retailer", models.RetailerAmazon)
	result := DealResult{DealCode: deal.DealCode, State: StateValidating}

	link, ok := deal.LinkFor(models.RetailerAmazon)
	if !ok || !rules.Amazon.Enabled {
		return o.finish(result, StateRejected, "no enabled Amazon link")
	}
	adapter, err := retailer.ForDeal(o.Adapters, models.RetailerAmazon)
	if err != nil {
		return o.finish(result, StateRejected, err.Error())
	}
	committer, ok := adapter.(retailer.Committer)
	if !ok {
		return o.finish(result, StateRejected, "Amazon adapter cannot add to cart")
	}

	check := o.check(ctx, adapter, link.URL, deal, rules.Amazon.MaxPerOrder)
	result.Checks = []RetailerCheck{check}
	if !check.Validation.Valid {
		return o.finish(result, StateRejected, string(check.Validation.Reason))
	}
	if rules.DryRun {
		o.record(ctx, deal, &result, models.RetailerAmazon, models.ActionDryRun, check.MaxPerOrder, "amazon only")
		return o.finish(result, StateDryRun, "dry run")
	}

	result.State = StateReserving
	if login := o.login(ctx); !login.Success {
		o.record(ctx, deal, &result, models.RetailerAmazon, models.ActionReservationFailed, 0, "board login failed")
		return o.finish(result, StateFailed, "board login failed")
	}
	res := o.Reserver.ReserveIncrementally(ctx, deal.DealCode, o.opts.BatchSize, check.MaxPerOrder)
	result.Reservation = res
	o.Metrics.Reservations.WithLabelValues(string(res.State)).Inc()
	o.Metrics.UnitsReserved.Add(float64(res.TotalReserved))
	if !res.Success {
		o.record(ctx, deal, &result, models.RetailerAmazon, models.ActionReservationFailed, 0, string(res.State))
		return o.finish(result, StateFailed, string(res.State))
	}

	result.State = StateAllocating
	recheck := o.check(ctx, adapter, link.URL, deal, check.MaxPerOrder)
	if !recheck.Validation.Valid {
		log.Warn("Amazon page changed after reservation, rolling back", "reason", recheck.Validation.Reason)
		o.rollback(ctx, deal, &result, res.TotalReserved, string(recheck.Validation.Reason))
		return o.finish(result, StateFailed, "revalidation failed")
	}

	cart, err := o.safeCommit(ctx, committer, link.URL, deal, res.TotalReserved)
	switch {
	case err == nil && cart.Success:
		o.record(ctx, deal, &result, models.RetailerAmazon, models.ActionCartAdded, cart.Quantity, link.URL)
		return o.finish(result, StateCommitted, "")
	case err == nil && retailer.ShouldRollBack(cart.Status):
		o.rollback(ctx, deal, &result, res.TotalReserved, cart.Status)
		return o.finish(result, StateFailed, cart.Status)
	default:
		detail := cart.Status
		if err != nil {
			detail = err.Error()
		}
		o.record(ctx, deal, &result, models.RetailerAmazon, models.ActionCartAddFailed, res.TotalReserved, detail)
		return o.finish(result, StateFailed, detail)
	}
}

func (o *Orchestrator) rollback(ctx context.Context, deal models.Deal, result *DealResult, qty int, reason string) {
	detail := reason
	if err := o.Reserver.UnreserveDeal(ctx, deal.DealCode); err != nil {
		slog.Error("Rollback unreserve failed", "code", deal.DealCode, "error", err)
		detail = fmt.Sprintf("%s; unreserve failed: %v", reason, err)
	}
	o.record(ctx, deal, result, models.RetailerAmazon, models.ActionRolledBack, qty, detail)
}

// validateAll checks each enabled retailer in the fixed order. One retailer
// failing, erroring or panicking never stops the next.
func (o *Orchestrator) validateAll(ctx context.Context, deal *models.Deal, rules config.Rules) []RetailerCheck {
	var checks []RetailerCheck
	for _, name := range rules.EnabledRetailers() {
		log := slog.With("code", deal.DealCode, "retailer", name)

		maxPerOrder := rules.Retailer(name).MaxPerOrder
		if maxPerOrder <= 0 {
			log.Debug("Retailer has no per-order quantity, skipping")
			continue
		}

		link, ok := deal.LinkFor(name)
		if !ok && name == models.RetailerBestBuy && o.Source != nil {
			if err := o.Source.DiscoverBestBuyLink(ctx, deal); err != nil {
				log.Warn("Could not discover Best Buy link", "error", err)
			}
			link, ok = deal.LinkFor(name)
		}
		if !ok {
			log.Debug("Deal has no link for retailer")
			continue
		}

		adapter, err := retailer.ForDeal(o.Adapters, name)
		if err != nil {
			log.Warn("Retailer enabled without adapter", "error", err)
			continue
		}

		check := o.check(ctx, adapter, link.URL, *deal, maxPerOrder)
		if check.Err != nil {
			log.Warn("Retailer validation errored", "url", link.URL, "error", check.Err)
		} else if !check.Validation.Valid {
			log.Info("Retailer validation failed", "reason", check.Validation.Reason, "observed", check.Validation.ObservedPrice, "expected", deal.RetailPrice)
		}
		checks = append(checks, check)
	}
	return checks
}

// check runs one validation under the step timeout, converting a panic into
// a page error.
func (o *Orchestrator) check(ctx context.Context, adapter retailer.Adapter, url string, deal models.Deal, maxPerOrder int) (check RetailerCheck) {
	check = RetailerCheck{Retailer: adapter.Name(), URL: url, MaxPerOrder: maxPerOrder}
	defer func() {
		if r := recover(); r != nil {
			check.Validation = models.ValidationResult{Reason: models.ReasonPageError}
			check.Err = fmt.Errorf("panic validating %s: %v", adapter.Name(), r)
		}
		result := "valid"
		if !check.Validation.Valid {
			result = string(check.Validation.Reason)
		}
		o.Metrics.Validations.WithLabelValues(string(adapter.Name()), result).Inc()
	}()

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
	defer cancel()
	check.Validation, check.Err = adapter.Validate(stepCtx, url, deal.RetailPrice)
	if check.Err != nil {
		check.Validation.Valid = false
		if check.Validation.Reason == models.ReasonNone {
			check.Validation.Reason = models.ReasonPageError
		}
	}
	return check
}

func (o *Orchestrator) safeCommit(ctx context.Context, c retailer.Committer, url string, deal models.Deal, qty int) (cart models.CartResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic adding to cart: %v", r)
		}
	}()
	stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
	defer cancel()
	return c.CommitCartAdd(stepCtx, url, deal.RetailPrice, qty)
}

// login signs in and tracks consecutive fatal failures toward a pause.
func (o *Orchestrator) login(ctx context.Context) models.LoginResult {
	res := o.Reserver.EnsureLoggedIn(ctx)
	switch {
	case res.Success:
		o.fatalLogins.Store(0)
	case res.Fatal:
		if n := o.fatalLogins.Add(1); int(n) >= o.opts.FatalLoginThreshold && !o.paused.Load() {
			reason := fmt.Sprintf("%d consecutive fatal board logins", n)
			o.Pause(reason)
			if pn, ok := o.Notifier.(PauseNotifier); ok {
				if err := pn.NotifyPaused(ctx, reason); err != nil {
					slog.Warn("Failed to send pause alert", "error", err)
				}
			}
		}
	}
	return res
}

func (o *Orchestrator) confirmed(v models.VerifyResult, reserved int, log *slog.Logger) bool {
	switch {
	case v.VerificationFailed:
		log.Warn("Could not verify reservation")
		return false
	case !v.Found:
		log.Warn("Reservation not found on tracker", "reserved", reserved)
		return false
	case v.Quantity != reserved:
		log.Warn("Reserved quantity mismatch", "reserved", reserved, "tracker", v.Quantity)
	}
	return true
}

func (o *Orchestrator) recordAll(ctx context.Context, deal models.Deal, result *DealResult, checks []RetailerCheck, action models.Action, qty int, detail string) {
	for _, c := range checks {
		o.record(ctx, deal, result, c.Retailer, action, qty, detail)
	}
}

// record writes one outcome to history, notifications and metrics. Sink
// failures are logged and never change the deal's result.
func (o *Orchestrator) record(ctx context.Context, deal models.Deal, result *DealResult, r models.Retailer, action models.Action, qty int, detail string) {
	outcome := models.ProcessingOutcome{
		DealCode:     deal.DealCode,
		Retailer:     r,
		Action:       action,
		Quantity:     qty,
		ResultDetail: detail,
		Timestamp:    o.now(),
	}

	if o.Store != nil {
		id, err := o.Store.AppendOutcome(ctx, outcome)
		if err != nil {
			slog.Error("Failed to record outcome", "code", deal.DealCode, "retailer", r, "action", action, "error", err)
		}
		outcome.ID = id
	}
	if o.Notifier != nil {
		if err := o.Notifier.NotifyOutcome(ctx, deal, outcome); err != nil {
			slog.Warn("Failed to notify outcome", "code", deal.DealCode, "error", err)
		}
	}
	o.Metrics.Outcomes.WithLabelValues(string(r), string(action)).Inc()
	slog.Info("Recorded outcome", "code", deal.DealCode, "retailer", r, "action", action, "quantity", qty)
	result.Outcomes = append(result.Outcomes, outcome)
}

func (o *Orchestrator) finish(result DealResult, state DealState, detail string) DealResult {
	result.State = state
	if detail != "" {
		result.Detail = detail
	}
	o.Metrics.DealResults.WithLabelValues(string(state)).Inc()
	slog.Info("Deal processed", "code", result.DealCode, "state", state, "detail", detail, "outcomes", len(result.Outcomes))
	return result
}
