package processor

import (
	"context"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// DealSource supplies deals and fresh single-deal reads.
type DealSource interface {
	FetchDeals(ctx context.Context) ([]models.Deal, error)
	FetchDealByCode(ctx context.Context, code string) (models.Deal, error)
	DiscoverBestBuyLink(ctx context.Context, deal *models.Deal) error
}

// Reserver holds quantity on the board's reservation tracker.
type Reserver interface {
	EnsureLoggedIn(ctx context.Context) models.LoginResult
	ReserveIncrementally(ctx context.Context, code string, batchSize, maxTotal int) models.ReservationResult
	VerifyReservation(ctx context.Context, code string) models.VerifyResult
	UnreserveDeal(ctx context.Context, code string) error
}

// OutcomeStore abstracts the history sink and the order ledger.
type OutcomeStore interface {
	AppendOutcome(ctx context.Context, outcome models.ProcessingOutcome) (string, error)
	HasOrder(ctx context.Context, dealCode string) (bool, error)
	TrimOldOutcomes(ctx context.Context, maxOutcomes int) error
}

// OutcomeNotifier abstracts the notification layer.
type OutcomeNotifier interface {
	NotifyOutcome(ctx context.Context, deal models.Deal, outcome models.ProcessingOutcome) error
}

// PauseNotifier is implemented by notifiers that can alert when the bot
// pauses itself.
type PauseNotifier interface {
	NotifyPaused(ctx context.Context, reason string) error
}

// Session is a browser held for the length of a cycle.
type Session interface {
	Release()
}
