package processor

import "github.com/pauljones0/bfmr-deal-bot/internal/models"

// DealState is where a deal ended up in one pass of the orchestrator.
type DealState string

const (
	StateDiscovered         DealState = "discovered"
	StateValidating         DealState = "validating"
	StateReserving          DealState = "reserving"
	StateAllocating         DealState = "allocating"
	StateCommitted          DealState = "committed"
	StatePartiallyCommitted DealState = "partially_committed"
	StateRejected           DealState = "rejected"
	StateFailed             DealState = "failed"
	StateDryRun             DealState = "dry_run"
)

// RetailerCheck is one retailer's validation of a deal.
type RetailerCheck struct {
	Retailer    models.Retailer
	URL         string
	MaxPerOrder int
	Validation  models.ValidationResult
	Err         error
}

type DealResult struct {
	DealCode    string
	State       DealState
	Checks      []RetailerCheck
	Reservation models.ReservationResult
	Verify      models.VerifyResult
	Allocations []Allocation
	Shortfall   int
	Outcomes    []models.ProcessingOutcome
	Detail      string
}

// Valid returns the checks that passed, in validation order.
func (r DealResult) Valid() []RetailerCheck {
	var out []RetailerCheck
	for _, c := range r.Checks {
		if c.Validation.Valid {
			out = append(out, c)
		}
	}
	return out
}

// CycleSummary describes one CheckDeals run.
type CycleSummary struct {
	Fetched    int
	Actionable int
	Processed  int
	Skipped    int
	Rejected   map[string]int
	Results    []DealResult
}
