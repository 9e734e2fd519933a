package filter

import (
	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// Rejection reasons, in the order they are checked.
const (
	ReasonAlreadyOrdered = "already_ordered"
	ReasonLowMargin      = "margin_below_minimum"
	ReasonLowPayout      = "payout_below_minimum"
	ReasonNoRetailer     = "no_enabled_retailer_link"
	ReasonClosed         = "reservations_closed"
)

// OrderedFunc reports whether a deal code already has an order.
type OrderedFunc func(code string) bool

// IsActionable reports whether deal passes every rule.
func IsActionable(deal models.Deal, rules config.Rules, alreadyOrdered OrderedFunc) bool {
	return Reason(deal, rules, alreadyOrdered) == ""
}

// Reason returns the first rule the deal fails, or "" if it passes.
func Reason(deal models.Deal, rules config.Rules, alreadyOrdered OrderedFunc) string {
	if alreadyOrdered != nil && alreadyOrdered(deal.Key()) {
		return ReasonAlreadyOrdered
	}
	if deal.MarginPercent() < rules.MinProfitMarginPercent {
		return ReasonLowMargin
	}
	if deal.PayoutPrice.LessThan(rules.MinPayout) {
		return ReasonLowPayout
	}
	if !HasEnabledRetailer(deal, rules) {
		return ReasonNoRetailer
	}
	if rules.OnlyOpenDeals && deal.IsReservationClosed {
		return ReasonClosed
	}
	return ""
}

// HasEnabledRetailer reports whether at least one enabled retailer has a link.
func HasEnabledRetailer(deal models.Deal, rules config.Rules) bool {
	for _, r := range rules.EnabledRetailers() {
		if _, ok := deal.LinkFor(r); ok {
			return true
		}
	}
	return false
}

// MissingRetailers lists enabled retailers for which the deal has no link.
func MissingRetailers(deal models.Deal, rules config.Rules) []models.Retailer {
	var missing []models.Retailer
	for _, r := range rules.EnabledRetailers() {
		if _, ok := deal.LinkFor(r); !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Apply keeps the actionable deals and returns the rejection count per reason.
func Apply(deals []models.Deal, rules config.Rules, alreadyOrdered OrderedFunc) ([]models.Deal, map[string]int) {
	kept := make([]models.Deal, 0, len(deals))
	rejected := make(map[string]int)
	for _, d := range deals {
		if reason := Reason(d, rules, alreadyOrdered); reason != "" {
			rejected[reason]++
			continue
		}
		kept = append(kept, d)
	}
	return kept, rejected
}
