package retailer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/browser"
	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
)

// Cart statuses beyond the validation reasons.
const (
	CartStatusAdded        = "added"
	CartStatusNotConfirmed = "not_confirmed"
)

// Amazon validates and adds to cart on amazon.com.
type Amazon struct {
	base
}

func NewAmazon(page browser.Page, rules config.Provider, ai PriceReader) *Amazon {
	return &Amazon{base{
		name:  models.RetailerAmazon,
		page:  page,
		sel:   scraper.Selectors().Amazon,
		rules: rules,
		ai:    ai,
	}}
}

// CommitCartAdd revalidates the page and adds qty units to the cart. A page
// that no longer validates reports its reason as the status.
func (a *Amazon) CommitCartAdd(ctx context.Context, url string, expected decimal.Decimal, qty int) (models.CartResult, error) {
	result := models.CartResult{URL: url}

	check, err := a.Validate(ctx, url, expected)
	if err != nil {
		result.Status = string(models.ReasonPageError)
		return result, err
	}
	if !check.Valid {
		result.Status = string(check.Reason)
		slog.Warn("Amazon page changed before cart add", "url", url, "reason", check.Reason, "observed", check.ObservedPrice)
		return result, nil
	}

	if qty > 1 && a.sel.QuantitySelect != "" {
		if err := a.page.SetValue(ctx, a.sel.QuantitySelect, strconv.Itoa(qty)); err != nil {
			return result, fmt.Errorf("set quantity: %w", err)
		}
	}
	if err := a.page.Click(ctx, a.sel.AddToCart); err != nil {
		return result, fmt.Errorf("add to cart: %w", err)
	}

	doc, err := a.page.Document(ctx)
	if err != nil {
		return result, fmt.Errorf("read cart confirmation: %w", err)
	}
	if !exists(doc, a.sel.CartConfirmation) {
		result.Status = CartStatusNotConfirmed
		return result, nil
	}

	result.Success = true
	result.Status = CartStatusAdded
	result.Quantity = qty
	return result, nil
}

// ShouldRollBack reports whether a failed cart status means the deal itself
// went bad and the reservation should be returned.
func ShouldRollBack(status string) bool {
	switch models.ErrorKind(status) {
	case models.ReasonPriceMismatch, models.ReasonOutOfStock, models.ReasonUsedOrRenewed:
		return true
	}
	return false
}
