package retailer

import (
	"github.com/pauljones0/bfmr-deal-bot/internal/browser"
	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
)

// BestBuy only validates; the operator adds Best Buy units by hand.
type BestBuy struct {
	base
}

func NewBestBuy(page browser.Page, rules config.Provider, ai PriceReader) *BestBuy {
	return &BestBuy{base{
		name:  models.RetailerBestBuy,
		page:  page,
		sel:   scraper.Selectors().BestBuy,
		rules: rules,
		ai:    ai,
	}}
}
