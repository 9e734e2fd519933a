package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDealNotFound is returned when a deal code or slug is not on the board.
var ErrDealNotFound = errors.New("deal not found")

type Retailer string

const (
	RetailerAmazon  Retailer = "amazon"
	RetailerBestBuy Retailer = "bestbuy"
)

// Retailers is the fixed order in which retailers are validated and allocated.
var Retailers = []Retailer{RetailerAmazon, RetailerBestBuy}

// RetailerLink is the normalized form of a board retailer link, whichever
// shape the API delivered it in.
type RetailerLink struct {
	Retailer Retailer `json:"retailer" validate:"required"`
	URL      string   `json:"url" validate:"required,url"`
}

// Deal represents one arbitrage opportunity on the board.
type Deal struct {
	DealID              string          `json:"dealId"`
	DealCode            string          `json:"dealCode" validate:"required"`
	Slug                string          `json:"slug"`
	Title               string          `json:"title"`
	RetailPrice         decimal.Decimal `json:"retailPrice"`
	PayoutPrice         decimal.Decimal `json:"payoutPrice"`
	Links               []RetailerLink  `json:"links" validate:"dive"`
	IsReservationClosed bool            `json:"isReservationClosed"`

	// Annotations filled in while processing.
	BestBuyLink string `json:"bestbuyLink,omitempty" validate:"omitempty,url"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"` // surfaced by listing crawl, absent from the API
}

func (d Deal) Profit() decimal.Decimal {
	return d.PayoutPrice.Sub(d.RetailPrice)
}

// MarginPercent is profit as a percentage of retail price. A deal with no
// retail price has no meaningful margin and reports 0.
func (d Deal) MarginPercent() float64 {
	if !d.RetailPrice.IsPositive() {
		return 0
	}
	return d.Profit().Div(d.RetailPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// LinkFor returns the first link for the retailer. For Best Buy the scraped
// BestBuyLink annotation is used when the API carried no link.
func (d Deal) LinkFor(r Retailer) (RetailerLink, bool) {
	for _, l := range d.Links {
		if l.Retailer == r && l.URL != "" {
			return l, true
		}
	}
	if r == RetailerBestBuy && d.BestBuyLink != "" {
		return RetailerLink{Retailer: RetailerBestBuy, URL: d.BestBuyLink}, true
	}
	return RetailerLink{}, false
}

// Key identifies a deal across cycles.
func (d Deal) Key() string {
	if d.DealCode != "" {
		return d.DealCode
	}
	return d.DealID
}
