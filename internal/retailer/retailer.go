package retailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/browser"
	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
	"github.com/pauljones0/bfmr-deal-bot/internal/util"
)

// Adapter checks a retailer's live product page against a deal.
type Adapter interface {
	Name() models.Retailer
	Validate(ctx context.Context, url string, expected decimal.Decimal) (models.ValidationResult, error)
}

// Committer is implemented by adapters that can place units in a cart.
type Committer interface {
	CommitCartAdd(ctx context.Context, url string, expected decimal.Decimal, qty int) (models.CartResult, error)
}

// PriceReader extracts a price from page text when selectors find none.
type PriceReader interface {
	ReadPrice(ctx context.Context, retailer models.Retailer, pageText string) (decimal.Decimal, error)
}

const maxPageText = 12000

// base holds what both adapters share.
type base struct {
	name  models.Retailer
	page  browser.Page
	sel   scraper.RetailerSelectors
	rules config.Provider
	ai    PriceReader
}

func (b *base) Name() models.Retailer { return b.name }

func (b *base) Validate(ctx context.Context, url string, expected decimal.Decimal) (models.ValidationResult, error) {
	doc, err := b.page.Open(ctx, url)
	if err != nil {
		return models.ValidationResult{Reason: models.ReasonPageError}, err
	}
	return b.evaluate(ctx, doc, expected), nil
}

func (b *base) evaluate(ctx context.Context, doc *goquery.Document, expected decimal.Decimal) models.ValidationResult {
	tolerance := b.rules.Current().PriceTolerance
	result := Evaluate(doc, b.sel, expected, tolerance)
	if result.Reason != models.ReasonPriceDetectionFailed || b.ai == nil {
		return result
	}

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > maxPageText {
		text = text[:maxPageText]
	}
	price, err := b.ai.ReadPrice(ctx, b.name, text)
	if err != nil {
		slog.Warn("AI price extraction failed", "retailer", b.name, "error", err)
		return result
	}
	slog.Info("Price read by AI fallback", "retailer", b.name, "price", price)
	return checkPrice(models.ValidationResult{InStock: true}, price, expected, tolerance)
}

// Evaluate classifies a product page. Checks run in order: bot wall, shipping,
// condition, stock, then price against expected within tolerance.
func Evaluate(doc *goquery.Document, sel scraper.RetailerSelectors, expected decimal.Decimal, tolerance config.PriceTolerance) models.ValidationResult {
	body := strings.ToLower(doc.Find("body").Text())

	if exists(doc, sel.Captcha) || containsAny(body, sel.BotText) {
		return models.ValidationResult{Reason: models.ReasonBotDetected}
	}
	if containsAny(body, sel.NoShippingText) {
		return models.ValidationResult{Reason: models.ReasonNoShipping}
	}

	product, hasLD := scraper.ParseProductJSONLD(doc)

	title := strings.ToLower(textOf(doc, sel.Title))
	if (hasLD && product.IsUsed()) || textOf(doc, sel.Condition) != "" || containsAny(title, sel.UsedText) {
		return models.ValidationResult{Reason: models.ReasonUsedOrRenewed}
	}

	availability := strings.ToLower(textOf(doc, sel.Availability))
	ldInStock, ldKnown := false, false
	if hasLD {
		ldInStock, ldKnown = product.InStock()
	}
	outOfStock := containsAny(availability, sel.OutOfStockText) ||
		(ldKnown && !ldInStock) ||
		(!ldKnown && !exists(doc, sel.AddToCart))
	if outOfStock {
		return models.ValidationResult{Reason: models.ReasonOutOfStock}
	}

	result := models.ValidationResult{InStock: true}
	if hasLD {
		if price, ok := product.Price(); ok {
			return checkPrice(result, price, expected, tolerance)
		}
	}
	for _, s := range sel.Price {
		if price, ok := util.ParsePrice(textOf(doc, s)); ok && price.IsPositive() {
			return checkPrice(result, price, expected, tolerance)
		}
	}
	result.Reason = models.ReasonPriceDetectionFailed
	return result
}

func checkPrice(result models.ValidationResult, observed, expected decimal.Decimal, tolerance config.PriceTolerance) models.ValidationResult {
	result.ObservedPrice = observed
	if observed.GreaterThan(tolerance.MaxAcceptablePrice(expected)) {
		result.Reason = models.ReasonPriceMismatch
		return result
	}
	result.Valid = true
	return result
}

func exists(doc *goquery.Document, selector string) bool {
	return selector != "" && doc.Find(selector).Length() > 0
}

func textOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// ForDeal returns the adapter registered for a retailer.
func ForDeal(adapters []Adapter, name models.Retailer) (Adapter, error) {
	for _, a := range adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no adapter for retailer %q", name)
}
