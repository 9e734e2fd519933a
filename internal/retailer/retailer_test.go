package retailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// fakePage serves canned HTML and records interactions.
type fakePage struct {
	pages   map[string]string
	after   string // document returned after a click
	current string
	openErr error

	clicks []string
	values map[string]string
}

func (f *fakePage) Open(ctx context.Context, url string) (*goquery.Document, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.current = f.pages[url]
	return goquery.NewDocumentFromReader(strings.NewReader(f.current))
}

func (f *fakePage) Document(ctx context.Context) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.current))
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if f.after != "" {
		f.current = f.after
	}
	return nil
}

func (f *fakePage) SetValue(ctx context.Context, selector, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[selector] = value
	return nil
}

type fakeAI struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeAI) ReadPrice(ctx context.Context, r models.Retailer, text string) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

const productURL = "https://amazon.com/dp/B0AIR"

func amazonPage(price, availability, extra string) string {
	return `<html><body>
		<span id="productTitle">Apple AirPods Pro (2nd Generation)</span>
		<div id="corePrice_feature_div"><span class="a-offscreen">` + price + `</span></div>
		<div id="availability">` + availability + `</div>
		<input id="add-to-cart-button" type="submit">
		` + extra + `
	</body></html>`
}

func rulesWith(tol config.PriceTolerance) config.Provider {
	r := config.DefaultRules()
	r.PriceTolerance = tol
	return config.StaticProvider(r)
}

func TestAmazon_Validate(t *testing.T) {
	expected := decimal.RequireFromString("199.99")

	tests := []struct {
		name      string
		html      string
		tolerance config.PriceTolerance
		wantValid bool
		wantKind  models.ErrorKind
	}{
		{
			name:      "Matching price",
			html:      amazonPage("$199.99", "In Stock", ""),
			wantValid: true,
		},
		{
			name:      "Cheaper is fine",
			html:      amazonPage("$179.00", "In Stock", ""),
			wantValid: true,
		},
		{
			name:     "Price moved up",
			html:     amazonPage("$209.99", "In Stock", ""),
			wantKind: models.ReasonPriceMismatch,
		},
		{
			name:      "Within dollar tolerance",
			html:      amazonPage("$204.99", "In Stock", ""),
			tolerance: config.PriceTolerance{Enabled: true, Type: config.ToleranceDollar, Value: decimal.NewFromInt(5)},
			wantValid: true,
		},
		{
			name:     "Out of stock",
			html:     amazonPage("$199.99", "Currently unavailable.", ""),
			wantKind: models.ReasonOutOfStock,
		},
		{
			name:     "Captcha",
			html:     `<html><body><form action="/errors/validateCaptcha"></form></body></html>`,
			wantKind: models.ReasonBotDetected,
		},
		{
			name:     "Renewed listing",
			html:     amazonPage("$199.99", "In Stock", `<div id="renewedProgramDescriptionAtf">Amazon Renewed</div>`),
			wantKind: models.ReasonUsedOrRenewed,
		},
		{
			name:     "No shipping",
			html:     amazonPage("$199.99", "In Stock", `<p>This item cannot be shipped to your selected delivery location.</p>`),
			wantKind: models.ReasonNoShipping,
		},
		{
			name:     "No price anywhere",
			html:     amazonPage("", "In Stock", ""),
			wantKind: models.ReasonPriceDetectionFailed,
		},
		{
			name: "JSON-LD wins over selectors",
			html: amazonPage("$999.99", "", `<script type="application/ld+json">
				{"@type":"Product","offers":{"price":"199.99","availability":"https://schema.org/InStock"}}
			</script>`),
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{pages: map[string]string{productURL: tt.html}}
			a := NewAmazon(page, rulesWith(tt.tolerance), nil)

			got, err := a.Validate(context.Background(), productURL, expected)
			require.NoError(t, err)
			require.Equal(t, tt.wantValid, got.Valid, "reason %s", got.Reason)
			if !tt.wantValid {
				require.Equal(t, tt.wantKind, got.Reason)
			}
		})
	}
}

func TestValidate_PageError(t *testing.T) {
	page := &fakePage{openErr: errors.New("net::ERR_TIMED_OUT")}
	b := NewBestBuy(page, rulesWith(config.PriceTolerance{}), nil)

	got, err := b.Validate(context.Background(), "https://bestbuy.com/site/1.p", decimal.NewFromInt(10))
	require.Error(t, err)
	require.Equal(t, models.ReasonPageError, got.Reason)
	require.False(t, got.Valid)
}

func TestValidate_AIFallback(t *testing.T) {
	page := &fakePage{pages: map[string]string{productURL: amazonPage("", "In Stock", "<p>Deal price 199.99</p>")}}
	ai := &fakeAI{price: decimal.RequireFromString("199.99")}
	a := NewAmazon(page, rulesWith(config.PriceTolerance{}), ai)

	got, err := a.Validate(context.Background(), productURL, decimal.RequireFromString("199.99"))
	require.NoError(t, err)
	require.True(t, got.Valid)
	require.Equal(t, 1, ai.calls)

	ai.err = errors.New("quota")
	got, err = a.Validate(context.Background(), productURL, decimal.RequireFromString("199.99"))
	require.NoError(t, err)
	require.Equal(t, models.ReasonPriceDetectionFailed, got.Reason)
}

func TestBestBuy_Validate(t *testing.T) {
	html := `<html><body>
		<div class="sku-title"><h1>Nintendo Switch OLED</h1></div>
		<div class="priceView-customer-price"><span aria-hidden="true">$349.99</span></div>
		<div class="fulfillment-add-to-cart-button"><button class="add-to-cart-button">Add to Cart</button></div>
	</body></html>`
	soldOut := strings.Replace(html, `<button class="add-to-cart-button">Add to Cart</button>`, `<button disabled>Sold Out</button>`, 1)

	page := &fakePage{pages: map[string]string{"ok": html, "sold": soldOut}}
	b := NewBestBuy(page, rulesWith(config.PriceTolerance{}), nil)
	require.Equal(t, models.RetailerBestBuy, b.Name())

	got, err := b.Validate(context.Background(), "ok", decimal.RequireFromString("349.99"))
	require.NoError(t, err)
	require.True(t, got.Valid)
	require.True(t, got.ObservedPrice.Equal(decimal.RequireFromString("349.99")))

	got, err = b.Validate(context.Background(), "sold", decimal.RequireFromString("349.99"))
	require.NoError(t, err)
	require.Equal(t, models.ReasonOutOfStock, got.Reason)

	var adapter Adapter = b
	_, isCommitter := adapter.(Committer)
	require.False(t, isCommitter, "Best Buy must not commit cart adds")
}

func TestAmazon_CommitCartAdd(t *testing.T) {
	confirmed := `<html><body><div id="NATC_SMART_WAGON_CONF_MSG_SUCCESS">Added to Cart</div></body></html>`
	page := &fakePage{
		pages: map[string]string{productURL: amazonPage("$199.99", "In Stock", "")},
		after: confirmed,
	}
	a := NewAmazon(page, rulesWith(config.PriceTolerance{}), nil)

	res, err := a.CommitCartAdd(context.Background(), productURL, decimal.RequireFromString("199.99"), 2)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, CartStatusAdded, res.Status)
	require.Equal(t, 2, res.Quantity)
	require.Equal(t, "2", page.values["#quantity"])
	require.Equal(t, []string{"#add-to-cart-button"}, page.clicks)
}

func TestAmazon_CommitCartAdd_PriceMoved(t *testing.T) {
	page := &fakePage{pages: map[string]string{productURL: amazonPage("$249.99", "In Stock", "")}}
	a := NewAmazon(page, rulesWith(config.PriceTolerance{}), nil)

	res, err := a.CommitCartAdd(context.Background(), productURL, decimal.RequireFromString("199.99"), 1)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, string(models.ReasonPriceMismatch), res.Status)
	require.True(t, ShouldRollBack(res.Status))
	require.Empty(t, page.clicks)
}

func TestAmazon_CommitCartAdd_NotConfirmed(t *testing.T) {
	page := &fakePage{pages: map[string]string{productURL: amazonPage("$199.99", "In Stock", "")}}
	a := NewAmazon(page, rulesWith(config.PriceTolerance{}), nil)

	res, err := a.CommitCartAdd(context.Background(), productURL, decimal.RequireFromString("199.99"), 1)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, CartStatusNotConfirmed, res.Status)
	require.False(t, ShouldRollBack(res.Status))
}

func TestForDeal(t *testing.T) {
	adapters := []Adapter{NewAmazon(&fakePage{}, rulesWith(config.PriceTolerance{}), nil)}
	a, err := ForDeal(adapters, models.RetailerAmazon)
	require.NoError(t, err)
	require.Equal(t, models.RetailerAmazon, a.Name())

	_, err = ForDeal(adapters, models.RetailerBestBuy)
	require.Error(t, err)
}
