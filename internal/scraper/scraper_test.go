package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

func newBoard(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
}

func TestListingSlugs_FollowsPagination(t *testing.T) {
	srv := newBoard(t, map[string]string{
		"/deals": `<html><body>
			<a href="/deals/airpods-pro">AirPods</a>
			<a href="/deals/switch-oled/">Switch</a>
			<a href="/deals/airpods-pro">dup</a>
			<a rel="next" href="/deals?page=2">Next</a>
		</body></html>`,
		"/deals?page=2": `<html><body>
			<a href="/deals/ps5-slim?ref=listing">PS5</a>
			<a href="/about">About</a>
		</body></html>`,
	})
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	slugs, err := c.ListingSlugs(context.Background())
	if err != nil {
		t.Fatalf("ListingSlugs() error = %v", err)
	}

	want := []string{"airpods-pro", "switch-oled", "ps5-slim"}
	if strings.Join(slugs, ",") != strings.Join(want, ",") {
		t.Errorf("ListingSlugs() = %v, want %v", slugs, want)
	}
}

func TestListingSlugs_FirstPageFailure(t *testing.T) {
	srv := newBoard(t, map[string]string{})
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.ListingSlugs(context.Background()); err == nil {
		t.Error("Expected error when the listing page is missing")
	}
}

func TestDealPage(t *testing.T) {
	srv := newBoard(t, map[string]string{
		"/deals/airpods-pro": `<html><body>
			<img class="deal-image" src="https://cdn.example.com/airpods.jpg">
			<a class="retailer-link" href="https://www.amazon.com/dp/B0AIR?tag=x-20">Amazon</a>
			<a data-retailer="Best Buy" href="https://click.linksynergy.com/deeplink?murl=https%3A%2F%2Fwww.bestbuy.com%2Fsite%2F42.p">Best Buy</a>
			<a class="retailer-link" href="https://walmart.com/ip/1">Walmart</a>
		</body></html>`,
	})
	defer srv.Close()

	c, _ := New(srv.URL)
	page, err := c.DealPage(context.Background(), "airpods-pro")
	if err != nil {
		t.Fatalf("DealPage() error = %v", err)
	}
	if page.ImageURL != "https://cdn.example.com/airpods.jpg" {
		t.Errorf("ImageURL = %q", page.ImageURL)
	}
	want := []models.RetailerLink{
		{Retailer: models.RetailerAmazon, URL: "https://amazon.com/dp/B0AIR"},
		{Retailer: models.RetailerBestBuy, URL: "https://bestbuy.com/site/42.p"},
	}
	if len(page.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", page.Links, want)
	}
	for i := range want {
		if page.Links[i] != want[i] {
			t.Errorf("Links[%d] = %v, want %v", i, page.Links[i], want[i])
		}
	}
}

func TestDealPage_NotFound(t *testing.T) {
	srv := newBoard(t, map[string]string{})
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.DealPage(context.Background(), "gone")
	if !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Error("Expected error for URL without host")
	}
}

func TestParseProductJSONLD(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantOK    bool
		wantPrice string
		inStock   bool
		known     bool
		used      bool
	}{
		{
			name:      "Single offer",
			script:    `{"@context":"https://schema.org","@type":"Product","name":"AirPods","offers":{"@type":"Offer","price":"199.99","availability":"https://schema.org/InStock","itemCondition":"https://schema.org/NewCondition"}}`,
			wantOK:    true,
			wantPrice: "199.99",
			inStock:   true,
			known:     true,
		},
		{
			name:      "Graph with offer list",
			script:    `{"@graph":[{"@type":"BreadcrumbList"},{"@type":["Product","Thing"],"offers":[{"price":49.5,"availability":"OutOfStock","itemCondition":"RefurbishedCondition"}]}]}`,
			wantOK:    true,
			wantPrice: "49.5",
			inStock:   false,
			known:     true,
			used:      true,
		},
		{
			name:   "No product",
			script: `[{"@type":"Organization","name":"Shop"}]`,
			wantOK: false,
		},
		{
			name:   "Malformed",
			script: `{"@type":"Product",`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<html><head><script type="application/ld+json">` + tt.script + `</script></head></html>`
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				t.Fatal(err)
			}
			p, ok := ParseProductJSONLD(doc)
			if ok != tt.wantOK {
				t.Fatalf("ParseProductJSONLD() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			price, _ := p.Price()
			if price.String() != tt.wantPrice {
				t.Errorf("Price() = %s, want %s", price, tt.wantPrice)
			}
			inStock, known := p.InStock()
			if inStock != tt.inStock || known != tt.known {
				t.Errorf("InStock() = %v,%v want %v,%v", inStock, known, tt.inStock, tt.known)
			}
			if p.IsUsed() != tt.used {
				t.Errorf("IsUsed() = %v, want %v", p.IsUsed(), tt.used)
			}
		})
	}
}

func TestLoadSelectorsFromBytes_FillsMissingSections(t *testing.T) {
	sel, err := LoadSelectorsFromBytes([]byte(`{"board": {"listing_deal_link": "a.card"}}`))
	if err != nil {
		t.Fatalf("LoadSelectorsFromBytes() error = %v", err)
	}
	if sel.Board.ListingDealLink != "a.card" {
		t.Errorf("Board override lost: %q", sel.Board.ListingDealLink)
	}
	if sel.Tracker.ReserveButton != DefaultSelectors().Tracker.ReserveButton {
		t.Error("Tracker section should fall back to defaults")
	}
	if len(sel.Amazon.Price) == 0 {
		t.Error("Amazon section should fall back to defaults")
	}
}

func TestEmbeddedSelectorsParse(t *testing.T) {
	data, err := embeddedSelectors.ReadFile("selectors.json")
	if err != nil {
		t.Fatalf("embedded selectors missing: %v", err)
	}
	sel, err := LoadSelectorsFromBytes(data)
	if err != nil {
		t.Fatalf("embedded selectors invalid: %v", err)
	}
	if sel.Amazon.AddToCart == "" || sel.Tracker.ReservationRow == "" {
		t.Error("embedded selectors incomplete")
	}
}

func TestLoadConfig_ExternalFile(t *testing.T) {
	path := t.TempDir() + "/selectors.json"
	if err := writeFile(path, `{"board": {"listing_deal_link": "a.external"}}`); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SELECTORS_CONFIG_PATH", path)
	if got := LoadConfig().Board.ListingDealLink; got != "a.external" {
		t.Errorf("LoadConfig() listing selector = %q, want a.external", got)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
