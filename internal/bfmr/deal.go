package bfmr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/util"
)

// apiDeal is a deal as the board API serves it.
type apiDeal struct {
	DealID              flexString      `json:"deal_id"`
	DealCode            string          `json:"deal_code"`
	Slug                string          `json:"slug"`
	Title               string          `json:"title"`
	RetailPrice         decimal.Decimal `json:"retail_price"`
	PayoutPrice         decimal.Decimal `json:"payout_price"`
	IsReservationClosed bool            `json:"is_reservation_closed"`
	ImageURL            string          `json:"image_url"`
	Items               dealItems       `json:"items"`
}

// flexString accepts an id sent either as a JSON string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

type apiLink struct {
	Retailer string `json:"retailer"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Link     string `json:"link"`
}

type apiItem struct {
	RetailerLinks []apiLink `json:"retailer_links"`
}

// dealItems accepts the two shapes the API uses for retailer links:
// a list of items each carrying retailer_links, or an object wrapping a flat
// items list of links. Both decode into one link list.
type dealItems struct {
	Links []models.RetailerLink
}

func (d *dealItems) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw []apiLink
	switch data[0] {
	case '[':
		var items []apiItem
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode items list: %w", err)
		}
		for _, it := range items {
			raw = append(raw, it.RetailerLinks...)
		}
	case '{':
		var wrapped struct {
			Items []apiLink `json:"items"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("decode items object: %w", err)
		}
		raw = wrapped.Items
	default:
		return fmt.Errorf("unexpected items JSON starting with %q", data[0])
	}

	d.Links = normalizeLinks(raw)
	return nil
}

func normalizeLinks(raw []apiLink) []models.RetailerLink {
	var links []models.RetailerLink
	seen := make(map[string]bool)
	for _, l := range raw {
		u := strings.TrimSpace(l.URL)
		if u == "" {
			u = strings.TrimSpace(l.Link)
		}
		u, ok := absoluteURL(u)
		if !ok {
			slog.Debug("Dropping unusable retailer link", "url", l.URL+l.Link, "retailer", l.Retailer+l.Name)
			continue
		}
		u, _ = util.CleanRetailerURL(u)

		retailer := util.RetailerFromName(l.Retailer)
		if retailer == "" {
			retailer = util.RetailerFromName(l.Name)
		}
		if retailer == "" {
			retailer = util.RetailerFromURL(u)
		}
		if retailer == "" || seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, models.RetailerLink{Retailer: retailer, URL: u})
	}
	return links
}

// absoluteURL returns u as an absolute http(s) URL, adding https:// when the
// board left the scheme off.
func absoluteURL(u string) (string, bool) {
	if u == "" {
		return "", false
	}
	if !strings.Contains(u, "://") {
		u = "https://" + strings.TrimPrefix(u, "//")
	}
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", false
	}
	if !strings.Contains(parsed.Hostname(), ".") {
		return "", false
	}
	return parsed.String(), true
}

func (a apiDeal) toModel() models.Deal {
	return models.Deal{
		DealID:              string(a.DealID),
		DealCode:            strings.TrimSpace(a.DealCode),
		Slug:                a.Slug,
		Title:               strings.TrimSpace(a.Title),
		RetailPrice:         a.RetailPrice,
		PayoutPrice:         a.PayoutPrice,
		Links:               a.Items.Links,
		IsReservationClosed: a.IsReservationClosed,
		ImageURL:            a.ImageURL,
	}
}

type paging struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

type dealsPage struct {
	Deals  []apiDeal `json:"deals"`
	Paging paging    `json:"paging"`
}

type dealResponse struct {
	Deal apiDeal `json:"deal"`
}

type trackingRequest struct {
	DealID         string          `json:"deal_id"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	Quantity       int             `json:"quantity"`
	Cost           decimal.Decimal `json:"cost"`
}
