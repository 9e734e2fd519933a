package scraper

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// JSONLDProduct is the schema.org Product block many retailer pages embed.
type JSONLDProduct struct {
	Type   jsonldType   `json:"@type"`
	Name   string       `json:"name"`
	SKU    string       `json:"sku"`
	Offers JSONLDOffers `json:"offers"`
}

type JSONLDOffer struct {
	Type          string          `json:"@type"`
	Price         decimal.Decimal `json:"price"`
	LowPrice      decimal.Decimal `json:"lowPrice"`
	PriceCurrency string          `json:"priceCurrency"`
	Availability  string          `json:"availability"`  // e.g., "https://schema.org/InStock"
	ItemCondition string          `json:"itemCondition"` // e.g., "https://schema.org/NewCondition"
}

// JSONLDOffers accepts a single offer object or an array of them.
type JSONLDOffers []JSONLDOffer

func (o *JSONLDOffers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var list []JSONLDOffer
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}
	var single JSONLDOffer
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*o = JSONLDOffers{single}
	return nil
}

// jsonldType accepts "@type" as either a string or a list of strings.
type jsonldType []string

func (t *jsonldType) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = jsonldType{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

func (t jsonldType) is(name string) bool {
	for _, s := range t {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Price returns the first positive offer price.
func (p JSONLDProduct) Price() (decimal.Decimal, bool) {
	for _, o := range p.Offers {
		if o.Price.IsPositive() {
			return o.Price, true
		}
		if o.LowPrice.IsPositive() {
			return o.LowPrice, true
		}
	}
	return decimal.Zero, false
}

// InStock reports the first offer's availability. known is false when no
// offer states one.
func (p JSONLDProduct) InStock() (inStock, known bool) {
	for _, o := range p.Offers {
		if o.Availability == "" {
			continue
		}
		switch schemaValue(o.Availability) {
		case "InStock", "LimitedAvailability", "OnlineOnly", "InStoreOnly":
			return true, true
		default:
			return false, true
		}
	}
	return false, false
}

// IsUsed reports whether any offer is for a used, refurbished or damaged item.
func (p JSONLDProduct) IsUsed() bool {
	for _, o := range p.Offers {
		switch schemaValue(o.ItemCondition) {
		case "UsedCondition", "RefurbishedCondition", "DamagedCondition":
			return true
		}
	}
	return false
}

func schemaValue(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ParseProductJSONLD finds the first Product block in the document's
// ld+json scripts, looking inside @graph containers and top-level arrays.
func ParseProductJSONLD(doc *goquery.Document) (JSONLDProduct, bool) {
	var found JSONLDProduct
	var ok bool
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, raw := range jsonldNodes([]byte(s.Text())) {
			var p JSONLDProduct
			if err := json.Unmarshal(raw, &p); err != nil {
				continue
			}
			if p.Type.is("Product") {
				found, ok = p, true
				return false
			}
		}
		return true
	})
	return found, ok
}

func jsonldNodes(data []byte) []json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil
		}
		return list
	}
	var graph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(data, &graph); err == nil && len(graph.Graph) > 0 {
		return graph.Graph
	}
	return []json.RawMessage{data}
}
