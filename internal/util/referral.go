package util

import (
	"net/url"
	"strings"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// CleanRetailerURL unwraps affiliate redirectors and strips tracking
// parameters so the bot navigates straight to the retailer's product page.
// It returns the cleaned URL and whether anything changed.
func CleanRetailerURL(rawURL string) (string, bool) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsedURL.Host == "" {
		return rawURL, false
	}

	switch parsedURL.Hostname() {
	case "click.linksynergy.com":
		if dest := parsedURL.Query().Get("murl"); dest != "" {
			cleaned, _ := CleanRetailerURL(dest)
			return cleaned, true
		}
		return rawURL, false
	case "go.redirectingat.com":
		if dest := parsedURL.Query().Get("url"); dest != "" {
			cleaned, _ := CleanRetailerURL(dest)
			return cleaned, true
		}
		return rawURL, false
	}

	if RetailerFromURL(rawURL) == "" {
		return rawURL, false
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return rawURL, false
	}
	return normalized, normalized != rawURL
}

// RetailerFromURL identifies a supported retailer by registrable domain.
func RetailerFromURL(rawURL string) models.Retailer {
	domain := RegistrableDomain(rawURL)
	switch {
	case strings.HasPrefix(domain, "amazon."), domain == "amzn.to":
		return models.RetailerAmazon
	case strings.HasPrefix(domain, "bestbuy."):
		return models.RetailerBestBuy
	}
	return ""
}

// RetailerFromName maps a board retailer label ("Amazon", "Best Buy") to a
// supported retailer.
func RetailerFromName(name string) models.Retailer {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	switch {
	case strings.HasPrefix(n, "amazon"):
		return models.RetailerAmazon
	case strings.HasPrefix(n, "bestbuy"):
		return models.RetailerBestBuy
	}
	return ""
}
