package util

import (
	"testing"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

func TestCleanRetailerURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		changed  bool
	}{
		{
			name:     "Non retailer untouched",
			input:    "https://example.com/product?utm_source=x",
			expected: "https://example.com/product?utm_source=x",
			changed:  false,
		},
		{
			name:     "Amazon affiliate tag stripped",
			input:    "https://www.amazon.com/dp/B0TEST/?tag=someone-20",
			expected: "https://amazon.com/dp/B0TEST",
			changed:  true,
		},
		{
			name:     "Linksynergy redirect unwrapped",
			input:    "https://click.linksynergy.com/deeplink?id=x&murl=https%3A%2F%2Fwww.bestbuy.com%2Fsite%2F123.p",
			expected: "https://bestbuy.com/site/123.p",
			changed:  true,
		},
		{
			name:     "Redirectingat unwrapped",
			input:    "https://go.redirectingat.com/?id=1&url=https%3A%2F%2Fwww.amazon.com%2Fdp%2FB0X",
			expected: "https://amazon.com/dp/B0X",
			changed:  true,
		},
		{
			name:     "Clean link unchanged",
			input:    "https://bestbuy.com/site/123.p",
			expected: "https://bestbuy.com/site/123.p",
			changed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := CleanRetailerURL(tt.input)
			if got != tt.expected {
				t.Errorf("CleanRetailerURL() got = %v, want %v", got, tt.expected)
			}
			if changed != tt.changed {
				t.Errorf("CleanRetailerURL() changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Trailing slash", "https://www.bfmr.com/deals/some-deal/", "https://bfmr.com/deals/some-deal"},
		{"Force https", "http://bfmr.com/deals/x", "https://bfmr.com/deals/x"},
		{"Remove UTM params", "https://bfmr.com/deals/x?utm_source=foo&utm_medium=bar", "https://bfmr.com/deals/x"},
		{"Keep other params", "https://bfmr.com/deals?page=2", "https://bfmr.com/deals?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if err != nil {
				t.Fatalf("NormalizeURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://amazon.com/dp/12345", "amazon.com"},
		{"https://smile.amazon.com/dp/12345", "amazon.com"},
		{"https://www.amazon.co.uk/dp/1", "amazon.co.uk"},
		{"https://www.bestbuy.ca", "bestbuy.ca"},
		{"::not a url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RegistrableDomain(tt.input); got != tt.want {
				t.Errorf("RegistrableDomain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetailerIdentification(t *testing.T) {
	if got := RetailerFromURL("https://www.amazon.com/dp/B0"); got != models.RetailerAmazon {
		t.Errorf("RetailerFromURL(amazon) = %q", got)
	}
	if got := RetailerFromURL("https://www.bestbuy.com/site/1.p"); got != models.RetailerBestBuy {
		t.Errorf("RetailerFromURL(bestbuy) = %q", got)
	}
	if got := RetailerFromURL("https://walmart.com/ip/1"); got != "" {
		t.Errorf("RetailerFromURL(walmart) = %q, want empty", got)
	}
	if got := RetailerFromName("Best Buy"); got != models.RetailerBestBuy {
		t.Errorf("RetailerFromName(Best Buy) = %q", got)
	}
	if got := RetailerFromName(" Amazon.com "); got != models.RetailerAmazon {
		t.Errorf("RetailerFromName(Amazon.com) = %q", got)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"$1,299.99", "1299.99", true},
		{"Now $49.5 with coupon", "49.5", true},
		{"USD 15", "15", true},
		{"Currently unavailable", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePrice() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("ParsePrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSlugFromURL(t *testing.T) {
	if got := SlugFromURL("https://www.bfmr.com/deals/apple-airpods-pro-2/"); got != "apple-airpods-pro-2" {
		t.Errorf("SlugFromURL() = %q", got)
	}
	if got := SlugFromURL("https://www.bfmr.com/"); got != "" {
		t.Errorf("SlugFromURL(root) = %q, want empty", got)
	}
}
