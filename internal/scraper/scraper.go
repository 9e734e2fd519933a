package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/util"
)

const (
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxListingPages  = 10
	maxRetries       = 2
	requestTimeout   = 30 * time.Second
	listingPath      = "/deals"
	dealPathFragment = "/deals/"
)

// DealPage is what a board deal page adds to the API record.
type DealPage struct {
	Links    []models.RetailerLink
	ImageURL string
}

// Client reads the public board pages.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	selectors  BoardSelectors
}

func New(webBaseURL string) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(webBaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid board web URL %q", webBaseURL)
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    base,
		selectors:  Selectors().Board,
	}, nil
}

// ListingSlugs crawls the public listing, following pagination, and returns
// every deal slug it links to in page order.
func (c *Client) ListingSlugs(ctx context.Context) ([]string, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(c.baseURL.Hostname()),
		colly.UserAgent(userAgent),
		colly.MaxDepth(maxListingPages),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(requestTimeout)

	var slugs []string
	seen := make(map[string]bool)
	var crawlErr error

	collector.OnHTML(c.selectors.ListingDealLink, func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if !strings.Contains(href, dealPathFragment) {
			return
		}
		slug := util.SlugFromURL(href)
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		slugs = append(slugs, slug)
	})

	collector.OnHTML(c.selectors.ListingNextPage, func(e *colly.HTMLElement) {
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		if err := e.Request.Visit(next); err != nil {
			slog.Debug("Listing page not followed", "url", next, "error", err)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Only the first page failing is fatal; later pages keep what was found.
		if r.Request.Depth <= 1 {
			crawlErr = fmt.Errorf("listing %s: status %d: %w", r.Request.URL, r.StatusCode, err)
		} else {
			slog.Warn("Listing page failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
		}
	})

	start := c.baseURL.String() + listingPath
	if err := collector.Visit(start); err != nil && crawlErr == nil {
		crawlErr = fmt.Errorf("failed to crawl listing %s: %w", start, err)
	}
	collector.Wait()

	if crawlErr != nil {
		return nil, crawlErr
	}
	slog.Info("Crawled board listing", "slugs", len(slugs))
	return slugs, nil
}

// DealPage scrapes a deal page for retailer links and the product image.
func (c *Client) DealPage(ctx context.Context, slug string) (DealPage, error) {
	pageURL := c.baseURL.String() + dealPathFragment + url.PathEscape(slug)

	var doc *goquery.Document
	err := util.RetryWithBackoff(ctx, maxRetries, time.Second, func(attempt int) error {
		var fetchErr error
		doc, fetchErr = c.fetchHTMLContent(ctx, pageURL)
		if fetchErr != nil && attempt < maxRetries {
			slog.Warn("Deal page fetch failed, retrying", "slug", slug, "attempt", attempt+1, "error", fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		return DealPage{}, fmt.Errorf("failed to scrape deal page %s: %w", slug, err)
	}
	return ParseDealPage(doc, c.selectors), nil
}

// ParseDealPage extracts retailer links and the image from a deal page.
func ParseDealPage(doc *goquery.Document, sel BoardSelectors) DealPage {
	var page DealPage
	seen := make(map[string]bool)

	doc.Find(sel.DealRetailerLink).Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			return
		}
		cleaned, _ := util.CleanRetailerURL(strings.TrimSpace(href))

		retailer := util.RetailerFromName(s.AttrOr("data-retailer", ""))
		if retailer == "" {
			retailer = util.RetailerFromURL(cleaned)
		}
		if retailer == "" || seen[cleaned] {
			return
		}
		seen[cleaned] = true
		page.Links = append(page.Links, models.RetailerLink{Retailer: retailer, URL: cleaned})
	})

	if src, exists := doc.Find(sel.DealImage).First().Attr("src"); exists {
		page.ImageURL = strings.TrimSpace(src)
	}
	return page
}

func (c *Client) fetchHTMLContent(ctx context.Context, urlStr string) (*goquery.Document, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to parse URL %s: %w", urlStr, err))
	}
	if parsedURL.Hostname() != c.baseURL.Hostname() {
		return nil, util.Permanent(fmt.Errorf("security violation: URL hostname %s is not the board host", parsedURL.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to create request for URL %s: %w", urlStr, err))
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, util.Permanent(models.ErrDealNotFound)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
	}

	return goquery.NewDocumentFromReader(res.Body)
}
