package bfmr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/util"
	"github.com/pauljones0/bfmr-deal-bot/internal/validator"
)

const (
	maxRetries  = 3
	retryBase   = time.Second
	maxPages    = 50
	maxBodySize = 4 << 20
)

// Client talks to the board's JSON API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string

	httpClient  *http.Client
	rateLimiter *rate.Limiter
	validator   *validator.Validator
	retryBase   time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit overrides the default two requests per second.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.rateLimiter = l }
}

func WithRetryBase(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

func New(baseURL, apiKey, apiSecret string, opts ...Option) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		httpClient:  &http.Client{Timeout: 30 * time.Second, Jar: jar},
		rateLimiter: rate.NewLimiter(rate.Limit(2), 2),
		validator:   validator.New(),
		retryBase:   retryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDeals drains every page of the deal listing.
func (c *Client) FetchDeals(ctx context.Context) ([]models.Deal, error) {
	var deals []models.Deal
	lastPage := 0
	for page := 1; page <= maxPages; page++ {
		var resp dealsPage
		if err := c.get(ctx, fmt.Sprintf("/deals?page_no=%d", page), &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch deals page %d: %w", page, err)
		}
		for _, d := range resp.Deals {
			deal := d.toModel()
			if err := c.validator.ValidateStruct(deal); err != nil {
				slog.Warn("Skipping malformed deal from API", "code", deal.DealCode, "slug", deal.Slug, "error", err)
				continue
			}
			deals = append(deals, deal)
		}
		lastPage = resp.Paging.LastPage
		if lastPage <= page || len(resp.Deals) == 0 {
			break
		}
	}
	if lastPage > maxPages {
		slog.Warn("Deal listing exceeds page cap, remaining pages not fetched", "lastPage", lastPage, "maxPages", maxPages)
	}
	slog.Info("Fetched deals from API", "count", len(deals))
	return deals, nil
}

// FetchDealBySlug loads one deal, including deals hidden from the listing.
func (c *Client) FetchDealBySlug(ctx context.Context, slug string) (models.Deal, error) {
	var resp dealResponse
	if err := c.get(ctx, "/deals/"+url.PathEscape(slug), &resp); err != nil {
		return models.Deal{}, fmt.Errorf("failed to fetch deal %s: %w", slug, err)
	}
	deal := resp.Deal.toModel()
	if deal.Slug == "" {
		deal.Slug = slug
	}
	if err := c.validator.ValidateStruct(deal); err != nil {
		return models.Deal{}, fmt.Errorf("deal %s: %w", slug, err)
	}
	return deal, nil
}

// SubmitTracking reports a shipped order for payout.
func (c *Client) SubmitTracking(ctx context.Context, sub models.TrackingSubmission) error {
	body := trackingRequest{
		DealID:         sub.DealID,
		TrackingNumber: sub.TrackingNumber,
		OrderID:        sub.OrderID,
		Quantity:       sub.Quantity,
		Cost:           sub.Cost,
	}
	if err := c.do(ctx, http.MethodPost, "/deals/submit-tracking", body, nil); err != nil {
		return fmt.Errorf("failed to submit tracking for deal %s: %w", sub.DealID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	return util.RetryWithBackoff(ctx, maxRetries, c.retryBase, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("API-KEY", c.apiKey)
		req.Header.Set("API-SECRET", c.apiSecret)
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt > 0 {
				slog.Warn("Board API request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			}
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return util.Permanent(models.ErrDealNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		case resp.StatusCode >= 400:
			return util.Permanent(&StatusError{Code: resp.StatusCode, Body: string(body)})
		}

		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return util.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("board API status %d: %s", e.Code, body)
}

// IsUnauthorized reports whether err is a rejected API key.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}
