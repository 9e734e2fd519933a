package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/filter"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
)

// API is the board's JSON API.
type API interface {
	FetchDeals(ctx context.Context) ([]models.Deal, error)
	FetchDealBySlug(ctx context.Context, slug string) (models.Deal, error)
}

// Pages reads the public board HTML.
type Pages interface {
	ListingSlugs(ctx context.Context) ([]string, error)
	DealPage(ctx context.Context, slug string) (scraper.DealPage, error)
}

// Source produces the current deal list, optionally merging deals that only
// the public listing shows.
type Source struct {
	api    API
	pages  Pages
	rules  config.Provider
	hybrid bool
}

func New(api API, pages Pages, rules config.Provider, hybrid bool) *Source {
	return &Source{api: api, pages: pages, rules: rules, hybrid: hybrid && pages != nil}
}

// FetchDeals returns every API deal plus, in hybrid mode, actionable deals
// found only on the listing. Listing failures fall back to the API result.
func (s *Source) FetchDeals(ctx context.Context) ([]models.Deal, error) {
	deals, err := s.api.FetchDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}
	if !s.hybrid {
		return deals, nil
	}

	hidden, err := s.discoverHidden(ctx, deals)
	if err != nil {
		slog.Warn("Hybrid discovery failed, using API deals only", "error", err)
		return deals, nil
	}
	if len(hidden) > 0 {
		slog.Info("Discovered deals missing from API listing", "count", len(hidden))
	}
	return append(deals, hidden...), nil
}

func (s *Source) discoverHidden(ctx context.Context, known []models.Deal) ([]models.Deal, error) {
	slugs, err := s.pages.ListingSlugs(ctx)
	if err != nil {
		return nil, err
	}

	knownSlugs := lo.SliceToMap(known, func(d models.Deal) (string, struct{}) { return d.Slug, struct{}{} })
	missing := lo.Filter(slugs, func(slug string, _ int) bool {
		_, ok := knownSlugs[slug]
		return !ok
	})

	rules := s.rules.Current()
	var hidden []models.Deal
	for _, slug := range missing {
		if ctx.Err() != nil {
			return hidden, nil
		}
		deal, err := s.api.FetchDealBySlug(ctx, slug)
		if err != nil {
			slog.Warn("Failed to fetch hidden deal", "slug", slug, "error", err)
			continue
		}
		if len(filter.MissingRetailers(deal, rules)) > 0 {
			s.backfill(ctx, &deal)
		}
		if !filter.IsActionable(deal, rules, nil) {
			slog.Debug("Hidden deal not actionable", "slug", slug, "reason", filter.Reason(deal, rules, nil))
			continue
		}
		deal.Hidden = true
		hidden = append(hidden, deal)
	}
	return hidden, nil
}

// backfill adds links and the image from the deal page.
func (s *Source) backfill(ctx context.Context, deal *models.Deal) {
	page, err := s.pages.DealPage(ctx, deal.Slug)
	if err != nil {
		slog.Warn("Failed to scrape deal page", "slug", deal.Slug, "error", err)
		return
	}
	MergePage(deal, page)
}

// MergePage adds links for retailers the deal lacks and fills the image and
// Best Buy annotations when empty.
func MergePage(deal *models.Deal, page scraper.DealPage) {
	for _, l := range page.Links {
		if _, ok := deal.LinkFor(l.Retailer); ok {
			continue
		}
		deal.Links = append(deal.Links, l)
	}
	if bb, ok := deal.LinkFor(models.RetailerBestBuy); ok && deal.BestBuyLink == "" {
		deal.BestBuyLink = bb.URL
	}
	if deal.ImageURL == "" {
		deal.ImageURL = page.ImageURL
	}
}

// FetchDealByCode returns a fresh copy of the deal with the given code.
func (s *Source) FetchDealByCode(ctx context.Context, code string) (models.Deal, error) {
	deals, err := s.FetchDeals(ctx)
	if err != nil {
		return models.Deal{}, err
	}
	deal, ok := lo.Find(deals, func(d models.Deal) bool { return d.DealCode == code })
	if !ok {
		return models.Deal{}, fmt.Errorf("deal %s: %w", code, models.ErrDealNotFound)
	}
	return deal, nil
}

// DiscoverBestBuyLink scrapes the deal page for a Best Buy link the API
// omitted and records it on the deal.
func (s *Source) DiscoverBestBuyLink(ctx context.Context, deal *models.Deal) error {
	if s.pages == nil {
		return errors.New("no page scraper configured")
	}
	if deal.Slug == "" {
		return fmt.Errorf("deal %s has no slug", deal.DealCode)
	}
	page, err := s.pages.DealPage(ctx, deal.Slug)
	if err != nil {
		return err
	}
	MergePage(deal, page)
	return nil
}
