package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/pauljones0/bfmr-deal-bot/internal/browser"
	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
)

const (
	loginPath        = "/login"
	reservePath      = "/deals/reserve/"
	reservationsPath = "/my-reservations"
)

// Web drives the board's logged-in pages through a persistent Chromium
// profile, so a session cookie survives restarts.
type Web struct {
	baseURL     string
	profileDir  string
	headless    bool
	stepTimeout time.Duration
	sel         scraper.TrackerSelectors

	mu      sync.Mutex
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	closed  bool
}

func NewWeb(baseURL, profileDir string, headless bool, stepTimeout time.Duration) *Web {
	return &Web{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		profileDir:  profileDir,
		headless:    headless,
		stepTimeout: stepTimeout,
		sel:         scraper.Selectors().Tracker,
	}
}

func (w *Web) acquire(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, browser.ErrSessionClosed
	}
	if w.page != nil {
		return w.page, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	bctx, err := pw.Chromium.LaunchPersistentContext(w.profileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(w.headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch tracker browser: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		bctx.Close()
		pw.Stop()
		return nil, fmt.Errorf("could not open tracker page: %w", err)
	}
	page.SetDefaultTimeout(float64(w.stepTimeout.Milliseconds()))

	slog.Info("Tracker session started", "profile", w.profileDir)
	w.pw, w.context, w.page = pw, bctx, page
	return page, nil
}

// Release closes the browser; the next call relaunches it.
func (w *Web) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked()
}

func (w *Web) releaseLocked() {
	if w.page == nil {
		return
	}
	if err := w.context.Close(); err != nil {
		slog.Warn("Failed to close tracker browser", "error", err)
	}
	if err := w.pw.Stop(); err != nil {
		slog.Warn("Failed to stop playwright", "error", err)
	}
	w.pw, w.context, w.page = nil, nil, nil
	slog.Info("Tracker session released")
}

// Close releases the browser and refuses further use.
func (w *Web) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked()
	w.closed = true
	return nil
}

func (w *Web) open(ctx context.Context, path string) (playwright.Page, *goquery.Document, error) {
	page, err := w.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := page.Goto(w.baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	doc, err := document(page)
	return page, doc, err
}

func document(page playwright.Page) (*goquery.Document, error) {
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Login signs in unless the persistent profile already is.
func (w *Web) Login(ctx context.Context, email, password string) models.LoginResult {
	page, doc, err := w.open(ctx, loginPath)
	if err != nil {
		return models.LoginResult{Err: err}
	}
	if LoggedIn(doc, w.sel) {
		return models.LoginResult{Success: true}
	}

	if err := page.Locator(w.sel.LoginEmail).Fill(email); err != nil {
		return models.LoginResult{Err: fmt.Errorf("fill email: %w", err)}
	}
	if err := page.Locator(w.sel.LoginPassword).Fill(password); err != nil {
		return models.LoginResult{Err: fmt.Errorf("fill password: %w", err)}
	}
	if err := page.Locator(w.sel.LoginSubmit).Click(); err != nil {
		return models.LoginResult{Err: fmt.Errorf("submit login: %w", err)}
	}
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		slog.Debug("Login page did not settle", "error", err)
	}

	doc, err = document(page)
	if err != nil {
		return models.LoginResult{Err: err}
	}
	if LoggedIn(doc, w.sel) {
		slog.Info("Logged in to board")
		return models.LoginResult{Success: true}
	}
	if LoginFailedFatally(doc, w.sel) {
		return models.LoginResult{Fatal: true, Err: errors.New("board rejected credentials")}
	}
	return models.LoginResult{Err: errors.New("login did not complete")}
}

// Reserve requests qty units of a deal and classifies the response.
func (w *Web) Reserve(ctx context.Context, code string, qty int) (models.ReserveResponse, error) {
	page, doc, err := w.open(ctx, reservePath+url.PathEscape(code))
	if err != nil {
		return models.ReserveResponse{}, err
	}
	if resp := ClassifyReserve(doc, w.sel); resp.Status == models.ReserveClosed || resp.Status == models.ReserveLimitReached {
		return resp, nil
	}

	if w.sel.QuantityInput != "" {
		if n, _ := page.Locator(w.sel.QuantityInput).Count(); n > 0 {
			if err := page.Locator(w.sel.QuantityInput).Fill(strconv.Itoa(qty)); err != nil {
				return models.ReserveResponse{}, fmt.Errorf("set quantity: %w", err)
			}
		}
	}
	if err := page.Locator(w.sel.ReserveButton).First().Click(); err != nil {
		return models.ReserveResponse{}, fmt.Errorf("press reserve: %w", err)
	}
	if err := page.Locator(w.sel.ReserveMessage).First().WaitFor(); err != nil {
		slog.Debug("No reserve message appeared", "code", code, "error", err)
	}

	doc, err = document(page)
	if err != nil {
		return models.ReserveResponse{}, err
	}
	return ClassifyReserve(doc, w.sel), nil
}

// Unreserve releases every unit held for the deal, one reservation row at a
// time.
func (w *Web) Unreserve(ctx context.Context, code string) error {
	page, _, err := w.open(ctx, reservationsPath)
	if err != nil {
		return err
	}
	rows := pageRows{
		page:    page,
		rows:    page.Locator(w.sel.ReservationRow).Filter(playwright.LocatorFilterOptions{HasText: code}),
		release: w.sel.UnreserveButton,
	}
	released, err := releaseRows(rows)
	if err != nil {
		return fmt.Errorf("unreserve %s: %w", code, err)
	}
	if released > 0 {
		slog.Info("Released reservations", "code", code, "rows", released)
	}
	return nil
}

// rowSet is the set of reservation rows matching one deal.
type rowSet interface {
	Count() (int, error)
	ReleaseFirst() error
}

// releaseRows releases the first matching row until none remain. A row that
// survives its release click stops the loop once every original row has had
// a turn.
func releaseRows(rows rowSet) (int, error) {
	initial, err := rows.Count()
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	released := 0
	for n := initial; n > 0; {
		if released == initial {
			return released, fmt.Errorf("%d rows still held after releasing %d", n, released)
		}
		if err := rows.ReleaseFirst(); err != nil {
			return released, err
		}
		released++
		if n, err = rows.Count(); err != nil {
			return released, fmt.Errorf("count rows: %w", err)
		}
	}
	return released, nil
}

type pageRows struct {
	page    playwright.Page
	rows    playwright.Locator
	release string
}

func (r pageRows) Count() (int, error) { return r.rows.Count() }

func (r pageRows) ReleaseFirst() error {
	if err := r.rows.First().Locator(r.release).Click(); err != nil {
		return err
	}
	if err := r.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		slog.Debug("Reservations page did not settle", "error", err)
	}
	return nil
}

// Verify reports how many units the account holds for the deal.
func (w *Web) Verify(ctx context.Context, code string) (models.VerifyResult, error) {
	_, doc, err := w.open(ctx, reservationsPath)
	if err != nil {
		return models.VerifyResult{VerificationFailed: true}, err
	}
	qty, found := ParseReservations(doc, w.sel)[code]
	return models.VerifyResult{Found: found, Quantity: qty}, nil
}
