package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// ErrSessionClosed is returned after Close.
var ErrSessionClosed = errors.New("browser session closed")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Page is the slice of a browser tab the retailer adapters need.
type Page interface {
	Open(ctx context.Context, url string) (*goquery.Document, error)
	Document(ctx context.Context) (*goquery.Document, error)
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
}

// Session is one Chrome instance bound to a profile directory. The browser
// starts on first use and stops on Release, so an idle bot holds no process.
type Session struct {
	name        string
	profileDir  string
	headless    bool
	stepTimeout time.Duration

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      bool
}

func NewSession(name, profileDir string, headless bool, stepTimeout time.Duration) *Session {
	return &Session{
		name:        name,
		profileDir:  profileDir,
		headless:    headless,
		stepTimeout: stepTimeout,
	}
}

func (s *Session) acquire() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tab != nil {
		return s.tab, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserDataDir(s.profileDir),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser.
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start %s browser: %w", s.name, err)
	}

	slog.Info("Browser session started", "session", s.name, "profile", s.profileDir)
	s.tab, s.cancelTab, s.cancelAlloc = tab, cancelTab, cancelAlloc
	return tab, nil
}

// Release stops the browser. The next call starts a fresh one.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	if s.tab == nil {
		return
	}
	s.cancelTab()
	s.cancelAlloc()
	s.tab, s.cancelTab, s.cancelAlloc = nil, nil, nil
	slog.Info("Browser session released", "session", s.name)
}

// Close releases the browser and refuses further use.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
}

// run executes actions with the step timeout, also stopping when ctx ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := s.acquire()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stepCtx, cancel := context.WithTimeout(tab, s.stepTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) Open(ctx context.Context, url string) (*goquery.Document, error) {
	var html string
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", s.name, url, err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *Session) Document(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("%s: read page: %w", s.name, err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%s: click %s: %w", s.name, selector, err)
	}
	return nil
}

func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%s: set %s: %w", s.name, selector, err)
	}
	return nil
}
