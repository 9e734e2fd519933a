package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/bfmr-deal-bot/internal/ai"
	"github.com/pauljones0/bfmr-deal-bot/internal/bfmr"
	"github.com/pauljones0/bfmr-deal-bot/internal/browser"
	"github.com/pauljones0/bfmr-deal-bot/internal/config"
	"github.com/pauljones0/bfmr-deal-bot/internal/metrics"
	"github.com/pauljones0/bfmr-deal-bot/internal/notifier"
	"github.com/pauljones0/bfmr-deal-bot/internal/ordersync"
	"github.com/pauljones0/bfmr-deal-bot/internal/processor"
	"github.com/pauljones0/bfmr-deal-bot/internal/reservation"
	"github.com/pauljones0/bfmr-deal-bot/internal/retailer"
	"github.com/pauljones0/bfmr-deal-bot/internal/scheduler"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
	"github.com/pauljones0/bfmr-deal-bot/internal/source"
	"github.com/pauljones0/bfmr-deal-bot/internal/storage"
	"github.com/pauljones0/bfmr-deal-bot/internal/tracker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
	slog.Info("Starting BFMR deal bot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot stopped.")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: lvl, TimeFormat: time.DateTime}))
}

func run(ctx context.Context, cfg *config.Config) error {
	amazonDir := filepath.Join(cfg.Browser.ProfileDir, "amazon")
	bestbuyDir := filepath.Join(cfg.Browser.ProfileDir, "bestbuy")
	trackerDir := filepath.Join(cfg.Browser.ProfileDir, "bfmr")
	if err := browser.CleanupLocks(amazonDir, bestbuyDir, trackerDir); err != nil {
		slog.Warn("Could not clear stale browser locks", "error", err)
	}

	store, err := storage.New(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("initializing Firestore client: %w", err)
	}
	defer store.Close()

	m := metrics.New(prometheus.NewRegistry())
	rules := config.NewFileProvider(cfg.RulesPath)

	api := bfmr.New(cfg.Board.APIBaseURL, cfg.Board.APIKey, cfg.Board.APISecret)
	pages, err := scraper.New(cfg.Board.WebBaseURL)
	if err != nil {
		return fmt.Errorf("initializing board scraper: %w", err)
	}
	src := source.New(api, pages, rules, cfg.HybridDiscovery)

	var prices retailer.PriceReader
	if cfg.GeminiAPIKey != "" {
		client, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("Gemini price fallback disabled", "error", err)
		} else {
			prices = client
		}
	}

	amazonSession := browser.NewSession("amazon", amazonDir, cfg.Browser.Headless, cfg.Browser.StepTimeout)
	defer amazonSession.Close()
	bestbuySession := browser.NewSession("bestbuy", bestbuyDir, cfg.Browser.Headless, cfg.Browser.StepTimeout)
	defer bestbuySession.Close()
	web := tracker.NewWeb(cfg.Board.WebBaseURL, trackerDir, cfg.Browser.Headless, cfg.Browser.StepTimeout)
	defer func() {
		if err := web.Close(); err != nil {
			slog.Warn("Failed to close tracker browser", "error", err)
		}
	}()

	reserver := reservation.NewService(web, reservation.Config{
		Email:       cfg.Board.Email,
		Password:    cfg.Board.Password,
		Delay:       cfg.Reserve.Delay,
		MaxAttempts: cfg.Reserve.MaxAttempts,
	})

	orch := processor.New(processor.Deps{
		Source: src,
		Adapters: []retailer.Adapter{
			retailer.NewAmazon(amazonSession, rules, prices),
			retailer.NewBestBuy(bestbuySession, rules, prices),
		},
		Reserver: reserver,
		Store:    store,
		Notifier: notifier.New(cfg.DiscordWebhookURL),
		Rules:    rules,
		Metrics:  m,
		Sessions: []processor.Session{amazonSession, bestbuySession, web},
	}, processor.Options{
		BatchSize:           cfg.Reserve.BatchSize,
		StepTimeout:         cfg.Browser.StepTimeout,
		FatalLoginThreshold: cfg.Reserve.FatalLoginThreshold,
		MaxStoredOutcomes:   cfg.MaxStoredOutcomes,
		ProcessedTTL:        cfg.ProcessedTTL,
	})
	syncer := ordersync.New(store, api, m)

	srv := &Server{bot: orch, syncer: syncer, tracking: store, metrics: m.Handler()}
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		go func() {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
		}()

		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpServer.ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Loop(gctx, "check-deals", func() time.Duration {
			return rules.Current().PollingInterval()
		}, srv.checkDeals)
	})
	g.Go(func() error {
		return scheduler.Loop(gctx, "order-sync", func() time.Duration {
			return cfg.OrderSyncInterval
		}, srv.syncOrders)
	})
	return g.Wait()
}
