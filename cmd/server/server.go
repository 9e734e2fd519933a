package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/ordersync"
	"github.com/pauljones0/bfmr-deal-bot/internal/processor"
	"github.com/pauljones0/bfmr-deal-bot/internal/validator"
)

const (
	cycleTimeout = 15 * time.Minute
	syncTimeout  = 5 * time.Minute
)

// Bot is the orchestrator surface the HTTP layer drives.
type Bot interface {
	CheckDeals(ctx context.Context) (processor.CycleSummary, error)
	RetryDeal(ctx context.Context, code string, amazonOnly bool) (processor.DealResult, error)
	Resume()
	Paused() bool
}

type OrderSyncer interface {
	Sync(ctx context.Context) (ordersync.Result, error)
}

type TrackingQueue interface {
	QueueTracking(ctx context.Context, sub models.TrackingSubmission) (string, error)
}

type Server struct {
	bot      Bot
	syncer   OrderSyncer
	tracking TrackingQueue
	metrics  http.Handler
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/check-deals", s.CheckDealsHandler)
	mux.HandleFunc("/sync-orders", s.SyncOrdersHandler)
	mux.HandleFunc("GET /retry", s.RetryHandler)
	mux.HandleFunc("POST /retry", s.RetryHandler)
	mux.HandleFunc("POST /resume", s.ResumeHandler)
	mux.HandleFunc("POST /tracking", s.TrackingHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) checkDeals(ctx context.Context) error {
	summary, err := s.bot.CheckDeals(ctx)
	switch {
	case errors.Is(err, processor.ErrCheckInProgress):
		slog.Info("Deal check skipped, previous check still running")
		return nil
	case errors.Is(err, processor.ErrPaused):
		slog.Warn("Deal check skipped, bot is paused")
		return nil
	case err != nil:
		return err
	}
	slog.Info("Deal check complete", "fetched", summary.Fetched, "processed", summary.Processed)
	return nil
}

func (s *Server) syncOrders(ctx context.Context) error {
	res, err := s.syncer.Sync(ctx)
	if errors.Is(err, ordersync.ErrSyncInProgress) {
		return nil
	}
	if err != nil {
		return err
	}
	if res.Pending > 0 {
		slog.Info("Order sync complete", "submitted", res.Submitted, "failed", res.Failed)
	}
	return nil
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "paused": s.bot.Paused()})
}

// CheckDealsHandler starts a cycle in the background so the response is
// not held for the length of a browser run.
func (s *Server) CheckDealsHandler(w http.ResponseWriter, r *http.Request) {
	if s.bot.Paused() {
		http.Error(w, "Bot is paused; POST /resume first.", http.StatusConflict)
		return
	}
	go background("CheckDeals", cycleTimeout, s.checkDeals)

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Deal check started.")
}

func (s *Server) SyncOrdersHandler(w http.ResponseWriter, r *http.Request) {
	go background("SyncOrders", syncTimeout, s.syncOrders)

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Order sync started.")
}

func background(name string, timeout time.Duration, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in background job", "job", name, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("Background job failed", "job", name, "error", err)
	}
}

type outcomeResponse struct {
	Retailer models.Retailer `json:"retailer,omitempty"`
	Action   models.Action   `json:"action"`
	Quantity int             `json:"quantity"`
	Detail   string          `json:"detail,omitempty"`
}

type retryResponse struct {
	Code     string              `json:"code"`
	State    processor.DealState `json:"state"`
	Detail   string              `json:"detail,omitempty"`
	Reserved int                 `json:"reserved"`
	Outcomes []outcomeResponse   `json:"outcomes"`
}

// RetryHandler drives one deal again, synchronously. mode=amazon takes the
// Amazon-only cart path.
func (s *Server) RetryHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	amazonOnly := r.URL.Query().Get("mode") == "amazon"

	ctx, cancel := context.WithTimeout(r.Context(), cycleTimeout)
	defer cancel()

	result, err := s.bot.RetryDeal(ctx, code, amazonOnly)
	switch {
	case errors.Is(err, processor.ErrCheckInProgress):
		http.Error(w, "A deal check is running; try again shortly.", http.StatusConflict)
		return
	case errors.Is(err, models.ErrDealNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		slog.Error("Retry failed", "code", code, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := retryResponse{
		Code:     result.DealCode,
		State:    result.State,
		Detail:   result.Detail,
		Reserved: result.Reservation.TotalReserved,
		Outcomes: make([]outcomeResponse, 0, len(result.Outcomes)),
	}
	for _, o := range result.Outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeResponse{Retailer: o.Retailer, Action: o.Action, Quantity: o.Quantity, Detail: o.ResultDetail})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	s.bot.Resume()
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": s.bot.Paused()})
}

type trackingRequest struct {
	DealID         string          `json:"dealId" validate:"required"`
	DealCode       string          `json:"dealCode" validate:"required"`
	TrackingNumber string          `json:"trackingNumber" validate:"required_without=OrderID"`
	OrderID        string          `json:"orderId"`
	Quantity       int             `json:"quantity" validate:"gte=1"`
	Cost           decimal.Decimal `json:"cost" validate:"gte=0"`
}

// TrackingHandler queues a purchased order for submission to the board.
func (s *Server) TrackingHandler(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validator.Struct(req); err != nil {
		http.Error(w, validator.Describe(err), http.StatusBadRequest)
		return
	}

	id, err := s.tracking.QueueTracking(r.Context(), models.TrackingSubmission{
		DealID:         req.DealID,
		DealCode:       req.DealCode,
		TrackingNumber: req.TrackingNumber,
		OrderID:        req.OrderID,
		Quantity:       req.Quantity,
		Cost:           req.Cost,
	})
	if err != nil {
		slog.Error("Failed to queue tracking", "code", req.DealCode, "error", err)
		http.Error(w, "failed to queue tracking", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
