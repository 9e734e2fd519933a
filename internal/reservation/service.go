package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

// Tracker is the board's reservation surface.
type Tracker interface {
	Login(ctx context.Context, email, password string) models.LoginResult
	Reserve(ctx context.Context, code string, qty int) (models.ReserveResponse, error)
	Unreserve(ctx context.Context, code string) error
	Verify(ctx context.Context, code string) (models.VerifyResult, error)
}

type Config struct {
	Email       string
	Password    string
	Delay       time.Duration // pause between successful batches
	MaxAttempts int
}

// Service reserves deal quantity in fixed batches until the board stops
// accepting them, since the per-account limit is not published.
type Service struct {
	tracker Tracker
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewService(tracker Tracker, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Service{tracker: tracker, cfg: cfg, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EnsureLoggedIn signs in to the board with the configured account.
func (s *Service) EnsureLoggedIn(ctx context.Context) models.LoginResult {
	res := s.tracker.Login(ctx, s.cfg.Email, s.cfg.Password)
	if !res.Success {
		slog.Warn("Board login failed", "fatal", res.Fatal, "error", res.Err)
	}
	return res
}

// ReserveIncrementally reserves up to maxTotal units of a deal in whole
// batches of min(batchSize, maxTotal). A batch is only issued when it fits
// under maxTotal, so the total never overshoots and partial batches are
// never requested.
func (s *Service) ReserveIncrementally(ctx context.Context, code string, batchSize, maxTotal int) models.ReservationResult {
	batch := min(batchSize, maxTotal)
	result := models.ReservationResult{
		RequestedTotal: maxTotal,
		BatchSize:      batch,
		State:          models.ReservationIdle,
	}
	if batch <= 0 {
		result.State = models.ReservationFailed
		result.Detail = "nothing to reserve"
		return result
	}

	result.State = models.ReservationReserving
	log := slog.With("code", code, "batch", batch, "maxTotal", maxTotal)

	for result.State == models.ReservationReserving {
		if result.TotalReserved+batch > maxTotal {
			result.State = models.ReservationConfirmed
			break
		}
		if result.Attempts >= s.cfg.MaxAttempts {
			result.State = models.ReservationLimitReached
			result.Detail = fmt.Sprintf("attempt cap %d reached", s.cfg.MaxAttempts)
			break
		}

		result.Attempts++
		resp, err := s.tracker.Reserve(ctx, code, batch)
		if err != nil {
			result.State = models.ReservationFailed
			result.Detail = err.Error()
			log.Warn("Reserve call failed", "attempt", result.Attempts, "error", err)
			break
		}

		switch resp.Status {
		case models.ReserveReserved:
			result.TotalReserved += batch
			log.Info("Reserved batch", "attempt", result.Attempts, "total", result.TotalReserved)
			if result.TotalReserved+batch > maxTotal {
				result.State = models.ReservationConfirmed
				break
			}
			if err := s.sleep(ctx, s.cfg.Delay); err != nil {
				result.State = models.ReservationConfirmed
				result.Detail = err.Error()
			}
		case models.ReserveClosed:
			result.State = models.ReservationClosed
			result.Detail = resp.Detail
		case models.ReserveError:
			result.State = models.ReservationFailed
			result.Detail = resp.Detail
		default:
			// limit_reached and unknown both stop with what is held.
			result.State = models.ReservationLimitReached
			result.Detail = resp.Detail
		}
	}

	if result.TotalReserved == 0 && result.State == models.ReservationConfirmed {
		result.State = models.ReservationFailed
	}
	result.Success = result.TotalReserved > 0
	log.Info("Reservation finished", "state", result.State, "total", result.TotalReserved, "attempts", result.Attempts)
	return result
}

// VerifyReservation checks the account's reservation list for the deal.
func (s *Service) VerifyReservation(ctx context.Context, code string) models.VerifyResult {
	res, err := s.tracker.Verify(ctx, code)
	if err != nil {
		slog.Warn("Reservation verification failed", "code", code, "error", err)
		return models.VerifyResult{VerificationFailed: true}
	}
	return res
}

// UnreserveDeal releases the deal's reservation.
func (s *Service) UnreserveDeal(ctx context.Context, code string) error {
	if err := s.tracker.Unreserve(ctx, code); err != nil {
		return fmt.Errorf("unreserve %s: %w", code, err)
	}
	slog.Info("Released reservation", "code", code)
	return nil
}
