package usecase

import (
	"context"
	"fulfillment-service/app/domain"
	"fulfillment-service/config"
	"fulfillment-service/pkg/metrics"
	"log/slog"
	"time"
)

const sweeperLockKey = "fulfillment:sweeper"

type sweeperUsecase struct {
	reservationRepo  domain.ReservationRepository
	inventoryUsecase domain.InventoryUsecase
	locker           domain.Locker
	interval         time.Duration
	batchSize        int
	now              func() time.Time
}

// NewSweeperUsecase builds the expiry sweeper. locker may be nil, in which case every instance sweeps.
func NewSweeperUsecase(
	reservationRepo domain.ReservationRepository,
	inventoryUsecase domain.InventoryUsecase,
	locker domain.Locker,
	cfg *config.Config) domain.SweeperUsecase {
	return &sweeperUsecase{
		reservationRepo:  reservationRepo,
		inventoryUsecase: inventoryUsecase,
		locker:           locker,
		interval:         cfg.Saga.SweepInterval,
		batchSize:        cfg.Saga.SweepBatchSize,
		now:              time.Now,
	}
}

func (s *sweeperUsecase) Start(ctx context.Context) {
	slog.InfoContext(ctx, "[sweeperUsecase] Start", "interval", s.interval, "batchSize", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "[sweeperUsecase] Start", "sweep", err)
			}
		case <-ctx.Done():
			slog.InfoContext(ctx, "[sweeperUsecase] Start", "stopped", ctx.Err())
			return
		}
	}
}

// Sweep releases every reservation that had expired when the cycle began, one batch at a time.
// Each reservation is handled on its own; a failure is counted, skipped by the cursor and left for the next cycle.
func (s *sweeperUsecase) Sweep(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult

	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx, sweeperLockKey, s.interval)
		if err != nil {
			return result, err
		}
		if !acquired {
			slog.InfoContext(ctx, "[sweeperUsecase] Sweep", "skipped", "lock held by another instance")
			return result, nil
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	now := s.now().UTC()
	var cursor domain.ExpiryCursor
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		expired, err := s.reservationRepo.ListExpired(ctx, now, cursor, s.batchSize)
		if err != nil {
			slog.ErrorContext(ctx, "[sweeperUsecase] Sweep", "listExpired", err)
			return result, err
		}
		result.Scanned += len(expired)

		for _, reservation := range expired {
			s.release(ctx, reservation, &result)
		}

		if len(expired) < s.batchSize {
			break
		}
		cursor = expired[len(expired)-1].After()
	}

	if result.Scanned > 0 {
		slog.InfoContext(ctx, "[sweeperUsecase] Sweep", "scanned", result.Scanned, "released", result.Released,
			"skipped", result.Skipped, "failed", result.Failed)
	}
	return result, nil
}

func (s *sweeperUsecase) release(ctx context.Context, reservation domain.Reservation, result *domain.SweepResult) {
	released, err := s.inventoryUsecase.ReleaseReservation(ctx, reservation.ID)
	switch {
	case err != nil:
		result.Failed++
		metrics.SweeperRuns.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "[sweeperUsecase] Sweep", "reservationID", reservation.ID, "release", err)
	case released:
		result.Released++
		metrics.SweeperRuns.WithLabelValues("released").Inc()
		metrics.LedgerOperations.WithLabelValues("sweep").Inc()
	default:
		result.Skipped++
		metrics.SweeperRuns.WithLabelValues("skipped").Inc()
	}
}
