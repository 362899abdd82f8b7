package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"fulfillment-service/app/domain"
	"fulfillment-service/config"
	"fulfillment-service/pkg/ctxutil"
	"fulfillment-service/pkg/metrics"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
)

type inventoryUsecase struct {
	inventoryRepo   domain.InventoryRepository
	txnRepo         domain.InventoryTransactionRepository
	reservationRepo domain.ReservationRepository
	outboxRepo      domain.OutboxRepository
	cfg             *config.Config
	now             func() time.Time
}

func NewInventoryUsecase(
	inventoryRepo domain.InventoryRepository,
	txnRepo domain.InventoryTransactionRepository,
	reservationRepo domain.ReservationRepository,
	outboxRepo domain.OutboxRepository,
	cfg *config.Config) domain.InventoryUsecase {
	return &inventoryUsecase{inventoryRepo, txnRepo, reservationRepo, outboxRepo, cfg, time.Now}
}

func productKey(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

func (u *inventoryUsecase) stockUpdated(ctx context.Context, tx *sql.Tx, inventory domain.Inventory) error {
	return enqueue(ctx, u.outboxRepo, tx, domain.TopicStockUpdated, productKey(inventory.ProductID), domain.StockUpdatedEvent{
		ProductID:         inventory.ProductID,
		NewAvailableStock: inventory.AvailableStock,
	})
}

func (u *inventoryUsecase) InitInventory(ctx context.Context, req domain.InventoryCreateRequest) (domain.Inventory, error) {
	inventory := domain.Inventory{
		ProductID:      req.ProductID,
		AvailableStock: req.InitialStock,
	}

	err := u.inventoryRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := u.inventoryRepo.Create(ctx, &inventory, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] InitInventory", "create", err)
			return err
		}

		if req.InitialStock > 0 {
			err := u.txnRepo.Append(ctx, &domain.InventoryTransaction{
				InventoryID: inventory.ID,
				Type:        domain.TransactionTypeImport,
				Quantity:    req.InitialStock,
				ReferenceID: "init",
				Actor:       ctxutil.GetActor(ctx),
			}, tx)
			if err != nil {
				slog.ErrorContext(ctx, "[inventoryUsecase] InitInventory", "appendTransaction", err)
				return err
			}
		}

		return u.stockUpdated(ctx, tx, inventory)
	})
	if err != nil {
		return domain.Inventory{}, err
	}

	slog.InfoContext(ctx, "[inventoryUsecase] InitInventory", "productID", req.ProductID, "initialStock", req.InitialStock)
	return inventory, nil
}

func (u *inventoryUsecase) GetByProductID(ctx context.Context, productID int64) (domain.Inventory, error) {
	inventory, err := u.inventoryRepo.GetByProductID(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] GetByProductID", "getInventory", err)
		return domain.Inventory{}, err
	}
	return inventory, nil
}

// Reserve holds quantity of one product for an order. Rejections (unknown product, insufficient
// stock, closed reservation) commit an inventory.reservation.failed event and return the rejection.
func (u *inventoryUsecase) Reserve(ctx context.Context, req domain.ReserveRequest) (domain.ReserveResult, error) {
	var result domain.ReserveResult
	var rejection error
	var rejectionReason string

	rejectWith := func(ctx context.Context, tx *sql.Tx, err error, reason string) error {
		rejection = err
		rejectionReason = reason
		return enqueue(ctx, u.outboxRepo, tx, domain.TopicInventoryReservationFailed, req.OrderID.String(), domain.InventoryReservationFailedEvent{
			OrderID:   req.OrderID,
			ProductID: req.ProductID,
			Reason:    reason,
		})
	}

	err := u.inventoryRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		inventory, err := u.inventoryRepo.LockForUpdate(ctx, req.ProductID, tx)
		if errors.Is(err, domain.ErrNotFound) {
			return rejectWith(ctx, tx, fmt.Errorf("%w: no inventory for product %d", domain.ErrNotFound, req.ProductID), "product not stocked")
		}
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] Reserve", "lockForUpdate", err)
			return err
		}

		existing, err := u.reservationRepo.GetByOrderAndProduct(ctx, req.OrderID, req.ProductID, tx)
		switch {
		case err == nil:
			if existing.Status == domain.ReservationStatusReleased {
				return rejectWith(ctx, tx, fmt.Errorf("%w: order %s product %d", domain.ErrReservationClosed, req.OrderID, req.ProductID), "reservation already released")
			}
			result = domain.ReserveResult{
				Reserved:      true,
				ReservationID: existing.ID,
				ExpiresAt:     existing.ExpiresAt,
				Replayed:      true,
			}
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			slog.ErrorContext(ctx, "[inventoryUsecase] Reserve", "getReservation", err)
			return err
		}

		if inventory.AvailableStock < req.Quantity {
			return rejectWith(ctx, tx, fmt.Errorf("%w: product %d has %d available, %d requested",
				domain.ErrInsufficientStock, req.ProductID, inventory.AvailableStock, req.Quantity), "insufficient stock")
		}

		inventory.AvailableStock -= req.Quantity
		inventory.ReservedStock += req.Quantity
		if err := u.inventoryRepo.UpdateStock(ctx, &inventory, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] Reserve", "updateStock", err)
			return err
		}

		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		now := u.now().UTC()
		reservation := domain.Reservation{
			ID:        id,
			ProductID: req.ProductID,
			OrderID:   req.OrderID,
			Quantity:  req.Quantity,
			Status:    domain.ReservationStatusReserved,
			ExpiresAt: now.Add(u.cfg.Saga.ReservationTTL),
			CreatedAt: now,
		}
		if err := u.reservationRepo.Create(ctx, &reservation, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] Reserve", "createReservation", err)
			return err
		}

		err = u.txnRepo.Append(ctx, &domain.InventoryTransaction{
			InventoryID: inventory.ID,
			Type:        domain.TransactionTypeReserve,
			Quantity:    -req.Quantity,
			ReferenceID: reservation.ID.String(),
			Actor:       ctxutil.GetActor(ctx),
		}, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] Reserve", "appendTransaction", err)
			return err
		}

		err = enqueue(ctx, u.outboxRepo, tx, domain.TopicInventoryReserved, req.OrderID.String(), domain.InventoryReservedEvent{
			OrderID:   req.OrderID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			return err
		}
		if err := u.stockUpdated(ctx, tx, inventory); err != nil {
			return err
		}

		result = domain.ReserveResult{
			Reserved:      true,
			ReservationID: reservation.ID,
			ExpiresAt:     reservation.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		metrics.Reservations.WithLabelValues("error").Inc()
		return domain.ReserveResult{}, err
	}

	if rejection != nil {
		label := "insufficient"
		switch {
		case errors.Is(rejection, domain.ErrReservationClosed):
			label = "closed"
		case errors.Is(rejection, domain.ErrNotFound):
			label = "unknown_product"
		}
		metrics.Reservations.WithLabelValues(label).Inc()
		slog.InfoContext(ctx, "[inventoryUsecase] Reserve", "orderID", req.OrderID, "productID", req.ProductID, "rejected", rejection)
		return domain.ReserveResult{Reserved: false, Reason: rejectionReason}, rejection
	}

	if result.Replayed {
		metrics.Reservations.WithLabelValues("replayed").Inc()
	} else {
		metrics.Reservations.WithLabelValues("reserved").Inc()
	}
	slog.InfoContext(ctx, "[inventoryUsecase] Reserve", "orderID", req.OrderID, "productID", req.ProductID,
		"quantity", req.Quantity, "reservationID", result.ReservationID, "replayed", result.Replayed)
	return result, nil
}

// ReserveOrder reserves every product of the order, once per product for the summed quantity.
// A business rejection releases what was already reserved for the order; infrastructure errors
// are returned as-is so redelivery can resume.
func (u *inventoryUsecase) ReserveOrder(ctx context.Context, orderID uuid.UUID, items []domain.OrderItem) error {
	for _, item := range domain.ReservationLines(items) {
		_, err := u.Reserve(ctx, domain.ReserveRequest{
			ProductID: item.ProductID,
			OrderID:   orderID,
			Quantity:  item.Quantity,
		})
		if err == nil {
			continue
		}

		if !domain.IsReservationRejection(err) {
			slog.ErrorContext(ctx, "[inventoryUsecase] ReserveOrder", "orderID", orderID, "reserve", err)
			return err
		}

		released, relErr := u.Release(ctx, orderID)
		if relErr != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] ReserveOrder", "orderID", orderID, "compensate", relErr)
			return relErr
		}
		slog.InfoContext(ctx, "[inventoryUsecase] ReserveOrder", "orderID", orderID, "rejected", err, "released", released)
		return err
	}

	return nil
}

type settleOp string

const (
	settleConfirm settleOp = "confirm"
	settleRelease settleOp = "release"
)

// settle moves one reservation out of RESERVED under its product lock.
// It reports false when the reservation was already terminal.
func (u *inventoryUsecase) settle(ctx context.Context, reservationID uuid.UUID, op settleOp) (bool, error) {
	settled := false

	err := u.inventoryRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reservation, err := u.reservationRepo.GetByID(ctx, reservationID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "getReservation", err)
			return err
		}

		inventory, err := u.inventoryRepo.LockForUpdate(ctx, reservation.ProductID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "lockForUpdate", err)
			return err
		}

		// re-read under the product lock
		reservation, err = u.reservationRepo.GetByID(ctx, reservationID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "getReservation", err)
			return err
		}
		if reservation.Status != domain.ReservationStatusReserved {
			return nil
		}

		if inventory.ReservedStock < reservation.Quantity {
			return fmt.Errorf("%w: product %d reserved %d below reservation %s quantity %d",
				domain.ErrInvariantViolation, inventory.ProductID, inventory.ReservedStock, reservation.ID, reservation.Quantity)
		}

		txn := domain.InventoryTransaction{
			InventoryID: inventory.ID,
			ReferenceID: reservation.ID.String(),
			Actor:       ctxutil.GetActor(ctx),
		}
		status := domain.ReservationStatusConfirmed
		inventory.ReservedStock -= reservation.Quantity
		if op == settleRelease {
			inventory.AvailableStock += reservation.Quantity
			status = domain.ReservationStatusReleased
			txn.Type = domain.TransactionTypeRelease
			txn.Quantity = reservation.Quantity
		} else {
			txn.Type = domain.TransactionTypeConfirm
			txn.Quantity = -reservation.Quantity
		}

		if err := u.inventoryRepo.UpdateStock(ctx, &inventory, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "updateStock", err)
			return err
		}
		if err := u.reservationRepo.UpdateStatus(ctx, reservation.ID, status, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "updateReservation", err)
			return err
		}
		if err := u.txnRepo.Append(ctx, &txn, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "appendTransaction", err)
			return err
		}
		if op == settleRelease {
			if err := u.stockUpdated(ctx, tx, inventory); err != nil {
				return err
			}
		}

		settled = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			slog.ErrorContext(ctx, "[inventoryUsecase] settle", "reservationID", reservationID, "op", op, "reconcile", "manual", "error", err)
		}
		return false, err
	}

	return settled, nil
}

func (u *inventoryUsecase) settleOrder(ctx context.Context, orderID uuid.UUID, op settleOp) (int, error) {
	reservations, err := u.reservationRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] settleOrder", "listReservations", err)
		return 0, err
	}

	count := 0
	for _, reservation := range reservations {
		if reservation.Status != domain.ReservationStatusReserved {
			continue
		}

		settled, err := u.settle(ctx, reservation.ID, op)
		if err != nil {
			return count, err
		}
		if settled {
			count++
			metrics.LedgerOperations.WithLabelValues(string(op)).Inc()
		}
	}

	slog.InfoContext(ctx, "[inventoryUsecase] settleOrder", "orderID", orderID, "op", op, "settled", count)
	return count, nil
}

// Confirm turns every live reservation of the order into a permanent deduction.
func (u *inventoryUsecase) Confirm(ctx context.Context, orderID uuid.UUID) (int, error) {
	return u.settleOrder(ctx, orderID, settleConfirm)
}

// Release returns every live reservation of the order to available stock.
func (u *inventoryUsecase) Release(ctx context.Context, orderID uuid.UUID) (int, error) {
	return u.settleOrder(ctx, orderID, settleRelease)
}

func (u *inventoryUsecase) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	return u.settle(ctx, reservationID, settleRelease)
}

func (u *inventoryUsecase) Restock(ctx context.Context, productID int64, req domain.RestockRequest) (domain.Inventory, error) {
	return u.applyDelta(ctx, "Restock", productID, domain.TransactionTypeImport, req.Quantity, "restock", req.Actor)
}

func (u *inventoryUsecase) Adjust(ctx context.Context, productID int64, req domain.AdjustRequest) (domain.Inventory, error) {
	return u.applyDelta(ctx, "Adjust", productID, domain.TransactionTypeAdjust, req.Delta, req.Reason, req.Actor)
}

func (u *inventoryUsecase) applyDelta(ctx context.Context, method string, productID int64, txnType domain.TransactionType, delta int64, reference, actor string) (domain.Inventory, error) {
	var inventory domain.Inventory

	err := u.inventoryRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		inventory, err = u.inventoryRepo.LockForUpdate(ctx, productID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] "+method, "lockForUpdate", err)
			return err
		}

		if inventory.AvailableStock+delta < 0 {
			return fmt.Errorf("%w: adjustment %d exceeds available stock %d", domain.ErrInvalidRequest, delta, inventory.AvailableStock)
		}

		inventory.AvailableStock += delta
		if err := u.inventoryRepo.UpdateStock(ctx, &inventory, tx); err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] "+method, "updateStock", err)
			return err
		}

		err = u.txnRepo.Append(ctx, &domain.InventoryTransaction{
			InventoryID: inventory.ID,
			Type:        txnType,
			Quantity:    delta,
			ReferenceID: reference,
			Actor:       actor,
		}, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[inventoryUsecase] "+method, "appendTransaction", err)
			return err
		}

		return u.stockUpdated(ctx, tx, inventory)
	})
	if err != nil {
		return domain.Inventory{}, err
	}

	slog.InfoContext(ctx, "[inventoryUsecase] "+method, "productID", productID, "delta", delta, "actor", actor, "available", inventory.AvailableStock)
	return inventory, nil
}

// Reconcile replays the transaction log and compares it with the counters and live reservations.
func (u *inventoryUsecase) Reconcile(ctx context.Context, productID int64) (domain.ReconcileReport, error) {
	inventory, err := u.inventoryRepo.GetByProductID(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] Reconcile", "getInventory", err)
		return domain.ReconcileReport{}, err
	}

	sums, err := u.txnRepo.SumByType(ctx, inventory.ID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] Reconcile", "sumByType", err)
		return domain.ReconcileReport{}, err
	}

	reserved, err := u.reservationRepo.SumReservedByProductID(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] Reconcile", "sumReserved", err)
		return domain.ReconcileReport{}, err
	}

	report := domain.ReconcileReport{
		ProductID:      productID,
		AvailableStock: inventory.AvailableStock,
		ReservedStock:  inventory.ReservedStock,
		LedgerAvailable: sums[domain.TransactionTypeImport] + sums[domain.TransactionTypeAdjust] +
			sums[domain.TransactionTypeReserve] + sums[domain.TransactionTypeRelease],
		LedgerReserved: -sums[domain.TransactionTypeReserve] - sums[domain.TransactionTypeRelease] +
			sums[domain.TransactionTypeConfirm],
		ReservedByReservations: reserved,
	}
	report.Consistent = report.LedgerAvailable == report.AvailableStock &&
		report.LedgerReserved == report.ReservedStock &&
		report.ReservedByReservations == report.ReservedStock

	if !report.Consistent {
		slog.ErrorContext(ctx, "[inventoryUsecase] Reconcile", "productID", productID, "report", report, "reconcile", "manual")
	}

	return report, nil
}

func (u *inventoryUsecase) ListReservationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	reservations, err := u.reservationRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryUsecase] ListReservationsByOrderID", "listReservations", err)
		return nil, err
	}
	return reservations, nil
}
