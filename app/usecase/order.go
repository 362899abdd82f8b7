package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"fulfillment-service/app/domain"
	"fulfillment-service/pkg/metrics"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type orderUsecase struct {
	orderRepo        domain.OrderRepository
	reservationRepo  domain.ReservationRepository
	outboxRepo       domain.OutboxRepository
	inventoryUsecase domain.InventoryUsecase
	now              func() time.Time
}

func NewOrderUsecase(
	orderRepo domain.OrderRepository,
	reservationRepo domain.ReservationRepository,
	outboxRepo domain.OutboxRepository,
	inventoryUsecase domain.InventoryUsecase) domain.OrderUsecase {
	return &orderUsecase{orderRepo, reservationRepo, outboxRepo, inventoryUsecase, time.Now}
}

var statusTopics = map[domain.OrderStatus]string{
	domain.OrderStatusReserved:  domain.TopicOrderReserved,
	domain.OrderStatusPaid:      domain.TopicOrderPaid,
	domain.OrderStatusConfirmed: domain.TopicOrderConfirmed,
	domain.OrderStatusFailed:    domain.TopicOrderFailed,
	domain.OrderStatusCancelled: domain.TopicOrderCancelled,
}

func itemPayloads(items []domain.OrderItem) []domain.OrderItemPayload {
	payloads := make([]domain.OrderItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, domain.OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return payloads
}

func (u *orderUsecase) orderNumber(now time.Time) (string, error) {
	suffix, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(suffix.String()[:8])), nil
}

func (u *orderUsecase) newOrder(id uuid.UUID, userID string, items []domain.OrderItem) (domain.Order, error) {
	now := u.now().UTC()
	number, err := u.orderNumber(now)
	if err != nil {
		return domain.Order{}, err
	}

	var total int64
	for _, item := range items {
		total += item.Quantity * item.UnitPrice
	}

	return domain.Order{
		ID:          id,
		OrderNumber: number,
		UserID:      userID,
		Status:      domain.OrderStatusPending,
		TotalAmount: total,
		Items:       items,
		CreatedAt:   now,
	}, nil
}

// insert writes a PENDING order with its first history row.
func (u *orderUsecase) insert(ctx context.Context, tx *sql.Tx, order *domain.Order, notes string) error {
	if err := u.orderRepo.Create(ctx, order, tx); err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] insert", "create", err)
		return err
	}

	err := u.orderRepo.AppendHistory(ctx, &domain.OrderStatusHistory{
		OrderID: order.ID,
		Status:  domain.OrderStatusPending,
		Notes:   notes,
	}, tx)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] insert", "appendHistory", err)
		return err
	}

	return nil
}

func (u *orderUsecase) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err := u.newOrder(id, req.UserID, items)
	if err != nil {
		return domain.Order{}, err
	}

	err = u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := u.insert(ctx, tx, &order, "order created"); err != nil {
			return err
		}

		return enqueue(ctx, u.outboxRepo, tx, domain.TopicOrderCreated, order.ID.String(), domain.OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       itemPayloads(order.Items),
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	slog.InfoContext(ctx, "[orderUsecase] CreateOrder", "orderID", order.ID, "orderNumber", order.OrderNumber)
	return order, nil
}

// EnsureOrder returns the order named by an inbound order.created event, creating it in PENDING if absent.
func (u *orderUsecase) EnsureOrder(ctx context.Context, evt domain.OrderCreatedEvent) (domain.Order, error) {
	order, err := u.orderRepo.GetByID(ctx, evt.OrderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		slog.ErrorContext(ctx, "[orderUsecase] EnsureOrder", "getOrder", err)
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(evt.Items))
	for _, item := range evt.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err = u.newOrder(evt.OrderID, evt.UserID, items)
	if err != nil {
		return domain.Order{}, err
	}
	if evt.TotalAmount > 0 {
		order.TotalAmount = evt.TotalAmount
	}

	err = u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return u.insert(ctx, tx, &order, "order received")
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		return u.orderRepo.GetByID(ctx, evt.OrderID)
	}
	if err != nil {
		return domain.Order{}, err
	}

	slog.InfoContext(ctx, "[orderUsecase] EnsureOrder", "orderID", order.ID, "orderNumber", order.OrderNumber)
	return order, nil
}

// HandleOrderCreated records the order and reserves its items while it is still PENDING. The order is
// read again afterwards: a cancel or failure that landed mid-way released only what existed at the time,
// so anything reserved after it is released here.
func (u *orderUsecase) HandleOrderCreated(ctx context.Context, evt domain.OrderCreatedEvent) error {
	order, err := u.EnsureOrder(ctx, evt)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] HandleOrderCreated", "ensureOrder", err)
		return err
	}
	if order.Status != domain.OrderStatusPending {
		slog.InfoContext(ctx, "[orderUsecase] HandleOrderCreated", "orderID", order.ID, "skip", order.Status)
		return u.compensate(ctx, order)
	}

	reserveErr := u.inventoryUsecase.ReserveOrder(ctx, order.ID, order.Items)

	current, err := u.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] HandleOrderCreated", "getOrder", err)
		return err
	}
	if current.Status != domain.OrderStatusPending {
		slog.InfoContext(ctx, "[orderUsecase] HandleOrderCreated", "orderID", order.ID, "changedDuringReserve", current.Status)
		if err := u.compensate(ctx, current); err != nil {
			return err
		}
	}

	return reserveErr
}

func (u *orderUsecase) GetOrder(ctx context.Context, id uuid.UUID) (domain.OrderDetail, error) {
	order, err := u.orderRepo.GetByID(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] GetOrder", "getOrder", err)
		return domain.OrderDetail{}, err
	}

	history, err := u.orderRepo.ListHistory(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] GetOrder", "listHistory", err)
		return domain.OrderDetail{}, err
	}

	return domain.OrderDetail{Order: order, History: history}, nil
}

// RequestCancel queues an order.cancelled event; the saga applies it when the event is consumed.
func (u *orderUsecase) RequestCancel(ctx context.Context, id uuid.UUID) error {
	order, err := u.orderRepo.GetByID(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] RequestCancel", "getOrder", err)
		return err
	}

	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: order is %s", domain.ErrInvalidRequest, order.Status)
	}

	return u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return enqueue(ctx, u.outboxRepo, tx, domain.TopicOrderCancelled, id.String(), domain.OrderCancelledEvent{OrderID: id})
	})
}

// advance applies each target status in turn inside one transaction, writing a history row and an
// outbound event per step. A step that is not a legal transition ends the chain without error.
// guard may reject the event before anything is written.
func (u *orderUsecase) advance(ctx context.Context, orderID uuid.UUID, notes string, guard func(domain.Order) error, targets ...domain.OrderStatus) (domain.Order, error) {
	var order domain.Order
	var applied []domain.OrderStatus

	err := u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		applied = nil
		order, err = u.orderRepo.LockForUpdate(ctx, orderID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[orderUsecase] advance", "lockForUpdate", err)
			return err
		}

		if guard != nil {
			if err := guard(order); err != nil {
				return err
			}
		}

		for _, target := range targets {
			if order.Status == target {
				continue
			}
			if !domain.CanTransition(order.Status, target) {
				slog.InfoContext(ctx, "[orderUsecase] advance", "orderID", orderID, "from", order.Status, "to", target, "ignored", "illegal transition")
				return nil
			}

			if err := u.orderRepo.UpdateStatus(ctx, orderID, target, tx); err != nil {
				slog.ErrorContext(ctx, "[orderUsecase] advance", "updateStatus", err)
				return err
			}
			err := u.orderRepo.AppendHistory(ctx, &domain.OrderStatusHistory{
				OrderID: orderID,
				Status:  target,
				Notes:   notes,
			}, tx)
			if err != nil {
				slog.ErrorContext(ctx, "[orderUsecase] advance", "appendHistory", err)
				return err
			}

			order.Status = target
			err = enqueue(ctx, u.outboxRepo, tx, statusTopics[target], orderID.String(), domain.OrderStatusEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				Items:       itemPayloads(order.Items),
				Status:      target,
			})
			if err != nil {
				return err
			}
			applied = append(applied, target)
		}

		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	for _, status := range applied {
		metrics.SagaTransitions.WithLabelValues(string(status)).Inc()
	}
	if len(applied) > 0 {
		slog.InfoContext(ctx, "[orderUsecase] advance", "orderID", orderID, "applied", applied, "notes", notes)
	}
	return order, nil
}

// HandleInventoryReserved moves a PENDING order to RESERVED once every product holds live or confirmed
// reservations covering its full ordered quantity.
func (u *orderUsecase) HandleInventoryReserved(ctx context.Context, evt domain.InventoryReservedEvent) error {
	order, err := u.orderRepo.GetByID(ctx, evt.OrderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] HandleInventoryReserved", "getOrder", err)
		return err
	}
	if order.Status != domain.OrderStatusPending {
		return nil
	}

	reservations, err := u.reservationRepo.ListByOrderID(ctx, evt.OrderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] HandleInventoryReserved", "listReservations", err)
		return err
	}

	held := make(map[int64]int64, len(reservations))
	for _, r := range reservations {
		if r.Status == domain.ReservationStatusReserved || r.Status == domain.ReservationStatusConfirmed {
			held[r.ProductID] += r.Quantity
		}
	}
	for _, line := range domain.ReservationLines(order.Items) {
		if held[line.ProductID] < line.Quantity {
			slog.DebugContext(ctx, "[orderUsecase] HandleInventoryReserved", "orderID", evt.OrderID,
				"waitingFor", line.ProductID, "held", held[line.ProductID], "needed", line.Quantity)
			return nil
		}
	}

	_, err = u.advance(ctx, evt.OrderID, "inventory reserved", nil, domain.OrderStatusReserved)
	return err
}

func (u *orderUsecase) HandleReservationFailed(ctx context.Context, evt domain.InventoryReservationFailedEvent) error {
	order, err := u.advance(ctx, evt.OrderID, "reservation failed: "+evt.Reason, nil, domain.OrderStatusFailed)
	if err != nil {
		return err
	}

	return u.compensate(ctx, order)
}

// HandlePaymentCompleted drives RESERVED -> PAID -> CONFIRMED and then confirms the reservations.
// A payment that overtakes the reservation is sent back for redelivery.
func (u *orderUsecase) HandlePaymentCompleted(ctx context.Context, evt domain.PaymentCompletedEvent) error {
	notReady := func(order domain.Order) error {
		if order.Status == domain.OrderStatusPending {
			return fmt.Errorf("%w: order %s is still %s", domain.ErrSagaNotReady, order.ID, order.Status)
		}
		return nil
	}

	order, err := u.advance(ctx, evt.OrderID, "payment completed: "+evt.TransactionID, notReady,
		domain.OrderStatusPaid, domain.OrderStatusConfirmed)
	if err != nil {
		return err
	}

	if order.Status != domain.OrderStatusConfirmed {
		slog.WarnContext(ctx, "[orderUsecase] HandlePaymentCompleted", "orderID", evt.OrderID, "status", order.Status, "ignored", "payment for closed order")
		return nil
	}

	confirmed, err := u.inventoryUsecase.Confirm(ctx, evt.OrderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] HandlePaymentCompleted", "confirm", err)
		return err
	}
	if confirmed == 0 {
		slog.InfoContext(ctx, "[orderUsecase] HandlePaymentCompleted", "orderID", evt.OrderID, "confirmed", 0)
	}

	return nil
}

func (u *orderUsecase) HandlePaymentFailed(ctx context.Context, evt domain.PaymentFailedEvent) error {
	order, err := u.advance(ctx, evt.OrderID, "payment failed: "+evt.Reason, nil, domain.OrderStatusFailed)
	if err != nil {
		return err
	}

	return u.compensate(ctx, order)
}

func (u *orderUsecase) HandleOrderCancelled(ctx context.Context, evt domain.OrderCancelledEvent) error {
	order, err := u.advance(ctx, evt.OrderID, "order cancelled", nil, domain.OrderStatusCancelled)
	if err != nil {
		return err
	}

	return u.compensate(ctx, order)
}

// compensate releases the order's live reservations when it ended FAILED or CANCELLED.
func (u *orderUsecase) compensate(ctx context.Context, order domain.Order) error {
	if order.Status != domain.OrderStatusFailed && order.Status != domain.OrderStatusCancelled {
		return nil
	}

	if _, err := u.inventoryUsecase.Release(ctx, order.ID); err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] compensate", "orderID", order.ID, "release", err)
		return err
	}
	return nil
}
