package mocks

import (
	"context"
	"fulfillment-service/app/domain"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/mock"
)

type MockInventoryUsecase struct {
	mock.Mock
}

type MockOrderUsecase struct {
	mock.Mock
}

type MockSweeperUsecase struct {
	mock.Mock
}

func (m *MockInventoryUsecase) InitInventory(ctx context.Context, req domain.InventoryCreateRequest) (domain.Inventory, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Inventory), args.Error(1)
}

func (m *MockInventoryUsecase) GetByProductID(ctx context.Context, productID int64) (domain.Inventory, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.Inventory), args.Error(1)
}

func (m *MockInventoryUsecase) Reserve(ctx context.Context, req domain.ReserveRequest) (domain.ReserveResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ReserveResult), args.Error(1)
}

func (m *MockInventoryUsecase) ReserveOrder(ctx context.Context, orderID uuid.UUID, items []domain.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockInventoryUsecase) Confirm(ctx context.Context, orderID uuid.UUID) (int, error) {
	args := m.Called(ctx, orderID)
	return args.Int(0), args.Error(1)
}

func (m *MockInventoryUsecase) Release(ctx context.Context, orderID uuid.UUID) (int, error) {
	args := m.Called(ctx, orderID)
	return args.Int(0), args.Error(1)
}

func (m *MockInventoryUsecase) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	args := m.Called(ctx, reservationID)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryUsecase) Restock(ctx context.Context, productID int64, req domain.RestockRequest) (domain.Inventory, error) {
	args := m.Called(ctx, productID, req)
	return args.Get(0).(domain.Inventory), args.Error(1)
}

func (m *MockInventoryUsecase) Adjust(ctx context.Context, productID int64, req domain.AdjustRequest) (domain.Inventory, error) {
	args := m.Called(ctx, productID, req)
	return args.Get(0).(domain.Inventory), args.Error(1)
}

func (m *MockInventoryUsecase) Reconcile(ctx context.Context, productID int64) (domain.ReconcileReport, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.ReconcileReport), args.Error(1)
}

func (m *MockInventoryUsecase) ListReservationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	args := m.Called(ctx, orderID)
	reservations, _ := args.Get(0).([]domain.Reservation)
	return reservations, args.Error(1)
}

func (m *MockOrderUsecase) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *MockOrderUsecase) HandleOrderCreated(ctx context.Context, evt domain.OrderCreatedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOrderUsecase) GetOrder(ctx context.Context, id uuid.UUID) (domain.OrderDetail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.OrderDetail), args.Error(1)
}

func (m *MockOrderUsecase) RequestCancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOrderUsecase) HandleInventoryReserved(ctx context.Context, evt domain.InventoryReservedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOrderUsecase) HandleReservationFailed(ctx context.Context, evt domain.InventoryReservationFailedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOrderUsecase) HandlePaymentCompleted(ctx context.Context, evt domain.PaymentCompletedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOrderUsecase) HandlePaymentFailed(ctx context.Context, evt domain.PaymentFailedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOrderUsecase) HandleOrderCancelled(ctx context.Context, evt domain.OrderCancelledEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockSweeperUsecase) Sweep(ctx context.Context) (domain.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SweepResult), args.Error(1)
}

func (m *MockSweeperUsecase) Start(ctx context.Context) {
	m.Called(ctx)
}
