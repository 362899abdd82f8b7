package usecase

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"fulfillment-service/app/domain"
	"fulfillment-service/config"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

type inTxKey struct{}

// memStore is an in-memory stand-in for Postgres. WithTransaction holds one global mutex for the
// whole closure and rolls everything back when it returns an error.
type memStore struct {
	mu sync.Mutex

	inventories  map[int64]domain.Inventory
	nextID       int64
	txns         []domain.InventoryTransaction
	reservations []domain.Reservation
	orders       map[uuid.UUID]domain.Order
	history      []domain.OrderStatusHistory
	outbox       []domain.OutboxEvent

	lockErr map[int64]error
	// racedWrite makes the next UpdateStock for a product lose to a writer that committed after the lock was read.
	racedWrite map[int64]bool
}

type memSnapshot struct {
	inventories  map[int64]domain.Inventory
	nextID       int64
	txns         []domain.InventoryTransaction
	reservations []domain.Reservation
	orders       map[uuid.UUID]domain.Order
	history      []domain.OrderStatusHistory
	outbox       []domain.OutboxEvent
}

func newMemStore() *memStore {
	return &memStore{
		inventories: map[int64]domain.Inventory{},
		orders:      map[uuid.UUID]domain.Order{},
		lockErr:     map[int64]error{},
		racedWrite:  map[int64]bool{},
	}
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		inventories:  make(map[int64]domain.Inventory, len(s.inventories)),
		nextID:       s.nextID,
		txns:         append([]domain.InventoryTransaction(nil), s.txns...),
		reservations: append([]domain.Reservation(nil), s.reservations...),
		orders:       make(map[uuid.UUID]domain.Order, len(s.orders)),
		history:      append([]domain.OrderStatusHistory(nil), s.history...),
		outbox:       append([]domain.OutboxEvent(nil), s.outbox...),
	}
	for k, v := range s.inventories {
		snap.inventories[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.inventories = snap.inventories
	s.nextID = snap.nextID
	s.txns = snap.txns
	s.reservations = snap.reservations
	s.orders = snap.orders
	s.history = snap.history
	s.outbox = snap.outbox
}

// guard locks the store for calls made outside a transaction.
func (s *memStore) guard(ctx context.Context) func() {
	if ctx.Value(inTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, true), nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// test inspection helpers, always called outside transactions

func (s *memStore) inventory(productID int64) domain.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventories[productID]
}

func (s *memStore) setInventory(inv domain.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventories[inv.ProductID] = inv
}

func (s *memStore) reservation(id uuid.UUID) domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.ID == id {
			return r
		}
	}
	return domain.Reservation{}
}

func (s *memStore) addReservation(r domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
}

func (s *memStore) liveReserved(productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.reservations {
		if r.ProductID == productID && r.Status == domain.ReservationStatusReserved {
			total += r.Quantity
		}
	}
	return total
}

func (s *memStore) order(id uuid.UUID) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) historyOf(orderID uuid.UUID) []domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var statuses []domain.OrderStatus
	for _, h := range s.history {
		if h.OrderID == orderID {
			statuses = append(statuses, h.Status)
		}
	}
	return statuses
}

func (s *memStore) outboxFor(topic, aggregateID string) []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []domain.OutboxEvent
	for _, e := range s.outbox {
		if e.Topic == topic && (aggregateID == "" || e.AggregateID == aggregateID) {
			events = append(events, e)
		}
	}
	return events
}

func (s *memStore) transactions(inventoryID int64) []domain.InventoryTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txns []domain.InventoryTransaction
	for _, t := range s.txns {
		if t.InventoryID == inventoryID {
			txns = append(txns, t)
		}
	}
	return txns
}

type memInventories struct{ *memStore }

func (s memInventories) Create(ctx context.Context, inventory *domain.Inventory, _ *sql.Tx) error {
	if _, ok := s.inventories[inventory.ProductID]; ok {
		return fmt.Errorf("%w: inventory for product %d", domain.ErrAlreadyExists, inventory.ProductID)
	}
	inventory.ID = s.id()
	inventory.Version = 1
	s.inventories[inventory.ProductID] = *inventory
	return nil
}

func (s memInventories) GetByProductID(ctx context.Context, productID int64) (domain.Inventory, error) {
	defer s.guard(ctx)()
	inv, ok := s.inventories[productID]
	if !ok {
		return domain.Inventory{}, domain.ErrNotFound
	}
	return inv, nil
}

func (s memInventories) LockForUpdate(ctx context.Context, productID int64, _ *sql.Tx) (domain.Inventory, error) {
	if err := s.lockErr[productID]; err != nil {
		return domain.Inventory{}, err
	}
	inv, ok := s.inventories[productID]
	if !ok {
		return domain.Inventory{}, domain.ErrNotFound
	}
	return inv, nil
}

func (s memInventories) UpdateStock(ctx context.Context, inventory *domain.Inventory, _ *sql.Tx) error {
	if s.racedWrite[inventory.ProductID] {
		delete(s.racedWrite, inventory.ProductID)
		raced := s.inventories[inventory.ProductID]
		raced.Version++
		s.inventories[inventory.ProductID] = raced
	}
	current, ok := s.inventories[inventory.ProductID]
	if !ok || current.Version != inventory.Version {
		return domain.ErrVersionMismatch
	}
	if inventory.AvailableStock < 0 || inventory.ReservedStock < 0 {
		return fmt.Errorf("check constraint violated for product %d", inventory.ProductID)
	}
	inventory.Version++
	s.inventories[inventory.ProductID] = *inventory
	return nil
}

type memTransactions struct{ *memStore }

func (s memTransactions) Append(ctx context.Context, txn *domain.InventoryTransaction, _ *sql.Tx) error {
	txn.ID = s.id()
	s.txns = append(s.txns, *txn)
	return nil
}

func (s memTransactions) SumByType(ctx context.Context, inventoryID int64) (map[domain.TransactionType]int64, error) {
	defer s.guard(ctx)()
	sums := map[domain.TransactionType]int64{}
	for _, t := range s.txns {
		if t.InventoryID == inventoryID {
			sums[t.Type] += t.Quantity
		}
	}
	return sums, nil
}

type memReservations struct{ *memStore }

func (s memReservations) Create(ctx context.Context, reservation *domain.Reservation, _ *sql.Tx) error {
	for _, r := range s.reservations {
		if r.OrderID == reservation.OrderID && r.ProductID == reservation.ProductID && r.Status == domain.ReservationStatusReserved {
			return domain.ErrAlreadyExists
		}
	}
	reservation.UpdatedAt = reservation.CreatedAt
	s.reservations = append(s.reservations, *reservation)
	return nil
}

func (s memReservations) GetByID(ctx context.Context, id uuid.UUID, _ *sql.Tx) (domain.Reservation, error) {
	for _, r := range s.reservations {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Reservation{}, domain.ErrNotFound
}

func statusRank(status domain.ReservationStatus) int {
	switch status {
	case domain.ReservationStatusReserved:
		return 0
	case domain.ReservationStatusConfirmed:
		return 1
	}
	return 2
}

func (s memReservations) GetByOrderAndProduct(ctx context.Context, orderID uuid.UUID, productID int64, _ *sql.Tx) (domain.Reservation, error) {
	var best *domain.Reservation
	for i := range s.reservations {
		r := &s.reservations[i]
		if r.OrderID != orderID || r.ProductID != productID {
			continue
		}
		if best == nil || statusRank(r.Status) <= statusRank(best.Status) {
			best = r
		}
	}
	if best == nil {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return *best, nil
}

func (s memReservations) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, _ *sql.Tx) error {
	for i := range s.reservations {
		if s.reservations[i].ID == id {
			s.reservations[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s memReservations) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	defer s.guard(ctx)()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func expiryLess(a, b domain.ExpiryCursor) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
}

func (s memReservations) ListExpired(ctx context.Context, now time.Time, after domain.ExpiryCursor, limit int) ([]domain.Reservation, error) {
	defer s.guard(ctx)()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.Status == domain.ReservationStatusReserved && r.ExpiresAt.Before(now) && expiryLess(after, r.After()) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return expiryLess(out[i].After(), out[j].After()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memReservations) SumReservedByProductID(ctx context.Context, productID int64) (int64, error) {
	defer s.guard(ctx)()
	var total int64
	for _, r := range s.reservations {
		if r.ProductID == productID && r.Status == domain.ReservationStatusReserved {
			total += r.Quantity
		}
	}
	return total, nil
}

type memOrders struct{ *memStore }

func (s memOrders) Create(ctx context.Context, order *domain.Order, _ *sql.Tx) error {
	if _, ok := s.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = *order
	return nil
}

func (s memOrders) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	defer s.guard(ctx)()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (s memOrders) LockForUpdate(ctx context.Context, id uuid.UUID, _ *sql.Tx) (domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (s memOrders) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, _ *sql.Tx) error {
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	order.Status = status
	s.orders[id] = order
	return nil
}

func (s memOrders) AppendHistory(ctx context.Context, history *domain.OrderStatusHistory, _ *sql.Tx) error {
	history.ID = s.id()
	s.history = append(s.history, *history)
	return nil
}

func (s memOrders) ListHistory(ctx context.Context, orderID uuid.UUID) ([]domain.OrderStatusHistory, error) {
	defer s.guard(ctx)()
	var out []domain.OrderStatusHistory
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memOutbox struct{ *memStore }

func (s memOutbox) Create(ctx context.Context, event *domain.OutboxEvent, _ *sql.Tx) error {
	s.outbox = append(s.outbox, *event)
	return nil
}

func (s memOutbox) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	defer s.guard(ctx)()
	var out []domain.OutboxEvent
	for _, e := range s.outbox {
		if e.Status == domain.OutboxStatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s memOutbox) mark(ctx context.Context, id uuid.UUID, status domain.OutboxStatus) error {
	defer s.guard(ctx)()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Attempts++
			s.outbox[i].Status = status
			if status == domain.OutboxStatusPublished {
				now := time.Now()
				s.outbox[i].PublishedAt = &now
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s memOutbox) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, domain.OutboxStatusPublished)
}

func (s memOutbox) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, domain.OutboxStatusPending)
}

func (s memOutbox) MarkParked(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, domain.OutboxStatusParked)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store     *memStore
	clock     *fakeClock
	cfg       *config.Config
	inventory *inventoryUsecase
	orders    *orderUsecase
	sweeper   *sweeperUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cfg := &config.Config{Saga: config.SagaConfig{
		ReservationTTL:    15 * time.Minute,
		SweepInterval:     5 * time.Minute,
		SweepBatchSize:    100,
		OutboxInterval:    time.Second,
		OutboxBatchSize:   100,
		OutboxMaxAttempts: 20,
	}}

	inventory := NewInventoryUsecase(memInventories{store}, memTransactions{store}, memReservations{store}, memOutbox{store}, cfg).(*inventoryUsecase)
	inventory.now = clock.Now
	orders := NewOrderUsecase(memOrders{store}, memReservations{store}, memOutbox{store}, inventory).(*orderUsecase)
	orders.now = clock.Now
	sweeper := NewSweeperUsecase(memReservations{store}, inventory, nil, cfg).(*sweeperUsecase)
	sweeper.now = clock.Now

	return &fixture{store, clock, cfg, inventory, orders, sweeper}
}

func (f *fixture) stock(t *testing.T, productID, quantity int64) domain.Inventory {
	t.Helper()
	inv, err := f.inventory.InitInventory(context.Background(), domain.InventoryCreateRequest{ProductID: productID, InitialStock: quantity})
	if err != nil {
		t.Fatalf("init inventory %d: %v", productID, err)
	}
	return inv
}

// placeOrder records a PENDING order the way an inbound order.created event does.
func (f *fixture) placeOrder(t *testing.T, items ...domain.OrderItem) domain.Order {
	t.Helper()
	evt := domain.OrderCreatedEvent{OrderID: uuid.Must(uuid.NewV4()), UserID: "user-1"}
	for _, item := range items {
		evt.Items = append(evt.Items, domain.OrderItemPayload{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	order, err := f.orders.EnsureOrder(context.Background(), evt)
	if err != nil {
		t.Fatalf("ensure order: %v", err)
	}
	return order
}
