package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/StockForge/internal/adapter/memory"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/port/messagequeue"
)

var (
	tenantA = uuid.NewString()
	tenantB = uuid.NewString()
	locL1   = "11111111-1111-4111-8111-111111111111"
	locL2   = "22222222-2222-4222-8222-222222222222"
)

func seller(tenantID string) user.Identity {
	return user.Identity{UserID: uuid.NewString(), TenantID: tenantID, Roles: []user.Role{user.RoleSeller}}
}

func customer(tenantID string) user.Identity {
	return user.Identity{UserID: uuid.NewString(), TenantID: tenantID, Roles: []user.Role{user.RoleCustomer}}
}

type fixture struct {
	store        *memory.Store
	ledger       *LedgerService
	reservations *ReservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(2 * time.Second)
	return &fixture{
		store:        store,
		ledger:       NewLedgerService(store, nil, nil),
		reservations: NewReservationService(store, nil, nil, config.Sweeper{BatchSize: 100, Concurrency: 4}),
	}
}

// seed creates the row and restocks it to qty.
func (f *fixture) seed(t *testing.T, tenantID, sku, locationID string, qty int) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.CreateStock(ctx, stock.Key{SKU: sku, LocationID: locationID, TenantID: tenantID}); err != nil {
		t.Fatalf("create stock: %v", err)
	}
	if qty == 0 {
		return
	}
	_, err := f.ledger.AdjustStock(ctx, seller(tenantID), stock.AdjustRequest{
		SKU: sku, LocationID: locationID, Delta: qty, Reason: stock.ReasonRestock,
	})
	if err != nil {
		t.Fatalf("seed restock: %v", err)
	}
}

func (f *fixture) level(t *testing.T, tenantID, sku, locationID string) stock.Level {
	t.Helper()
	lvl, err := f.ledger.GetStock(context.Background(), tenantID, sku, locationID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if lvl.AvailableQty != lvl.QtyOnHand-lvl.ReservedQty {
		t.Fatalf("available %d inconsistent with on hand %d reserved %d", lvl.AvailableQty, lvl.QtyOnHand, lvl.ReservedQty)
	}
	if lvl.ReservedQty < 0 || lvl.ReservedQty > lvl.QtyOnHand {
		t.Fatalf("invariant broken: on hand %d reserved %d", lvl.QtyOnHand, lvl.ReservedQty)
	}
	return *lvl
}

// fakeQueue records published messages.
type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMsg
	fail      bool
	handlers  map[string]messagequeue.Handler
}

type publishedMsg struct {
	subject string
	data    []byte
}

var errQueueDown = errors.New("nats: connection closed")

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errQueueDown
	}
	q.published = append(q.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return !q.fail }

func (q *fakeQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.published))
	for _, m := range q.published {
		out = append(out, m.subject)
	}
	return out
}

// fakeHub records broadcast events.
type fakeHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	tenantID  string
	eventType string
}

func (h *fakeHub) BroadcastEvent(_ context.Context, tenantID, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{tenantID: tenantID, eventType: eventType})
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}

// seedExisting restocks an already provisioned row.
func (f *fixture) seedExisting(t *testing.T, tenantID, sku, locationID string, qty int) {
	t.Helper()
	_, err := f.ledger.AdjustStock(context.Background(), seller(tenantID), stock.AdjustRequest{
		SKU: sku, LocationID: locationID, Delta: qty, Reason: stock.ReasonRestock,
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
}
