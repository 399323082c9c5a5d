package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

func reserveOne(t *testing.T, f *fixture, tenantID, orderID, sku, loc string, qty int) {
	t.Helper()
	_, err := f.reservations.Reserve(context.Background(), customer(tenantID), reservation.ReserveRequest{
		OrderID: orderID,
		Items:   []reservation.Item{{SKU: sku, LocationID: loc, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
}

func TestReserveHoldsStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	orderID := uuid.NewString()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.reservations.now = func() time.Time { return t0 }

	created, err := f.reservations.Reserve(context.Background(), customer(tenantA), reservation.ReserveRequest{
		OrderID: orderID,
		Items:   []reservation.Item{{SKU: "SKU1", LocationID: locL1, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	lvl := f.level(t, tenantA, "SKU1", locL1)
	if lvl.ReservedQty != 4 || lvl.AvailableQty != 6 || lvl.QtyOnHand != 10 {
		t.Errorf("expected 10/4/6, got %d/%d/%d", lvl.QtyOnHand, lvl.ReservedQty, lvl.AvailableQty)
	}

	if len(created) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(created))
	}
	r := created[0]
	if r.OrderID != orderID || r.SKU != "SKU1" || r.LocationID != locL1 || r.Quantity != 4 || r.Status != reservation.StatusPending {
		t.Errorf("unexpected reservation %+v", r)
	}
	if !r.ExpiresAt.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("expected expiry %s, got %s", t0.Add(15*time.Minute), r.ExpiresAt)
	}

	listed, err := f.reservations.ListReservations(context.Background(), tenantA, orderID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected 1 listed reservation, got %d (%v)", len(listed), err)
	}

	// Reserve does not touch the audit trail.
	adjs, _ := f.ledger.ListAdjustments(context.Background(), tenantA, "SKU1", locL1, 0)
	if len(adjs) != 1 {
		t.Errorf("expected only the seed adjustment, got %d", len(adjs))
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	f.seed(t, tenantA, "SKU2", locL1, 2)
	orderID := uuid.NewString()

	_, err := f.reservations.Reserve(context.Background(), customer(tenantA), reservation.ReserveRequest{
		OrderID: orderID,
		Items: []reservation.Item{
			{SKU: "SKU1", LocationID: locL1, Quantity: 5},
			{SKU: "SKU2", LocationID: locL1, Quantity: 3},
		},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 0 {
		t.Errorf("expected SKU1 reserved 0 after rollback, got %d", lvl.ReservedQty)
	}
	if lvl := f.level(t, tenantA, "SKU2", locL1); lvl.ReservedQty != 0 {
		t.Errorf("expected SKU2 reserved 0 after rollback, got %d", lvl.ReservedQty)
	}
	listed, _ := f.reservations.ListReservations(context.Background(), tenantA, orderID)
	if len(listed) != 0 {
		t.Errorf("expected no reservations after rollback, got %d", len(listed))
	}
}

func TestReserveMissingRowIsInsufficient(t *testing.T) {
	f := newFixture(t)
	_, err := f.reservations.Reserve(context.Background(), customer(tenantA), reservation.ReserveRequest{
		OrderID: uuid.NewString(),
		Items:   []reservation.Item{{SKU: "GHOST", LocationID: locL1, Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReserveMergesRepeatedLines(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)

	created, err := f.reservations.Reserve(context.Background(), customer(tenantA), reservation.ReserveRequest{
		OrderID: uuid.NewString(),
		Items: []reservation.Item{
			{SKU: "SKU1", LocationID: locL1, Quantity: 3},
			{SKU: "SKU1", LocationID: locL1, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(created) != 1 || created[0].Quantity != 7 {
		t.Fatalf("expected one merged line of 7, got %+v", created)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 7 {
		t.Errorf("expected reserved 7, got %d", lvl.ReservedQty)
	}
}

func TestReleaseCancelsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	f.seed(t, tenantA, "SKU2", locL2, 10)
	orderID := uuid.NewString()
	ctx := context.Background()

	if _, err := f.reservations.Reserve(ctx, customer(tenantA), reservation.ReserveRequest{
		OrderID: orderID,
		Items: []reservation.Item{
			{SKU: "SKU1", LocationID: locL1, Quantity: 4},
			{SKU: "SKU2", LocationID: locL2, Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	for i := range 2 {
		if err := f.reservations.Release(ctx, customer(tenantA), orderID); err != nil {
			t.Fatalf("release #%d: %v", i+1, err)
		}
		if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 0 || lvl.AvailableQty != 10 {
			t.Errorf("release #%d: expected SKU1 reserved 0 available 10, got %d/%d", i+1, lvl.ReservedQty, lvl.AvailableQty)
		}
		if lvl := f.level(t, tenantA, "SKU2", locL2); lvl.ReservedQty != 0 {
			t.Errorf("release #%d: expected SKU2 reserved 0, got %d", i+1, lvl.ReservedQty)
		}
	}

	listed, _ := f.reservations.ListReservations(ctx, tenantA, orderID)
	for _, r := range listed {
		if r.Status != reservation.StatusCancelled {
			t.Errorf("expected CANCELLED, got %s", r.Status)
		}
	}
}

func TestReleaseUnknownOrderSucceeds(t *testing.T) {
	f := newFixture(t)
	if err := f.reservations.Release(context.Background(), customer(tenantA), uuid.NewString()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := f.reservations.Release(context.Background(), customer(tenantA), "bad"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for malformed order id, got %v", err)
	}
}

func TestReleaseIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	orderID := uuid.NewString()
	reserveOne(t, f, tenantA, orderID, "SKU1", locL1, 4)

	if err := f.reservations.Release(context.Background(), customer(tenantB), orderID); err != nil {
		t.Fatalf("release from other tenant: %v", err)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 4 {
		t.Errorf("expected reservation untouched by other tenant, reserved %d", lvl.ReservedQty)
	}
}

func TestConfirmConsumesHeldQuantity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	orderID := uuid.NewString()
	reserveOne(t, f, tenantA, orderID, "SKU1", locL1, 4)
	ctx := context.Background()
	actor := seller(tenantA)

	if err := f.reservations.Confirm(ctx, actor, orderID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	lvl := f.level(t, tenantA, "SKU1", locL1)
	if lvl.QtyOnHand != 6 || lvl.ReservedQty != 0 || lvl.AvailableQty != 6 {
		t.Errorf("expected 6/0/6, got %d/%d/%d", lvl.QtyOnHand, lvl.ReservedQty, lvl.AvailableQty)
	}

	adjs, _ := f.ledger.ListAdjustments(ctx, tenantA, "SKU1", locL1, 0)
	if len(adjs) != 2 {
		t.Fatalf("expected seed plus confirm adjustment, got %d", len(adjs))
	}
	if a := adjs[0]; a.Delta != -4 || a.Reason != stock.ReasonOrderConfirm || a.OrderID != orderID || a.UserID != actor.UserID {
		t.Errorf("unexpected confirm adjustment %+v", a)
	}

	// Confirming again and releasing afterwards are no-ops.
	if err := f.reservations.Confirm(ctx, actor, orderID); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if err := f.reservations.Release(ctx, actor, orderID); err != nil {
		t.Fatalf("release after confirm: %v", err)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.QtyOnHand != 6 || lvl.ReservedQty != 0 {
		t.Errorf("expected 6/0 unchanged, got %d/%d", lvl.QtyOnHand, lvl.ReservedQty)
	}
	listed, _ := f.reservations.ListReservations(ctx, tenantA, orderID)
	if len(listed) != 1 || listed[0].Status != reservation.StatusConfirmed {
		t.Errorf("expected one CONFIRMED reservation, got %+v", listed)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	orderID := uuid.NewString()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	f.reservations.now = func() time.Time { return t0 }
	reserveOne(t, f, tenantA, orderID, "SKU1", locL1, 4)

	// Not yet due.
	f.reservations.now = func() time.Time { return t0.Add(14 * time.Minute) }
	if n, err := f.reservations.ExpireOverdue(ctx); err != nil || n != 0 {
		t.Fatalf("expected 0 expired before deadline, got %d (%v)", n, err)
	}

	f.reservations.now = func() time.Time { return t0.Add(16 * time.Minute) }
	n, err := f.reservations.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 0 || lvl.AvailableQty != 10 {
		t.Errorf("expected reserved 0 available 10, got %d/%d", lvl.ReservedQty, lvl.AvailableQty)
	}
	listed, _ := f.reservations.ListReservations(ctx, tenantA, orderID)
	if len(listed) != 1 || listed[0].Status != reservation.StatusExpired {
		t.Fatalf("expected EXPIRED, got %+v", listed)
	}

	// A second sweep is a no-op.
	f.reservations.now = func() time.Time { return t0.Add(17 * time.Minute) }
	if n, err := f.reservations.ExpireOverdue(ctx); err != nil || n != 0 {
		t.Errorf("expected second sweep to expire nothing, got %d (%v)", n, err)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 0 {
		t.Errorf("expected reserved to stay 0, got %d", lvl.ReservedQty)
	}

	// Releasing an expired order changes nothing.
	if err := f.reservations.Release(ctx, customer(tenantA), orderID); err != nil {
		t.Fatalf("release: %v", err)
	}
	listed, _ = f.reservations.ListReservations(ctx, tenantA, orderID)
	if listed[0].Status != reservation.StatusExpired {
		t.Errorf("expected status to stay EXPIRED, got %s", listed[0].Status)
	}
}

func TestExpireOverdueWorksThroughBatches(t *testing.T) {
	f := newFixture(t)
	f.reservations = NewReservationService(f.store, nil, nil, config.Sweeper{BatchSize: 2, Concurrency: 2})
	f.seed(t, tenantA, "SKU1", locL1, 100)
	f.seed(t, tenantB, "SKU1", locL1, 100)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.reservations.now = func() time.Time { return t0 }

	for range 3 {
		reserveOne(t, f, tenantA, uuid.NewString(), "SKU1", locL1, 5)
		reserveOne(t, f, tenantB, uuid.NewString(), "SKU1", locL1, 5)
	}

	f.reservations.now = func() time.Time { return t0.Add(time.Hour) }
	n, err := f.reservations.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 expired across batches, got %d", n)
	}
	for _, tenant := range []string{tenantA, tenantB} {
		if lvl := f.level(t, tenant, "SKU1", locL1); lvl.ReservedQty != 0 {
			t.Errorf("tenant %s: expected reserved 0, got %d", tenant, lvl.ReservedQty)
		}
	}
}

func TestExpireAndReleaseRace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 100)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.reservations.now = func() time.Time { return t0 }

	orders := make([]string, 20)
	for i := range orders {
		orders[i] = uuid.NewString()
		reserveOne(t, f, tenantA, orders[i], "SKU1", locL1, 2)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 40 {
		t.Fatalf("expected reserved 40, got %d", lvl.ReservedQty)
	}

	f.reservations.now = func() time.Time { return t0.Add(time.Hour) }
	ctx := context.Background()
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.reservations.ExpireOverdue(ctx); err != nil {
				t.Errorf("expire: %v", err)
			}
		}()
	}
	for _, o := range orders {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			if err := f.reservations.Release(ctx, customer(tenantA), orderID); err != nil {
				t.Errorf("release: %v", err)
			}
		}(o)
	}
	wg.Wait()

	// Each hold was returned exactly once, whichever path won.
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 0 || lvl.QtyOnHand != 100 {
		t.Errorf("expected 100/0, got %d/%d", lvl.QtyOnHand, lvl.ReservedQty)
	}
	for _, o := range orders {
		listed, _ := f.reservations.ListReservations(ctx, tenantA, o)
		if len(listed) != 1 || !listed[0].Status.IsTerminal() {
			t.Errorf("order %s: expected one closed reservation, got %+v", o, listed)
		}
	}
}

func TestOverlappingReservationsDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 1000)
	f.seed(t, tenantA, "SKU2", locL1, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 40
	for i := range n {
		items := []reservation.Item{
			{SKU: "SKU1", LocationID: locL1, Quantity: 1},
			{SKU: "SKU2", LocationID: locL1, Quantity: 1},
		}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.reservations.Reserve(ctx, customer(tenantA), reservation.ReserveRequest{
				OrderID: uuid.NewString(),
				Items:   items,
			}); err != nil {
				t.Errorf("reserve: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, sku := range []string{"SKU1", "SKU2"} {
		if lvl := f.level(t, tenantA, sku, locL1); lvl.ReservedQty != n {
			t.Errorf("%s: expected reserved %d, got %d", sku, n, lvl.ReservedQty)
		}
	}
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, "SKU1", locL1, 10)
	ctx := context.Background()

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.Reserve(ctx, customer(tenantA), reservation.ReserveRequest{
				OrderID: uuid.NewString(),
				Items:   []reservation.Item{{SKU: "SKU1", LocationID: locL1, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || rejected != 15 {
		t.Errorf("expected 10 reserved and 15 rejected, got %d and %d", ok, rejected)
	}
	if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.AvailableQty != 0 || lvl.ReservedQty != 10 {
		t.Errorf("expected 10 reserved 0 available, got %d/%d", lvl.ReservedQty, lvl.AvailableQty)
	}
}

func TestReservationEventsPublished(t *testing.T) {
	f := newFixture(t)
	q := &fakeQueue{}
	hub := &fakeHub{}
	events := NewEventPublisher(q, hub, nil, nil)
	f.reservations = NewReservationService(f.store, events, nil, config.Sweeper{BatchSize: 10, Concurrency: 1})
	f.seed(t, tenantA, "SKU1", locL1, 10)
	orderID := uuid.NewString()

	reserveOne(t, f, tenantA, orderID, "SKU1", locL1, 1)
	if err := f.reservations.Release(context.Background(), customer(tenantA), orderID); err != nil {
		t.Fatalf("release: %v", err)
	}
	// A no-op release publishes nothing.
	if err := f.reservations.Release(context.Background(), customer(tenantA), orderID); err != nil {
		t.Fatalf("release: %v", err)
	}

	got := q.subjects()
	want := []string{"inventory.reservation.created", "inventory.reservation.released"}
	if len(got) != len(want) {
		t.Fatalf("expected subjects %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subject %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if len(hub.events) != 2 || hub.events[0].tenantID != tenantA {
		t.Errorf("expected 2 tenant-scoped hub events, got %+v", hub.events)
	}
}

// vanishedStockStore behaves as if every stock row had been deleted after the
// reservations against it were taken.
type vanishedStockStore struct {
	database.Store
}

func (s vanishedStockStore) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	return s.Store.InTx(ctx, func(tx database.Tx) error {
		return fn(vanishedStockTx{tx})
	})
}

type vanishedStockTx struct {
	database.Tx
}

func (vanishedStockTx) LockStock(_ context.Context, key stock.Key) (*stock.Stock, error) {
	return nil, fmt.Errorf("stock %s: %w", key, domain.ErrNotFound)
}

func TestCloseWithMissingStockRow(t *testing.T) {
	tests := []struct {
		name  string
		close func(ctx context.Context, svc *ReservationService, orderID string) error
		want  reservation.Status
	}{
		{"release", func(ctx context.Context, svc *ReservationService, orderID string) error {
			return svc.Release(ctx, customer(tenantA), orderID)
		}, reservation.StatusCancelled},
		{"expire", func(ctx context.Context, svc *ReservationService, _ string) error {
			n, err := svc.ExpireOverdue(ctx)
			if err == nil && n != 1 {
				return fmt.Errorf("expected 1 expired, got %d", n)
			}
			return err
		}, reservation.StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, tenantA, "SKU1", locL1, 10)
			orderID := uuid.NewString()
			t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			f.reservations.now = func() time.Time { return t0 }
			reserveOne(t, f, tenantA, orderID, "SKU1", locL1, 3)

			svc := NewReservationService(vanishedStockStore{f.store}, nil, nil, config.Sweeper{BatchSize: 10, Concurrency: 2})
			svc.now = func() time.Time { return t0.Add(reservation.TTL + time.Minute) }

			ctx := context.Background()
			if err := tt.close(ctx, svc, orderID); err != nil {
				t.Fatalf("expected close to succeed without a stock row, got %v", err)
			}
			listed, err := svc.ListReservations(ctx, tenantA, orderID)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(listed) != 1 || listed[0].Status != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, listed)
			}
			// The decrement was skipped, so the real row still shows the hold.
			if lvl := f.level(t, tenantA, "SKU1", locL1); lvl.ReservedQty != 3 {
				t.Errorf("expected reserved 3 untouched, got %d", lvl.ReservedQty)
			}
		})
	}
}
