package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/StockForge/internal/adapter/postgres"
	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	// Run goose migrations first (uses embedded SQL files).
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool, 200*time.Millisecond)
}

// newTenant returns a fresh tenant ID so tests never see each other's rows.
func newTenant() string {
	return "test-" + uuid.NewString()
}

func seedStock(t *testing.T, s *postgres.Store, key stock.Key, onHand int) *stock.Stock {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateStock(ctx, key); err != nil {
		t.Fatalf("CreateStock: %v", err)
	}
	var out *stock.Stock
	err := s.InTx(ctx, func(tx database.Tx) error {
		st, err := tx.LockStock(ctx, key)
		if err != nil {
			return err
		}
		st.QtyOnHand = onHand
		out = st
		return tx.SaveStock(ctx, st)
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return out
}

func TestStore_StockLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := stock.Key{SKU: "SKU-1", LocationID: uuid.NewString(), TenantID: newTenant()}

	st := seedStock(t, s, key, 10)

	if _, err := s.CreateStock(ctx, key); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateStock: expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetStock(ctx, key)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if got.ID != st.ID || got.QtyOnHand != 10 {
		t.Fatalf("unexpected stock %+v", got)
	}

	other := key
	other.TenantID = newTenant()
	if _, err := s.GetStock(ctx, other); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("other tenant: expected ErrNotFound, got %v", err)
	}

	list, err := s.ListStockBySKU(ctx, key.TenantID, key.SKU)
	if err != nil {
		t.Fatalf("ListStockBySKU: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 row, got %d", len(list))
	}

	batch, err := s.ListStockByKeys(ctx, key.TenantID, []stock.Key{key, {SKU: "missing", LocationID: uuid.NewString()}})
	if err != nil {
		t.Fatalf("ListStockByKeys: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != st.ID {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestStore_CheckConstraintRejectsOverReserve(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := stock.Key{SKU: "SKU-C", LocationID: uuid.NewString(), TenantID: newTenant()}
	seedStock(t, s, key, 3)

	err := s.InTx(ctx, func(tx database.Tx) error {
		st, err := tx.LockStock(ctx, key)
		if err != nil {
			return err
		}
		st.ReservedQty = 5
		return tx.SaveStock(ctx, st)
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := stock.Key{SKU: "SKU-R", LocationID: uuid.NewString(), TenantID: newTenant()}
	seedStock(t, s, key, 4)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx database.Tx) error {
		st, err := tx.LockStock(ctx, key)
		if err != nil {
			return err
		}
		st.QtyOnHand = 100
		if err := tx.SaveStock(ctx, st); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetStock(ctx, key)
	if got.QtyOnHand != 4 {
		t.Fatalf("expected rollback to keep 4, got %d", got.QtyOnHand)
	}
}

func TestStore_LockTimeoutIsBusy(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := stock.Key{SKU: "SKU-L", LocationID: uuid.NewString(), TenantID: newTenant()}
	seedStock(t, s, key, 1)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.InTx(ctx, func(tx database.Tx) error {
			if _, err := tx.LockStock(ctx, key); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked
	defer close(done)

	err := s.InTx(ctx, func(tx database.Tx) error {
		_, err := tx.LockStock(ctx, key)
		return err
	})
	if !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestStore_ReservationsAndAdjustments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	tenantID := newTenant()
	key := stock.Key{SKU: "SKU-O", LocationID: uuid.NewString(), TenantID: tenantID}
	st := seedStock(t, s, key, 5)
	orderID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	r := reservation.New(uuid.NewString(), tenantID, orderID,
		reservation.Item{SKU: key.SKU, LocationID: key.LocationID, Quantity: 2}, now.Add(-time.Hour))

	err := s.InTx(ctx, func(tx database.Tx) error {
		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}
		return tx.AppendAdjustment(ctx, &stock.Adjustment{
			ID: uuid.NewString(), StockID: st.ID, TenantID: tenantID,
			Delta: 5, Reason: stock.ReasonRestock, UserID: "u1", Timestamp: now,
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	byOrder, err := s.ListReservationsByOrder(ctx, tenantID, orderID)
	if err != nil || len(byOrder) != 1 || byOrder[0].Status != reservation.StatusPending {
		t.Fatalf("ListReservationsByOrder = %+v, %v", byOrder, err)
	}

	overdue, err := s.ListOverdueReservations(ctx, now, 1000)
	if err != nil {
		t.Fatalf("ListOverdueReservations: %v", err)
	}
	found := false
	for _, o := range overdue {
		found = found || o.ID == r.ID
	}
	if !found {
		t.Fatal("expected reservation among overdue rows")
	}

	err = s.InTx(ctx, func(tx database.Tx) error {
		locked, err := tx.LockReservation(ctx, tenantID, r.ID)
		if err != nil {
			return err
		}
		if err := locked.Close(reservation.StatusExpired, now); err != nil {
			return err
		}
		return tx.UpdateReservationStatus(ctx, locked)
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}

	if _, err := s.ListReservationsByOrder(ctx, newTenant(), orderID); err != nil {
		t.Fatalf("other tenant list: %v", err)
	}

	adjs, err := s.ListAdjustments(ctx, key, 10)
	if err != nil {
		t.Fatalf("ListAdjustments: %v", err)
	}
	if len(adjs) != 1 || adjs[0].Reason != stock.ReasonRestock || adjs[0].OrderID != "" {
		t.Fatalf("unexpected adjustments %+v", adjs)
	}
}

func TestStore_Locations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	tenantID := newTenant()

	a, err := s.CreateLocation(ctx, tenantID, location.CreateRequest{Name: "Main", Type: "WAREHOUSE"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	if _, err := s.CreateLocation(ctx, tenantID, location.CreateRequest{Name: "main", Type: "STORE"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateLocation(ctx, newTenant(), location.CreateRequest{Name: "Main", Type: "STORE"}); err != nil {
		t.Fatalf("same name in other tenant: %v", err)
	}

	ids, err := s.ListActiveLocationIDs(ctx, tenantID)
	if err != nil || len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("ListActiveLocationIDs = %v, %v", ids, err)
	}

	if err := s.DeactivateLocation(ctx, tenantID, a.ID); err != nil {
		t.Fatalf("DeactivateLocation: %v", err)
	}
	if _, err := s.CreateLocation(ctx, tenantID, location.CreateRequest{Name: "MAIN", Type: "WAREHOUSE"}); err != nil {
		t.Fatalf("name reusable after deactivation: %v", err)
	}

	all, err := s.ListLocations(ctx, tenantID, false)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListLocations(all) = %d, %v", len(all), err)
	}
	active, err := s.ListLocations(ctx, tenantID, true)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListLocations(active) = %d, %v", len(active), err)
	}

	if err := s.DeactivateLocation(ctx, tenantID, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
