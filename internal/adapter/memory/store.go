// Package memory implements database.Store in process memory.
//
// Row locks are emulated with a keyed lock table, so the store gives the same
// per-row serialization as the postgres adapter but only within one process.
// It backs the service tests and storage.driver "memory" for local runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// Store is the committed state plus the lock table. mu guards the maps only;
// it is never held while waiting for a row lock.
type Store struct {
	mu           sync.RWMutex
	stock        map[stock.Key]*stock.Stock
	adjustments  []stock.Adjustment
	reservations map[string]*reservation.Reservation
	locations    map[string]*location.Location

	locks       *lockTable
	lockTimeout time.Duration
}

// NewStore creates an empty store. lockTimeout bounds every row-lock wait;
// zero waits until the context is done.
func NewStore(lockTimeout time.Duration) *Store {
	return &Store{
		stock:        make(map[stock.Key]*stock.Stock),
		reservations: make(map[string]*reservation.Reservation),
		locations:    make(map[string]*location.Location),
		locks:        newLockTable(),
		lockTimeout:  lockTimeout,
	}
}

func stockLockKey(k stock.Key) string {
	return "stock:" + k.TenantID + "|" + k.SKU + "|" + k.LocationID
}

func reservationLockKey(id string) string {
	return "reservation:" + id
}

// InTx runs fn against a staging transaction. Staged writes become visible
// atomically when fn returns nil; every lock taken by fn is released afterwards.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	tx := &memTx{store: s, held: make(map[string]bool)}
	defer tx.unlockAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.commit()
	return nil
}

// --- Stock ---

func (s *Store) GetStock(_ context.Context, key stock.Key) (*stock.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stock[key]
	if !ok {
		return nil, fmt.Errorf("get stock %s: %w", key, domain.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

func (s *Store) ListStockByKeys(_ context.Context, tenantID string, keys []stock.Key) ([]stock.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]stock.Stock, 0, len(keys))
	for _, k := range stock.SortKeys(keys) {
		k.TenantID = tenantID
		if st, ok := s.stock[k]; ok {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *Store) ListStockBySKU(_ context.Context, tenantID, sku string) ([]stock.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []stock.Stock{}
	for k, st := range s.stock {
		if k.TenantID == tenantID && k.SKU == sku && st.QtyOnHand > 0 {
			out = append(out, *st)
		}
	}
	slices.SortFunc(out, func(a, b stock.Stock) int { return cmp.Compare(a.LocationID, b.LocationID) })
	return out, nil
}

func (s *Store) CreateStock(_ context.Context, key stock.Key) (*stock.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stock[key]; ok {
		return nil, fmt.Errorf("create stock %s: %w", key, domain.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	st := &stock.Stock{
		ID:         uuid.NewString(),
		SKU:        key.SKU,
		LocationID: key.LocationID,
		TenantID:   key.TenantID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.stock[key] = st
	cp := *st
	return &cp, nil
}

func (s *Store) ListAdjustments(_ context.Context, key stock.Key, limit int) ([]stock.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stock[key]
	if !ok {
		return nil, fmt.Errorf("list adjustments %s: %w", key, domain.ErrNotFound)
	}
	out := []stock.Adjustment{}
	for i := len(s.adjustments) - 1; i >= 0; i-- {
		a := s.adjustments[i]
		if a.StockID != st.ID || a.TenantID != key.TenantID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- Reservations ---

func (s *Store) ListReservationsByOrder(_ context.Context, tenantID, orderID string) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsByOrder(tenantID, orderID), nil
}

// reservationsByOrder must be called with mu held.
func (s *Store) reservationsByOrder(tenantID, orderID string) []reservation.Reservation {
	out := []reservation.Reservation{}
	for _, r := range s.reservations {
		if r.TenantID == tenantID && r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b reservation.Reservation) int {
		if c := a.StockKey().Compare(b.StockKey()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) ListOverdueReservations(_ context.Context, now time.Time, limit int) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []reservation.Reservation{}
	for _, r := range s.reservations {
		if r.IsOverdue(now) {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b reservation.Reservation) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Locations ---

// nameTaken must be called with mu held.
func (s *Store) nameTaken(tenantID, name, exceptID string) bool {
	for _, l := range s.locations {
		if l.TenantID == tenantID && l.Active && l.ID != exceptID && location.SameName(l.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) CreateLocation(_ context.Context, tenantID string, req location.CreateRequest) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(tenantID, req.Name, "") {
		return nil, fmt.Errorf("create location %q: name in use: %w", req.Name, domain.ErrConflict)
	}
	now := time.Now().UTC()
	l := &location.Location{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Type:      req.Type,
		Address:   req.Address,
		TenantID:  tenantID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.locations[l.ID] = l
	cp := *l
	return &cp, nil
}

func (s *Store) GetLocation(_ context.Context, tenantID, id string) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok || l.TenantID != tenantID {
		return nil, fmt.Errorf("get location %s: %w", id, domain.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListLocations(_ context.Context, tenantID string, activeOnly bool) ([]location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []location.Location{}
	for _, l := range s.locations {
		if l.TenantID != tenantID || (activeOnly && !l.Active) {
			continue
		}
		out = append(out, *l)
	}
	slices.SortFunc(out, func(a, b location.Location) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

func (s *Store) UpdateLocation(_ context.Context, tenantID, id string, req location.UpdateRequest) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	if !ok || l.TenantID != tenantID {
		return nil, fmt.Errorf("update location %s: %w", id, domain.ErrNotFound)
	}
	if l.Active && s.nameTaken(tenantID, req.Name, id) {
		return nil, fmt.Errorf("update location %s: name %q in use: %w", id, req.Name, domain.ErrConflict)
	}
	l.Name = req.Name
	l.Type = req.Type
	l.Address = req.Address
	l.UpdatedAt = time.Now().UTC()
	cp := *l
	return &cp, nil
}

func (s *Store) DeactivateLocation(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	if !ok || l.TenantID != tenantID {
		return fmt.Errorf("deactivate location %s: %w", id, domain.ErrNotFound)
	}
	l.Active = false
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListActiveLocationIDs(_ context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*location.Location
	for _, l := range s.locations {
		if l.TenantID == tenantID && l.Active {
			active = append(active, l)
		}
	}
	slices.SortFunc(active, func(a, b *location.Location) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	ids := make([]string, 0, len(active))
	for _, l := range active {
		ids = append(ids, l.ID)
	}
	return ids, nil
}
