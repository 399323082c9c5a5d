package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

var _ database.Tx = (*memTx)(nil)

// memTx stages writes until commit. Rows it writes must be locked by it first,
// so applying the staged copies at commit cannot clobber another writer.
type memTx struct {
	store *Store
	held  map[string]bool
	order []string

	stock        map[stock.Key]*stock.Stock
	reservations map[string]*reservation.Reservation
	adjustments  []stock.Adjustment
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	if err := tx.store.locks.acquire(ctx, key, tx.store.lockTimeout); err != nil {
		return err
	}
	tx.held[key] = true
	tx.order = append(tx.order, key)
	return nil
}

func (tx *memTx) unlockAll() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.store.locks.release(tx.order[i])
	}
	tx.order = nil
	clear(tx.held)
}

func (tx *memTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, st := range tx.stock {
		s.stock[k] = st
	}
	for id, r := range tx.reservations {
		s.reservations[id] = r
	}
	s.adjustments = append(s.adjustments, tx.adjustments...)
}

func (tx *memTx) LockStock(ctx context.Context, key stock.Key) (*stock.Stock, error) {
	if err := tx.lock(ctx, stockLockKey(key)); err != nil {
		return nil, fmt.Errorf("lock stock %s: %w", key, err)
	}
	if st, ok := tx.stock[key]; ok {
		cp := *st
		return &cp, nil
	}
	return tx.store.GetStock(ctx, key)
}

func (tx *memTx) SaveStock(_ context.Context, st *stock.Stock) error {
	key := st.Key()
	if !tx.held[stockLockKey(key)] {
		return fmt.Errorf("save stock %s: row not locked by this transaction", key)
	}
	if st.ReservedQty < 0 || st.ReservedQty > st.QtyOnHand {
		return fmt.Errorf("save stock %s: on hand %d reserved %d: %w", key, st.QtyOnHand, st.ReservedQty, domain.ErrInsufficientStock)
	}
	if tx.stock == nil {
		tx.stock = make(map[stock.Key]*stock.Stock)
	}
	cp := *st
	cp.UpdatedAt = time.Now().UTC()
	tx.stock[key] = &cp
	st.UpdatedAt = cp.UpdatedAt
	return nil
}

func (tx *memTx) AppendAdjustment(_ context.Context, a *stock.Adjustment) error {
	tx.adjustments = append(tx.adjustments, *a)
	return nil
}

func (tx *memTx) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	if tx.reservations == nil {
		tx.reservations = make(map[string]*reservation.Reservation)
	}
	tx.store.mu.RLock()
	_, exists := tx.store.reservations[r.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.reservations[r.ID]; exists || staged {
		return fmt.Errorf("create reservation %s: %w", r.ID, domain.ErrAlreadyExists)
	}
	cp := *r
	tx.reservations[r.ID] = &cp
	tx.held[reservationLockKey(r.ID)] = true
	return nil
}

func (tx *memTx) LockReservationsByOrder(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error) {
	tx.store.mu.RLock()
	found := tx.store.reservationsByOrder(tenantID, orderID)
	tx.store.mu.RUnlock()

	out := make([]reservation.Reservation, 0, len(found))
	for _, r := range found {
		locked, err := tx.LockReservation(ctx, tenantID, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *locked)
	}
	return out, nil
}

func (tx *memTx) LockReservation(ctx context.Context, tenantID, id string) (*reservation.Reservation, error) {
	if r, ok := tx.reservations[id]; ok {
		cp := *r
		return &cp, nil
	}
	if err := tx.lock(ctx, reservationLockKey(id)); err != nil {
		return nil, fmt.Errorf("lock reservation %s: %w", id, err)
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	r, ok := tx.store.reservations[id]
	if !ok || r.TenantID != tenantID {
		return nil, fmt.Errorf("lock reservation %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (tx *memTx) UpdateReservationStatus(_ context.Context, r *reservation.Reservation) error {
	if !tx.held[reservationLockKey(r.ID)] {
		return fmt.Errorf("update reservation %s: row not locked by this transaction", r.ID)
	}
	if tx.reservations == nil {
		tx.reservations = make(map[string]*reservation.Reservation)
	}
	cp := *r
	tx.reservations[r.ID] = &cp
	return nil
}
