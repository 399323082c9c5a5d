// Package stock defines the Stock ledger row and its quantity invariants.
package stock

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/StockForge/internal/domain"
)

// Key identifies a stock row. It is unique per tenant.
type Key struct {
	SKU        string `json:"sku"`
	LocationID string `json:"location_id"`
	TenantID   string `json:"-"`
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return k.SKU + "@" + k.LocationID
}

// Compare orders keys by (sku, location_id). Tenant is not part of the order:
// every multi-row operation is scoped to a single tenant.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.SKU, o.SKU); c != 0 {
		return c
	}
	return cmp.Compare(k.LocationID, o.LocationID)
}

// SortKeys sorts keys in the canonical lock-acquisition order and drops duplicates.
// Every path that locks more than one stock row must lock in this order.
func SortKeys(keys []Key) []Key {
	out := slices.Clone(keys)
	slices.SortFunc(out, Key.Compare)
	return slices.CompactFunc(out, func(a, b Key) bool { return a.Compare(b) == 0 })
}

// Stock is the on-hand and reserved quantity of one SKU at one location.
// Invariant: 0 <= ReservedQty <= QtyOnHand.
type Stock struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	LocationID  string    `json:"location_id"`
	TenantID    string    `json:"tenant_id"`
	QtyOnHand   int       `json:"qty_on_hand"`
	ReservedQty int       `json:"reserved_qty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the identity of the row.
func (s *Stock) Key() Key {
	return Key{SKU: s.SKU, LocationID: s.LocationID, TenantID: s.TenantID}
}

// Available returns the quantity sellable right now.
func (s *Stock) Available() int {
	return s.QtyOnHand - s.ReservedQty
}

// ApplyDelta changes the on-hand quantity. It fails with ErrInsufficientStock and
// leaves the row untouched when the result would be negative or would drop
// below the quantity currently held by reservations.
func (s *Stock) ApplyDelta(delta int) error {
	newQty := s.QtyOnHand + delta
	if newQty < 0 {
		return fmt.Errorf("sku %s: on hand %d, delta %d: %w", s.SKU, s.QtyOnHand, delta, domain.ErrInsufficientStock)
	}
	if newQty < s.ReservedQty {
		return fmt.Errorf("sku %s: on hand would be %d but %d reserved: %w", s.SKU, newQty, s.ReservedQty, domain.ErrInsufficientStock)
	}
	s.QtyOnHand = newQty
	return nil
}

// Reserve holds qty against the available quantity.
func (s *Stock) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive: %w", domain.ErrValidation)
	}
	if s.Available() < qty {
		return fmt.Errorf("insufficient stock for SKU %s: available %d, requested %d: %w", s.SKU, s.Available(), qty, domain.ErrInsufficientStock)
	}
	s.ReservedQty += qty
	return nil
}

// Release returns qty to the available pool. The reserved quantity is floored
// at zero so a double release cannot drive it negative.
func (s *Stock) Release(qty int) {
	s.ReservedQty = max(0, s.ReservedQty-qty)
}

// Consume turns a held quantity into a completed sale: both the reserved and the
// on-hand quantity drop by qty.
func (s *Stock) Consume(qty int) error {
	if qty > s.QtyOnHand {
		return fmt.Errorf("sku %s: cannot consume %d, on hand %d: %w", s.SKU, qty, s.QtyOnHand, domain.ErrInsufficientStock)
	}
	s.QtyOnHand -= qty
	s.ReservedQty = max(0, s.ReservedQty-qty)
	return nil
}

// Level is the externally visible quantity view of a stock row.
type Level struct {
	StockID      string `json:"stock_id"`
	SKU          string `json:"sku"`
	LocationID   string `json:"location_id"`
	QtyOnHand    int    `json:"qty_on_hand"`
	ReservedQty  int    `json:"reserved_qty"`
	AvailableQty int    `json:"available_qty"`
}

// Level derives the quantity view; AvailableQty is always computed from the two components.
func (s *Stock) Level() Level {
	return Level{
		StockID:      s.ID,
		SKU:          s.SKU,
		LocationID:   s.LocationID,
		QtyOnHand:    s.QtyOnHand,
		ReservedQty:  s.ReservedQty,
		AvailableQty: s.Available(),
	}
}
