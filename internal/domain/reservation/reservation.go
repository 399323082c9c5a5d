// Package reservation defines time-bounded holds on stock pending order completion.
package reservation

import (
	"fmt"
	"time"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/stock"
)

// TTL is how long a reservation holds stock before the sweeper expires it.
const TTL = 15 * time.Minute

// MaxItems bounds the number of lines a single reserve call may lock.
const MaxItems = 100

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal returns true once the reservation has left PENDING.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPending:
		return false
	case StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return true
}

// IsValid reports whether s is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether a reservation in state s may move to state to.
// Only PENDING has outgoing edges.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		switch to {
		case StatusConfirmed, StatusCancelled, StatusExpired:
			return true
		case StatusPending:
			return false
		}
		return false
	case StatusConfirmed, StatusCancelled, StatusExpired:
		return false
	}
	return false
}

// Reservation holds Quantity units of one stock row for one order.
// It references the stock row by (sku, location, tenant) rather than by row ID.
type Reservation struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	SKU        string    `json:"sku"`
	LocationID string    `json:"location_id"`
	TenantID   string    `json:"tenant_id"`
	Quantity   int       `json:"quantity"`
	ExpiresAt  time.Time `json:"expires_at"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New builds a PENDING reservation expiring TTL after now.
func New(id, tenantID, orderID string, item Item, now time.Time) *Reservation {
	return &Reservation{
		ID:         id,
		OrderID:    orderID,
		SKU:        item.SKU,
		LocationID: item.LocationID,
		TenantID:   tenantID,
		Quantity:   item.Quantity,
		ExpiresAt:  now.Add(TTL),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StockKey returns the key of the stock row this reservation holds against.
func (r *Reservation) StockKey() stock.Key {
	return stock.Key{SKU: r.SKU, LocationID: r.LocationID, TenantID: r.TenantID}
}

// IsOverdue reports whether a pending reservation is past its deadline at now.
func (r *Reservation) IsOverdue(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt.Before(now)
}

// Close moves the reservation to a terminal state.
func (r *Reservation) Close(to Status, now time.Time) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("reservation %s: %s -> %s: %w", r.ID, r.Status, to, domain.ErrConflict)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}
