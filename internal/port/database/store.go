// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
)

// Store is the port interface for database operations.
// Every tenant-scoped method takes the tenant explicitly and never returns
// rows belonging to another tenant.
type Store interface {
	// InTx runs fn as one all-or-nothing unit. Locks taken through tx are held
	// until fn returns; a non-nil error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Stock (non-locking reads, read-committed)
	GetStock(ctx context.Context, key stock.Key) (*stock.Stock, error)
	ListStockByKeys(ctx context.Context, tenantID string, keys []stock.Key) ([]stock.Stock, error)
	ListStockBySKU(ctx context.Context, tenantID, sku string) ([]stock.Stock, error)
	// CreateStock inserts a zero-quantity row. ErrAlreadyExists on a duplicate key.
	CreateStock(ctx context.Context, key stock.Key) (*stock.Stock, error)
	ListAdjustments(ctx context.Context, key stock.Key, limit int) ([]stock.Adjustment, error)

	// Reservations
	ListReservationsByOrder(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error)
	// ListOverdueReservations returns PENDING reservations of all tenants that expired before now.
	ListOverdueReservations(ctx context.Context, now time.Time, limit int) ([]reservation.Reservation, error)

	// Locations
	CreateLocation(ctx context.Context, tenantID string, req location.CreateRequest) (*location.Location, error)
	GetLocation(ctx context.Context, tenantID, id string) (*location.Location, error)
	ListLocations(ctx context.Context, tenantID string, activeOnly bool) ([]location.Location, error)
	UpdateLocation(ctx context.Context, tenantID, id string, req location.UpdateRequest) (*location.Location, error)
	DeactivateLocation(ctx context.Context, tenantID, id string) error
	ListActiveLocationIDs(ctx context.Context, tenantID string) ([]string, error)
}

// Tx is the locking protocol available inside Store.InTx.
type Tx interface {
	// LockStock takes the exclusive row lock for key, blocking while another
	// transaction holds it. ErrNotFound if the row does not exist; ErrBusy if
	// the wait exceeds the lock timeout.
	LockStock(ctx context.Context, key stock.Key) (*stock.Stock, error)
	SaveStock(ctx context.Context, s *stock.Stock) error
	AppendAdjustment(ctx context.Context, a *stock.Adjustment) error

	CreateReservation(ctx context.Context, r *reservation.Reservation) error
	// LockReservationsByOrder locks every reservation of the order, any status.
	LockReservationsByOrder(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error)
	LockReservation(ctx context.Context, tenantID, id string) (*reservation.Reservation, error)
	UpdateReservationStatus(ctx context.Context, r *reservation.Reservation) error
}
