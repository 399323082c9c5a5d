package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

var _ database.Store = (*Store)(nil)

const (
	stockColumns       = `id, sku, location_id, tenant_id, qty_on_hand, reserved_qty, created_at, updated_at`
	reservationColumns = `id, order_id, sku, location_id, tenant_id, quantity, expires_at, status, created_at, updated_at`
	locationColumns    = `id, name, type, address, tenant_id, active, created_at, updated_at`
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewStore creates a new Store backed by the given connection pool. lockTimeout
// bounds every row-lock wait inside InTx.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside a READ COMMITTED transaction with a local lock_timeout.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(err, nil, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return mapErr(err, nil, "set lock_timeout")
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err, nil, "commit")
	}
	return nil
}

// --- Stock ---

func (s *Store) GetStock(ctx context.Context, key stock.Key) (*stock.Stock, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stock WHERE tenant_id = $1 AND sku = $2 AND location_id = $3`,
		key.TenantID, key.SKU, key.LocationID)
	st, err := scanStock(row)
	if err != nil {
		return nil, mapErr(err, nil, "get stock %s", key)
	}
	return &st, nil
}

func (s *Store) ListStockByKeys(ctx context.Context, tenantID string, keys []stock.Key) ([]stock.Stock, error) {
	keys = stock.SortKeys(keys)
	skus := make([]string, len(keys))
	locs := make([]string, len(keys))
	for i, k := range keys {
		skus[i] = k.SKU
		locs[i] = k.LocationID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+stockColumns+` FROM stock
		 WHERE tenant_id = $1 AND (sku, location_id) IN (
		   SELECT k.sku, k.location_id FROM unnest($2::text[], $3::uuid[]) AS k(sku, location_id))
		 ORDER BY sku, location_id`, tenantID, skus, locs)
	if err != nil {
		return nil, mapErr(err, nil, "list stock by keys")
	}
	return collectStock(rows)
}

func (s *Store) ListStockBySKU(ctx context.Context, tenantID, sku string) ([]stock.Stock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stockColumns+` FROM stock
		 WHERE tenant_id = $1 AND sku = $2 AND qty_on_hand > 0
		 ORDER BY location_id`, tenantID, sku)
	if err != nil {
		return nil, mapErr(err, nil, "list stock for sku %s", sku)
	}
	return collectStock(rows)
}

func (s *Store) CreateStock(ctx context.Context, key stock.Key) (*stock.Stock, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO stock (tenant_id, sku, location_id) VALUES ($1, $2, $3)
		 RETURNING `+stockColumns, key.TenantID, key.SKU, key.LocationID)
	st, err := scanStock(row)
	if err != nil {
		return nil, mapErr(err, domain.ErrAlreadyExists, "create stock %s", key)
	}
	return &st, nil
}

func (s *Store) ListAdjustments(ctx context.Context, key stock.Key, limit int) ([]stock.Adjustment, error) {
	st, err := s.GetStock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, stock_id, tenant_id, delta, reason, COALESCE(order_id, ''), user_id, created_at
		 FROM stock_adjustments WHERE stock_id = $1 AND tenant_id = $2
		 ORDER BY created_at DESC, id LIMIT $3`, st.ID, key.TenantID, limit)
	if err != nil {
		return nil, mapErr(err, nil, "list adjustments %s", key)
	}
	defer rows.Close()

	var out []stock.Adjustment
	for rows.Next() {
		var a stock.Adjustment
		var reason string
		if err := rows.Scan(&a.ID, &a.StockID, &a.TenantID, &a.Delta, &reason, &a.OrderID, &a.UserID, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.Reason = stock.Reason(reason)
		out = append(out, a)
	}
	return orEmpty(out), rows.Err()
}

// --- Reservations ---

func (s *Store) ListReservationsByOrder(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE tenant_id = $1 AND order_id = $2
		 ORDER BY sku, location_id, id`, tenantID, orderID)
	if err != nil {
		return nil, mapErr(err, nil, "list reservations for order %s", orderID)
	}
	return collectReservations(rows)
}

func (s *Store) ListOverdueReservations(ctx context.Context, now time.Time, limit int) ([]reservation.Reservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = 'PENDING' AND expires_at < $1
		 ORDER BY expires_at, id LIMIT $2`, now, limit)
	if err != nil {
		return nil, mapErr(err, nil, "list overdue reservations")
	}
	return collectReservations(rows)
}

// --- Locations ---

func (s *Store) CreateLocation(ctx context.Context, tenantID string, req location.CreateRequest) (*location.Location, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO locations (tenant_id, name, type, address) VALUES ($1, $2, $3, $4)
		 RETURNING `+locationColumns, tenantID, req.Name, req.Type, req.Address)
	l, err := scanLocation(row)
	if err != nil {
		return nil, mapErr(err, domain.ErrConflict, "create location %q", req.Name)
	}
	return &l, nil
}

func (s *Store) GetLocation(ctx context.Context, tenantID, id string) (*location.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	l, err := scanLocation(row)
	if err != nil {
		return nil, mapErr(err, nil, "get location %s", id)
	}
	return &l, nil
}

func (s *Store) ListLocations(ctx context.Context, tenantID string, activeOnly bool) ([]location.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+locationColumns+` FROM locations
		 WHERE tenant_id = $1 AND (active OR NOT $2)
		 ORDER BY lower(name), id`, tenantID, activeOnly)
	if err != nil {
		return nil, mapErr(err, nil, "list locations")
	}
	defer rows.Close()

	var out []location.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) UpdateLocation(ctx context.Context, tenantID, id string, req location.UpdateRequest) (*location.Location, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE locations SET name = $3, type = $4, address = $5, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING `+locationColumns, id, tenantID, req.Name, req.Type, req.Address)
	l, err := scanLocation(row)
	if err != nil {
		return nil, mapErr(err, domain.ErrConflict, "update location %s", id)
	}
	return &l, nil
}

func (s *Store) DeactivateLocation(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE locations SET active = FALSE, updated_at = now() WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return execExpectOne(tag, err, "deactivate location %s", id)
}

func (s *Store) ListActiveLocationIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM locations WHERE tenant_id = $1 AND active ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, mapErr(err, nil, "list active locations")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan location id: %w", err)
	}
	return orEmpty(ids), nil
}

// --- scan helpers ---

func scanStock(row scannable) (stock.Stock, error) {
	var st stock.Stock
	err := row.Scan(&st.ID, &st.SKU, &st.LocationID, &st.TenantID, &st.QtyOnHand, &st.ReservedQty, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func collectStock(rows pgx.Rows) ([]stock.Stock, error) {
	defer rows.Close()
	var out []stock.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, st)
	}
	return orEmpty(out), rows.Err()
}

func scanReservation(row scannable) (reservation.Reservation, error) {
	var r reservation.Reservation
	var status string
	err := row.Scan(&r.ID, &r.OrderID, &r.SKU, &r.LocationID, &r.TenantID, &r.Quantity, &r.ExpiresAt, &status, &r.CreatedAt, &r.UpdatedAt)
	r.Status = reservation.Status(status)
	return r, err
}

func collectReservations(rows pgx.Rows) ([]reservation.Reservation, error) {
	defer rows.Close()
	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return orEmpty(out), rows.Err()
}

func scanLocation(row scannable) (location.Location, error) {
	var l location.Location
	err := row.Scan(&l.ID, &l.Name, &l.Type, &l.Address, &l.TenantID, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
