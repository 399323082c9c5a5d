package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
)

var _ database.Tx = (*pgTx)(nil)

// pgTx issues SELECT ... FOR UPDATE so row locks live until the surrounding
// transaction commits or rolls back.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockStock(ctx context.Context, key stock.Key) (*stock.Stock, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stock
		 WHERE tenant_id = $1 AND sku = $2 AND location_id = $3
		 FOR UPDATE`, key.TenantID, key.SKU, key.LocationID)
	st, err := scanStock(row)
	if err != nil {
		return nil, mapErr(err, nil, "lock stock %s", key)
	}
	return &st, nil
}

func (t *pgTx) SaveStock(ctx context.Context, st *stock.Stock) error {
	row := t.tx.QueryRow(ctx,
		`UPDATE stock SET qty_on_hand = $2, reserved_qty = $3, updated_at = now()
		 WHERE id = $1 AND tenant_id = $4
		 RETURNING updated_at`, st.ID, st.QtyOnHand, st.ReservedQty, st.TenantID)
	if err := row.Scan(&st.UpdatedAt); err != nil {
		return mapErr(err, nil, "save stock %s", st.Key())
	}
	return nil
}

func (t *pgTx) AppendAdjustment(ctx context.Context, a *stock.Adjustment) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stock_adjustments (id, stock_id, tenant_id, delta, reason, order_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.StockID, a.TenantID, a.Delta, string(a.Reason), nullIfEmpty(a.OrderID), a.UserID, a.Timestamp)
	if err != nil {
		return mapErr(err, domain.ErrAlreadyExists, "append adjustment %s", a.ID)
	}
	return nil
}

func (t *pgTx) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reservations (id, tenant_id, order_id, sku, location_id, quantity, status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.TenantID, r.OrderID, r.SKU, r.LocationID, r.Quantity, string(r.Status), r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return mapErr(err, domain.ErrAlreadyExists, "create reservation %s", r.ID)
	}
	return nil
}

func (t *pgTx) LockReservationsByOrder(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE tenant_id = $1 AND order_id = $2
		 ORDER BY sku, location_id, id
		 FOR UPDATE`, tenantID, orderID)
	if err != nil {
		return nil, mapErr(err, nil, "lock reservations for order %s", orderID)
	}
	out, err := collectReservations(rows)
	if err != nil {
		return nil, mapErr(err, nil, "lock reservations for order %s", orderID)
	}
	return out, nil
}

func (t *pgTx) LockReservation(ctx context.Context, tenantID, id string) (*reservation.Reservation, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE id = $1 AND tenant_id = $2
		 FOR UPDATE`, id, tenantID)
	r, err := scanReservation(row)
	if err != nil {
		return nil, mapErr(err, nil, "lock reservation %s", id)
	}
	return &r, nil
}

func (t *pgTx) UpdateReservationStatus(ctx context.Context, r *reservation.Reservation) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reservations SET status = $3, updated_at = $4 WHERE id = $1 AND tenant_id = $2`,
		r.ID, r.TenantID, string(r.Status), r.UpdatedAt)
	return execExpectOne(tag, err, "update reservation %s", r.ID)
}
