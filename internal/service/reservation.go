package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/port/database"
	"github.com/Strob0t/StockForge/internal/worker"
)

// ReservationService holds, releases, confirms and expires stock reservations.
//
// Lock order: reservation rows are always locked before stock rows, and stock
// rows in (sku, location_id) order. Every path follows it, so the wait graph
// stays acyclic.
type ReservationService struct {
	store     database.Store
	events    *EventPublisher
	metrics   *sfotel.Metrics
	pool      *worker.Pool
	batchSize int
	now       func() time.Time
}

// NewReservationService creates a ReservationService. cfg bounds how many
// overdue reservations one expiry pass loads and closes concurrently.
func NewReservationService(store database.Store, events *EventPublisher, metrics *sfotel.Metrics, cfg config.Sweeper) *ReservationService {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 500
	}
	return &ReservationService{
		store:     store,
		events:    events,
		metrics:   metrics,
		pool:      worker.NewPool(cfg.Concurrency),
		batchSize: batch,
		now:       time.Now,
	}
}

// Reserve holds every item of the request for the order, all or nothing.
// Items are locked in canonical key order; repeated lines for the same row
// are merged first.
func (s *ReservationService) Reserve(ctx context.Context, actor user.Identity, req reservation.ReserveRequest) (created []reservation.Reservation, err error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("actor: %v: %w", err, domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID
	items := req.Normalized()

	ctx, span := sfotel.StartReservationSpan(ctx, "reserve", tenantID, req.OrderID, len(items))
	defer func() { sfotel.EndSpan(span, err) }()

	now := s.now().UTC()
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		out := make([]reservation.Reservation, 0, len(items))
		for _, it := range items {
			st, err := tx.LockStock(ctx, it.Key(tenantID))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("insufficient stock for SKU %s: no stock at location %s: %w", it.SKU, it.LocationID, domain.ErrInsufficientStock)
				}
				return err
			}
			if err := st.Reserve(it.Quantity); err != nil {
				return err
			}
			if err := tx.SaveStock(ctx, st); err != nil {
				return fmt.Errorf("save stock: %w", err)
			}
			r := reservation.New(uuid.NewString(), tenantID, req.OrderID, it, now)
			if err := tx.CreateReservation(ctx, r); err != nil {
				return fmt.Errorf("create reservation: %w", err)
			}
			out = append(out, *r)
		}
		created = out
		return nil
	})
	if err != nil {
		observeFailure(ctx, s.metrics, "reserve", err)
		return nil, err
	}

	slog.Info("stock reserved", "tenant_id", tenantID, "order_id", req.OrderID, "lines", len(created), "actor", actor.UserID)
	s.metrics.RecordReserved(ctx, len(created))
	s.events.ReservationsChanged(ctx, tenantID, req.OrderID, reservation.StatusPending, created)
	return created, nil
}

// Release cancels every pending reservation of the order and returns the held
// quantity to the available pool. It is idempotent: reservations that already
// left PENDING, or an unknown order, are a no-op.
func (s *ReservationService) Release(ctx context.Context, actor user.Identity, orderID string) error {
	_, err := s.closeOrder(ctx, actor, orderID, reservation.StatusCancelled)
	return err
}

// Confirm completes every pending reservation of the order: the held quantity
// leaves both the reserved and the on-hand quantity, and an ORDER_CONFIRM
// adjustment is recorded per row. Already closed reservations are skipped.
func (s *ReservationService) Confirm(ctx context.Context, actor user.Identity, orderID string) error {
	_, err := s.closeOrder(ctx, actor, orderID, reservation.StatusConfirmed)
	return err
}

// ListReservations returns every reservation of the order, any status.
func (s *ReservationService) ListReservations(ctx context.Context, tenantID, orderID string) ([]reservation.Reservation, error) {
	if err := domain.ValidateID("order_id", orderID); err != nil {
		return nil, err
	}
	return s.store.ListReservationsByOrder(ctx, tenantID, orderID)
}

func (s *ReservationService) closeOrder(ctx context.Context, actor user.Identity, orderID string, to reservation.Status) (closed []reservation.Reservation, err error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("actor: %v: %w", err, domain.ErrValidation)
	}
	if err := domain.ValidateID("order_id", orderID); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID
	op := closeOp(to)

	ctx, span := sfotel.StartReservationSpan(ctx, op, tenantID, orderID, 0)
	defer func() { sfotel.EndSpan(span, err) }()

	now := s.now().UTC()
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		rs, err := tx.LockReservationsByOrder(ctx, tenantID, orderID)
		if err != nil {
			return fmt.Errorf("lock reservations: %w", err)
		}

		pending := make([]reservation.Reservation, 0, len(rs))
		keys := make([]stock.Key, 0, len(rs))
		for _, r := range rs {
			if r.Status != reservation.StatusPending {
				continue
			}
			pending = append(pending, r)
			keys = append(keys, r.StockKey())
		}
		if len(pending) == 0 {
			return nil
		}

		rows := make(map[stock.Key]*stock.Stock, len(keys))
		for _, k := range stock.SortKeys(keys) {
			st, err := tx.LockStock(ctx, k)
			if errors.Is(err, domain.ErrNotFound) {
				slog.Warn("stock row missing for reservation, closing without stock change",
					"tenant_id", tenantID, "order_id", orderID, "sku", k.SKU, "location_id", k.LocationID)
				continue
			}
			if err != nil {
				return err
			}
			rows[k] = st
		}

		for i := range pending {
			r := &pending[i]
			if st := rows[r.StockKey()]; st != nil {
				if err := s.settle(ctx, tx, st, r, actor.UserID, to, now); err != nil {
					return err
				}
			}
			if err := r.Close(to, now); err != nil {
				return err
			}
			if err := tx.UpdateReservationStatus(ctx, r); err != nil {
				return fmt.Errorf("update reservation: %w", err)
			}
		}
		for _, st := range rows {
			if err := tx.SaveStock(ctx, st); err != nil {
				return fmt.Errorf("save stock: %w", err)
			}
		}
		closed = pending
		return nil
	})
	if err != nil {
		observeFailure(ctx, s.metrics, op, err)
		return nil, err
	}

	if len(closed) > 0 {
		slog.Info("reservations closed", "tenant_id", tenantID, "order_id", orderID, "status", to, "count", len(closed), "actor", actor.UserID)
		s.metrics.RecordClosed(ctx, string(to), len(closed))
		s.events.ReservationsChanged(ctx, tenantID, orderID, to, closed)
	}
	return closed, nil
}

// settle applies the stock side of closing r: a release returns the held
// quantity, a confirmation consumes it and appends the audit record.
func (s *ReservationService) settle(ctx context.Context, tx database.Tx, st *stock.Stock, r *reservation.Reservation, userID string, to reservation.Status, now time.Time) error {
	switch to {
	case reservation.StatusCancelled, reservation.StatusExpired:
		st.Release(r.Quantity)
		return nil
	case reservation.StatusConfirmed:
		if err := st.Consume(r.Quantity); err != nil {
			return err
		}
		adj := &stock.Adjustment{
			ID:        uuid.NewString(),
			StockID:   st.ID,
			TenantID:  st.TenantID,
			Delta:     -r.Quantity,
			Reason:    stock.ReasonOrderConfirm,
			OrderID:   r.OrderID,
			UserID:    userID,
			Timestamp: now,
		}
		if err := tx.AppendAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("append adjustment: %w", err)
		}
		return nil
	case reservation.StatusPending:
	}
	return fmt.Errorf("settle reservation %s as %s: %w", r.ID, to, domain.ErrConflict)
}

// ExpireOverdue closes every pending reservation whose deadline has passed and
// returns how many it closed. Overdue reservations are loaded in batches and
// each is closed in its own transaction, so concurrent sweeps and releases
// only skip each other. Failures of single reservations are joined into the
// returned error; the rest of the batch still proceeds.
func (s *ReservationService) ExpireOverdue(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for {
		now := s.now().UTC()
		batch, err := s.store.ListOverdueReservations(ctx, now, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("list overdue reservations: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var closed atomic.Int64
		err = worker.Each(ctx, s.pool, batch, func(ctx context.Context, r reservation.Reservation) error {
			ok, err := s.expireOne(ctx, r.TenantID, r.ID, now)
			if ok {
				closed.Add(1)
			}
			return err
		})
		total += int(closed.Load())
		if err != nil {
			errs = append(errs, err)
		}
		if len(batch) < s.batchSize || closed.Load() == 0 || ctx.Err() != nil {
			break
		}
	}
	return total, errors.Join(errs...)
}

// expireOne locks one reservation and expires it if it is still pending.
// Returns false when another caller closed it first.
func (s *ReservationService) expireOne(ctx context.Context, tenantID, id string, now time.Time) (bool, error) {
	var expired *reservation.Reservation
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		r, err := tx.LockReservation(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if r.Status != reservation.StatusPending {
			return nil
		}

		st, err := tx.LockStock(ctx, r.StockKey())
		switch {
		case errors.Is(err, domain.ErrNotFound):
			slog.Warn("stock row missing for reservation, closing without stock change",
				"tenant_id", tenantID, "reservation_id", id, "sku", r.SKU, "location_id", r.LocationID)
		case err != nil:
			return err
		default:
			st.Release(r.Quantity)
			if err := tx.SaveStock(ctx, st); err != nil {
				return fmt.Errorf("save stock: %w", err)
			}
		}

		if err := r.Close(reservation.StatusExpired, now); err != nil {
			return err
		}
		if err := tx.UpdateReservationStatus(ctx, r); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		expired = r
		return nil
	})
	if err != nil {
		observeFailure(ctx, s.metrics, "expire", err)
		return false, fmt.Errorf("expire reservation %s: %w", id, err)
	}
	if expired == nil {
		return false, nil
	}

	s.metrics.RecordClosed(ctx, string(reservation.StatusExpired), 1)
	s.events.ReservationsChanged(ctx, tenantID, expired.OrderID, reservation.StatusExpired, []reservation.Reservation{*expired})
	return true, nil
}

func closeOp(to reservation.Status) string {
	switch to {
	case reservation.StatusConfirmed:
		return "confirm"
	case reservation.StatusExpired:
		return "expire"
	case reservation.StatusCancelled:
		return "release"
	case reservation.StatusPending:
	}
	return "close"
}
