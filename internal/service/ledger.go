// Package service implements business logic on top of ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/port/database"
)

// MaxBatchKeys bounds a single GetBatchStock lookup.
const MaxBatchKeys = 500

// Adjustment history page sizes.
const (
	DefaultAdjustmentLimit = 50
	MaxAdjustmentLimit     = 500
)

// LedgerService changes on-hand quantities and answers availability queries.
type LedgerService struct {
	store   database.Store
	events  *EventPublisher
	metrics *sfotel.Metrics
	now     func() time.Time
}

// NewLedgerService creates a LedgerService. events and metrics may be nil.
func NewLedgerService(store database.Store, events *EventPublisher, metrics *sfotel.Metrics) *LedgerService {
	return &LedgerService{store: store, events: events, metrics: metrics, now: time.Now}
}

// AdjustStock applies req.Delta to the on-hand quantity of one row and records
// the change in the audit trail. The stock update and the audit record commit
// together or not at all.
func (s *LedgerService) AdjustStock(ctx context.Context, actor user.Identity, req stock.AdjustRequest) (lvl *stock.Level, err error) {
	if !actor.CanManageStock() {
		return nil, fmt.Errorf("adjust stock: %w", domain.ErrUnauthorized)
	}
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("actor: %v: %w", err, domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := sfotel.StartLedgerSpan(ctx, "adjust", actor.TenantID, req.SKU, req.LocationID)
	defer func() { sfotel.EndSpan(span, err) }()

	key := stock.Key{SKU: req.SKU, LocationID: req.LocationID, TenantID: actor.TenantID}
	var (
		saved *stock.Stock
		adj   *stock.Adjustment
	)
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		st, err := tx.LockStock(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("stock not found for SKU %s at location %s: %w", req.SKU, req.LocationID, domain.ErrNotFound)
			}
			return err
		}
		if err := st.ApplyDelta(req.Delta); err != nil {
			return err
		}
		if err := tx.SaveStock(ctx, st); err != nil {
			return fmt.Errorf("save stock: %w", err)
		}
		adj = &stock.Adjustment{
			ID:        uuid.NewString(),
			StockID:   st.ID,
			TenantID:  actor.TenantID,
			Delta:     req.Delta,
			Reason:    req.Reason,
			OrderID:   req.OrderID,
			UserID:    actor.UserID,
			Timestamp: s.now().UTC(),
		}
		if err := tx.AppendAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("append adjustment: %w", err)
		}
		saved = st
		return nil
	})
	if err != nil {
		observeFailure(ctx, s.metrics, "adjust", err)
		return nil, err
	}

	slog.Info("stock adjusted",
		"tenant_id", actor.TenantID,
		"sku", req.SKU,
		"location_id", req.LocationID,
		"delta", req.Delta,
		"reason", req.Reason,
		"qty_on_hand", saved.QtyOnHand,
	)
	s.metrics.RecordAdjustment(ctx, string(req.Reason))
	s.events.StockAdjusted(ctx, saved, adj)

	out := saved.Level()
	return &out, nil
}

// GetStock returns the quantity view of one row without locking it.
func (s *LedgerService) GetStock(ctx context.Context, tenantID, sku, locationID string) (*stock.Level, error) {
	if err := stock.ValidateSKU(sku); err != nil {
		return nil, err
	}
	if err := domain.ValidateID("location_id", locationID); err != nil {
		return nil, err
	}
	st, err := s.store.GetStock(ctx, stock.Key{SKU: sku, LocationID: locationID, TenantID: tenantID})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("stock not found for SKU %s at location %s: %w", sku, locationID, domain.ErrNotFound)
		}
		return nil, err
	}
	lvl := st.Level()
	return &lvl, nil
}

// GetBatchStock returns the quantity views of the requested rows that exist.
// Keys without a stock row are omitted.
func (s *LedgerService) GetBatchStock(ctx context.Context, tenantID string, keys []stock.Key) ([]stock.Level, error) {
	if len(keys) > MaxBatchKeys {
		return nil, fmt.Errorf("at most %d items per batch: %w", MaxBatchKeys, domain.ErrValidation)
	}
	scoped := make([]stock.Key, 0, len(keys))
	for i, k := range keys {
		if err := stock.ValidateSKU(k.SKU); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		if err := domain.ValidateID("location_id", k.LocationID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		k.TenantID = tenantID
		scoped = append(scoped, k)
	}
	if len(scoped) == 0 {
		return []stock.Level{}, nil
	}

	rows, err := s.store.ListStockByKeys(ctx, tenantID, scoped)
	if err != nil {
		return nil, fmt.Errorf("batch stock: %w", err)
	}
	return levels(rows), nil
}

// GetLocationsWithStock returns every location of the tenant holding sku on hand.
func (s *LedgerService) GetLocationsWithStock(ctx context.Context, tenantID, sku string) ([]stock.Level, error) {
	if err := stock.ValidateSKU(sku); err != nil {
		return nil, err
	}
	rows, err := s.store.ListStockBySKU(ctx, tenantID, sku)
	if err != nil {
		return nil, fmt.Errorf("locations with stock: %w", err)
	}
	return levels(rows), nil
}

// ListAdjustments returns the audit trail of one row, newest first.
func (s *LedgerService) ListAdjustments(ctx context.Context, tenantID, sku, locationID string, limit int) ([]stock.Adjustment, error) {
	if err := stock.ValidateSKU(sku); err != nil {
		return nil, err
	}
	if err := domain.ValidateID("location_id", locationID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultAdjustmentLimit
	case limit > MaxAdjustmentLimit:
		limit = MaxAdjustmentLimit
	}
	return s.store.ListAdjustments(ctx, stock.Key{SKU: sku, LocationID: locationID, TenantID: tenantID}, limit)
}

// observeFailure counts the transient and domain failures worth alerting on.
func observeFailure(ctx context.Context, m *sfotel.Metrics, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		m.RecordInsufficient(ctx, op)
	case errors.Is(err, domain.ErrBusy):
		m.RecordBusy(ctx, op)
		slog.Warn("stock row busy", "op", op, "error", err)
	}
}

func levels(rows []stock.Stock) []stock.Level {
	out := make([]stock.Level, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Level())
	}
	return out
}
