package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/database"
	"github.com/Strob0t/StockForge/internal/port/messagequeue"
)

// LocationDirectory lists the active locations of a tenant.
type LocationDirectory interface {
	ActiveLocationIDs(ctx context.Context, tenantID string) ([]string, error)
}

// ProvisioningService materializes zero-quantity stock rows for new products.
type ProvisioningService struct {
	store       database.Store
	locations   LocationDirectory
	metrics     *sfotel.Metrics
	concurrency int
}

// NewProvisioningService creates a ProvisioningService creating at most
// concurrency rows at a time.
func NewProvisioningService(store database.Store, locations LocationDirectory, metrics *sfotel.Metrics, concurrency int) *ProvisioningService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ProvisioningService{store: store, locations: locations, metrics: metrics, concurrency: concurrency}
}

// Provision creates a stock row for sku at every active location of the
// tenant and returns how many rows were new. Rows that already exist count as
// success, so provisioning the same product twice is harmless.
func (s *ProvisioningService) Provision(ctx context.Context, tenantID, sku string) (created int, err error) {
	if err := stock.ValidateSKU(sku); err != nil {
		return 0, err
	}
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required: %w", domain.ErrValidation)
	}

	ctx, span := sfotel.StartProvisionSpan(ctx, tenantID, sku)
	defer func() { sfotel.EndSpan(span, err) }()

	ids, err := s.locations.ActiveLocationIDs(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var n atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, locID := range ids {
		g.Go(func() error {
			_, err := s.store.CreateStock(gctx, stock.Key{SKU: sku, LocationID: locID, TenantID: tenantID})
			switch {
			case err == nil:
				n.Add(1)
				return nil
			case errors.Is(err, domain.ErrAlreadyExists):
				return nil
			default:
				return fmt.Errorf("create stock %s@%s: %w", sku, locID, err)
			}
		})
	}
	err = g.Wait()
	created = int(n.Load())
	s.metrics.RecordProvisioned(ctx, created)
	if err != nil {
		return created, err
	}

	slog.Info("stock provisioned", "tenant_id", tenantID, "sku", sku, "locations", len(ids), "created", created)
	return created, nil
}

// HandleProductCreated is the messagequeue.Handler for product-created
// notifications. Malformed payloads are dropped; datastore failures are
// returned so the message is redelivered.
func (s *ProvisioningService) HandleProductCreated(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.ProductCreatedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.ErrorContext(ctx, "drop malformed product event", "subject", subject, "error", err)
		return nil
	}

	_, err := s.Provision(ctx, p.TenantID, p.SKU)
	if errors.Is(err, domain.ErrValidation) {
		slog.ErrorContext(ctx, "drop invalid product event", "subject", subject, "product_id", p.ProductID, "error", err)
		return nil
	}
	return err
}

// Subscribe starts consuming product-created notifications from q.
func (s *ProvisioningService) Subscribe(ctx context.Context, q messagequeue.Queue, subject string) (func(), error) {
	if subject == "" {
		subject = messagequeue.SubjectProductCreated
	}
	cancel, err := q.Subscribe(ctx, subject, s.HandleProductCreated)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	slog.Info("provisioning subscribed", "subject", subject)
	return cancel, nil
}
