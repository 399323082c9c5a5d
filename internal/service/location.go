package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/port/cache"
	"github.com/Strob0t/StockForge/internal/port/database"
)

const activeLocationsNamespace = "locations"

// LocationService manages the warehouses and stores of a tenant and serves the
// active-location directory used by provisioning. Only location metadata is
// cached; stock quantities never are.
type LocationService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLocationService creates a LocationService. c may be nil to disable caching.
func NewLocationService(store database.Store, c cache.Cache, ttl time.Duration) *LocationService {
	return &LocationService{store: store, cache: c, ttl: ttl}
}

// Create adds an active location for the actor's tenant.
func (s *LocationService) Create(ctx context.Context, actor user.Identity, req location.CreateRequest) (*location.Location, error) {
	if !actor.CanManageStock() {
		return nil, fmt.Errorf("create location: %w", domain.ErrUnauthorized)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	l, err := s.store.CreateLocation(ctx, actor.TenantID, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, actor.TenantID)
	slog.Info("location created", "tenant_id", actor.TenantID, "location_id", l.ID, "name", l.Name)
	return l, nil
}

// Get returns one location of the tenant.
func (s *LocationService) Get(ctx context.Context, tenantID, id string) (*location.Location, error) {
	if err := domain.ValidateID("location_id", id); err != nil {
		return nil, err
	}
	return s.store.GetLocation(ctx, tenantID, id)
}

// List returns the tenant's locations, optionally only the active ones.
func (s *LocationService) List(ctx context.Context, tenantID string, activeOnly bool) ([]location.Location, error) {
	return s.store.ListLocations(ctx, tenantID, activeOnly)
}

// Update replaces the mutable fields of a location.
func (s *LocationService) Update(ctx context.Context, actor user.Identity, id string, req location.UpdateRequest) (*location.Location, error) {
	if !actor.CanManageStock() {
		return nil, fmt.Errorf("update location: %w", domain.ErrUnauthorized)
	}
	if err := domain.ValidateID("location_id", id); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	l, err := s.store.UpdateLocation(ctx, actor.TenantID, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, actor.TenantID)
	return l, nil
}

// Deactivate soft-deletes a location. Its stock rows are kept, but provisioning
// no longer creates new ones there.
func (s *LocationService) Deactivate(ctx context.Context, actor user.Identity, id string) error {
	if !actor.CanManageStock() {
		return fmt.Errorf("deactivate location: %w", domain.ErrUnauthorized)
	}
	if err := domain.ValidateID("location_id", id); err != nil {
		return err
	}
	if err := s.store.DeactivateLocation(ctx, actor.TenantID, id); err != nil {
		return err
	}
	s.invalidate(ctx, actor.TenantID)
	slog.Info("location deactivated", "tenant_id", actor.TenantID, "location_id", id)
	return nil
}

// ActiveLocationIDs returns the IDs of the tenant's active locations.
// Results are served cache-aside; concurrent misses for the same tenant share
// one datastore query.
func (s *LocationService) ActiveLocationIDs(ctx context.Context, tenantID string) ([]string, error) {
	key := cache.TenantKey(activeLocationsNamespace, tenantID, "active")
	if s.cache != nil {
		if ids, ok, err := cache.GetJSON[[]string](ctx, s.cache, key); err == nil && ok {
			return ids, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		ids, err := s.store.ListActiveLocationIDs(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list active locations: %w", err)
		}
		if s.cache != nil {
			if err := cache.SetJSON(ctx, s.cache, key, ids, s.ttl); err != nil {
				slog.Warn("cache active locations", "tenant_id", tenantID, "error", err)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (s *LocationService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	key := cache.TenantKey(activeLocationsNamespace, tenantID, "active")
	s.group.Forget(key)
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("invalidate active locations", "tenant_id", tenantID, "error", err)
	}
}
