//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	sfhttp "github.com/Strob0t/StockForge/internal/adapter/http"
	"github.com/Strob0t/StockForge/internal/adapter/memory"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/middleware"
	"github.com/Strob0t/StockForge/internal/service"
)

const location = "22222222-2222-4222-8222-222222222222"

func newRouter(store *memory.Store, rl *middleware.RateLimiter) http.Handler {
	h := &sfhttp.Handlers{
		Ledger:       service.NewLedgerService(store, nil, nil),
		Reservations: service.NewReservationService(store, nil, nil, config.Sweeper{BatchSize: 100, Concurrency: 4}),
		Locations:    service.NewLocationService(store, nil, 0),
	}
	r := chi.NewRouter()
	r.Use(middleware.Auth(nil, false))
	if rl != nil {
		r.Use(rl.Handler)
	}
	sfhttp.MountRoutes(r, h, nil)
	return r
}

func reserveRequest(tenantID, orderID, sku string) *http.Request {
	body, _ := json.Marshal(reservation.ReserveRequest{
		OrderID: orderID,
		Items:   []reservation.Item{{SKU: sku, LocationID: location, Quantity: 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/reserve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-User-ID", "load")
	req.Header.Set("X-Roles", "customer")
	return req
}

// TestCheckoutStampede fires 1000 single-unit reserves at a row holding 100
// units from 20 goroutines. Exactly 100 must succeed; the rest must be refused
// with 409 (or 503 when the row lock could not be taken in time).
func TestCheckoutStampede(t *testing.T) {
	const (
		onHand           = 100
		goroutines       = 20
		reqsPerGoroutine = 50
	)
	store := memory.NewStore(2 * time.Second)
	tenantID := uuid.NewString()
	sku := "LOAD-1"
	ctx := context.Background()

	st, err := store.CreateStock(ctx, stock.Key{SKU: sku, LocationID: location, TenantID: tenantID})
	if err != nil {
		t.Fatalf("create stock: %v", err)
	}
	ledger := service.NewLedgerService(store, nil, nil)
	if _, err := ledger.AdjustStock(ctx, adminIdentity(tenantID), stock.AdjustRequest{
		SKU: st.SKU, LocationID: location, Delta: onHand, Reason: stock.ReasonRestock,
	}); err != nil {
		t.Fatalf("restock: %v", err)
	}

	router := newRouter(store, nil)

	var created, refused, other atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	start := time.Now()

	for g := range goroutines {
		go func() {
			defer wg.Done()
			for i := range reqsPerGoroutine {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, reserveRequest(tenantID, fmt.Sprintf("order-%d-%d", g, i), sku))
				switch rec.Code {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusConflict, http.StatusServiceUnavailable:
					refused.Add(1)
				default:
					other.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	t.Logf("created=%d refused=%d other=%d elapsed=%s", created.Load(), refused.Load(), other.Load(), elapsed)

	if other.Load() != 0 {
		t.Fatalf("unexpected statuses: %d", other.Load())
	}
	if created.Load() != onHand {
		t.Fatalf("expected exactly %d reservations, got %d", onHand, created.Load())
	}

	lvl, err := ledger.GetStock(ctx, tenantID, sku, location)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if lvl.ReservedQty != onHand || lvl.AvailableQty != 0 {
		t.Fatalf("unexpected level after stampede: %+v", lvl)
	}
}

// TestRateLimitPerTenant drives two tenants through a rate=10 burst=10 limiter.
// A tenant that exhausts its bucket must not affect the other tenant.
func TestRateLimitPerTenant(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	router := newRouter(memory.NewStore(time.Second), rl)

	noisy, quiet := uuid.NewString(), uuid.NewString()

	var limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)
	for range 10 {
		go func() {
			defer wg.Done()
			for range 50 {
				req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/locations", http.NoBody)
				req.Header.Set("X-Tenant-ID", noisy)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				if rec.Code == http.StatusTooManyRequests {
					limited.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if limited.Load() < 400 {
		t.Errorf("expected at least 400 of 500 noisy requests limited, got %d", limited.Load())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/locations", http.NoBody)
	req.Header.Set("X-Tenant-ID", quiet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("quiet tenant: expected 200, got %d", rec.Code)
	}
	if rl.Len() != 2 {
		t.Errorf("expected 2 buckets, got %d", rl.Len())
	}
}

func adminIdentity(tenantID string) user.Identity {
	return user.Identity{UserID: "load", TenantID: tenantID, Roles: []user.Role{user.RoleAdmin}}
}
