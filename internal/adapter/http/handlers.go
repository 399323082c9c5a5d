package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/StockForge/internal/domain/location"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/service"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handlers holds the services the HTTP handlers delegate to.
type Handlers struct {
	Ledger       *service.LedgerService
	Reservations *service.ReservationService
	Locations    *service.LocationService
	Checks       map[string]ReadinessCheck
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every readiness check and answers 503 if any fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

// --- Stock ledger ---

// AdjustStock applies a signed on-hand change with an audit reason.
func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[stock.AdjustRequest](w, r)
	if !ok {
		return
	}
	lvl, err := h.Ledger.AdjustStock(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lvl)
}

// GetStock returns one row's quantity view: ?sku=&location_id=.
func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	sku, locationID := q.Get("sku"), q.Get("location_id")
	if !requireField(w, sku, "sku") || !requireField(w, locationID, "location_id") {
		return
	}
	lvl, err := h.Ledger.GetStock(r.Context(), actor.TenantID, sku, locationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lvl)
}

type batchStockRequest struct {
	Items []stock.Key `json:"items"`
}

// GetBatchStock returns the quantity views of the rows that exist among items.
func (h *Handlers) GetBatchStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[batchStockRequest](w, r)
	if !ok {
		return
	}
	levels, err := h.Ledger.GetBatchStock(r.Context(), actor.TenantID, req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// ListAdjustments returns a row's audit trail, newest first: ?limit=.
func (h *Handlers) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	adjs, err := h.Ledger.ListAdjustments(r.Context(), actor.TenantID, urlParam(r, "sku"), urlParam(r, "locationID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adjs)
}

// --- Reservations ---

// Reserve holds stock for every line of an order, all or nothing.
func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[reservation.ReserveRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Reservations.Reserve(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Release cancels an order's pending reservations.
func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	h.closeOrder(w, r, h.Reservations.Release)
}

// Confirm completes an order's pending reservations.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	h.closeOrder(w, r, h.Reservations.Confirm)
}

func (h *Handlers) closeOrder(w http.ResponseWriter, r *http.Request, fn func(context.Context, user.Identity, string) error) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[reservation.OrderRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := fn(r.Context(), actor, req.OrderID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Locations ---

// ListLocations lists the tenant's locations: ?active_only=true.
func (h *Handlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active_only") == "true"
	locs, err := h.Locations.List(r.Context(), actor.TenantID, activeOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if locs == nil {
		locs = []location.Location{}
	}
	writeJSON(w, http.StatusOK, locs)
}
