package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/StockForge/internal/middleware"
)

// MountRoutes registers the health probes and the inventory API on r.
// idempotent wraps the mutating routes; nil leaves them unwrapped.
func MountRoutes(r chi.Router, h *Handlers, idempotent func(http.Handler) http.Handler) {
	if idempotent == nil {
		idempotent = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1/inventory", func(r chi.Router) {
		// Ledger
		r.With(middleware.RequireStockManager, idempotent).Post("/adjust", h.AdjustStock)
		r.Get("/stock", h.GetStock)
		r.Post("/stock/batch", h.GetBatchStock)
		r.Get("/stock/{sku}/locations", handleListByParam("sku", h.Ledger.GetLocationsWithStock))
		r.Get("/stock/{sku}/locations/{locationID}/adjustments", h.ListAdjustments)

		// Reservations
		r.With(idempotent).Post("/reserve", h.Reserve)
		r.With(idempotent).Post("/release", h.Release)
		r.With(idempotent).Post("/confirm", h.Confirm)
		r.Get("/reservations/{orderID}", handleListByParam("orderID", h.Reservations.ListReservations))

		// Locations
		r.Get("/locations", h.ListLocations)
		r.Get("/locations/{locationID}", handleGet("locationID", h.Locations.Get))
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStockManager)
			r.Post("/locations", handleCreate(h.Locations.Create))
			r.Put("/locations/{locationID}", handleUpdate("locationID", h.Locations.Update))
			r.Delete("/locations/{locationID}", handleDelete("locationID", h.Locations.Deactivate))
		})
	})
}
