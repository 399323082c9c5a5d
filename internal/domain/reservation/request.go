package reservation

import (
	"fmt"
	"slices"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/stock"
)

// Item is one line of a reserve request.
type Item struct {
	SKU        string `json:"sku"`
	LocationID string `json:"location_id"`
	Quantity   int    `json:"quantity"`
}

// Key returns the stock key the item targets within tenantID.
func (i Item) Key(tenantID string) stock.Key {
	return stock.Key{SKU: i.SKU, LocationID: i.LocationID, TenantID: tenantID}
}

// ReserveRequest holds stock for every item of an order, all or nothing.
type ReserveRequest struct {
	OrderID string `json:"order_id"`
	Items   []Item `json:"items"`
}

// Validate checks the request shape.
func (r *ReserveRequest) Validate() error {
	if err := domain.ValidateID("order_id", r.OrderID); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("items are required: %w", domain.ErrValidation)
	}
	if len(r.Items) > MaxItems {
		return fmt.Errorf("at most %d items per reservation: %w", MaxItems, domain.ErrValidation)
	}
	for i := range r.Items {
		it := &r.Items[i]
		if err := stock.ValidateSKU(it.SKU); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		if err := domain.ValidateID("location_id", it.LocationID); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive: %w", i, domain.ErrValidation)
		}
	}
	return nil
}

// Normalized returns the items in canonical lock order (sku, location_id),
// with repeated lines for the same row merged into one.
func (r *ReserveRequest) Normalized() []Item {
	items := slices.Clone(r.Items)
	slices.SortFunc(items, func(a, b Item) int {
		return a.Key("").Compare(b.Key(""))
	})

	out := items[:0]
	for _, it := range items {
		if n := len(out); n > 0 && out[n-1].SKU == it.SKU && out[n-1].LocationID == it.LocationID {
			out[n-1].Quantity += it.Quantity
			continue
		}
		out = append(out, it)
	}
	return out
}

// OrderRequest identifies an order for release and confirm.
type OrderRequest struct {
	OrderID string `json:"order_id"`
}

// Validate checks the request shape.
func (r *OrderRequest) Validate() error {
	return domain.ValidateID("order_id", r.OrderID)
}
