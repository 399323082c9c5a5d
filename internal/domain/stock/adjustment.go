package stock

import (
	"fmt"
	"time"
	"unicode"

	"github.com/Strob0t/StockForge/internal/domain"
)

// Reason classifies an adjustment in the audit trail.
type Reason string

const (
	ReasonRestock      Reason = "RESTOCK"
	ReasonSale         Reason = "SALE"
	ReasonReturn       Reason = "RETURN"
	ReasonDamage       Reason = "DAMAGE"
	ReasonCorrection   Reason = "CORRECTION"
	ReasonTransferIn   Reason = "TRANSFER_IN"
	ReasonTransferOut  Reason = "TRANSFER_OUT"
	ReasonOrderReserve Reason = "ORDER_RESERVE"
	ReasonOrderConfirm Reason = "ORDER_CONFIRM"
)

// validReasons enumerates all accepted adjustment reasons.
var validReasons = map[Reason]bool{
	ReasonRestock:      true,
	ReasonSale:         true,
	ReasonReturn:       true,
	ReasonDamage:       true,
	ReasonCorrection:   true,
	ReasonTransferIn:   true,
	ReasonTransferOut:  true,
	ReasonOrderReserve: true,
	ReasonOrderConfirm: true,
}

// IsValid reports whether r is a known reason.
func (r Reason) IsValid() bool {
	return validReasons[r]
}

// Adjustment is an immutable audit record of one quantity change.
type Adjustment struct {
	ID        string    `json:"id"`
	StockID   string    `json:"stock_id"`
	TenantID  string    `json:"tenant_id"`
	Delta     int       `json:"delta"`
	Reason    Reason    `json:"reason"`
	OrderID   string    `json:"order_id,omitempty"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AdjustRequest is the input for a direct on-hand quantity change.
type AdjustRequest struct {
	SKU        string `json:"sku"`
	LocationID string `json:"location_id"`
	Delta      int    `json:"delta"`
	Reason     Reason `json:"reason"`
	OrderID    string `json:"order_id,omitempty"`
}

// Validate checks the request shape. Quantity rules are enforced under the row lock.
func (r *AdjustRequest) Validate() error {
	if err := ValidateSKU(r.SKU); err != nil {
		return err
	}
	if err := domain.ValidateID("location_id", r.LocationID); err != nil {
		return err
	}
	if !r.Reason.IsValid() {
		return fmt.Errorf("unknown reason %q: %w", r.Reason, domain.ErrValidation)
	}
	if r.OrderID != "" {
		if err := domain.ValidateID("order_id", r.OrderID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSKU checks a SKU is non-empty, at most 100 characters and free of control characters.
func ValidateSKU(sku string) error {
	if sku == "" {
		return fmt.Errorf("sku is required: %w", domain.ErrValidation)
	}
	if len(sku) > 100 {
		return fmt.Errorf("sku exceeds 100 characters: %w", domain.ErrValidation)
	}
	for _, c := range sku {
		if unicode.IsControl(c) {
			return fmt.Errorf("sku contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}
