// Package location defines warehouses and stores that hold stock.
package location

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Strob0t/StockForge/internal/domain"
)

// Location is a place that holds stock for a tenant. Deactivated locations keep
// their stock rows but receive no new ones from provisioning.
type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Address   string    `json:"address,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields required to create a location.
type CreateRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

// Validate checks the request shape.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
	return validateFields(r.Name, r.Type, r.Address)
}

// UpdateRequest replaces the mutable fields of a location.
type UpdateRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

// Validate checks the request shape.
func (r *UpdateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
	return validateFields(r.Name, r.Type, r.Address)
}

func validateFields(name, typ, address string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, c := range name {
		if unicode.IsControl(c) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	if typ == "" {
		return fmt.Errorf("type is required: %w", domain.ErrValidation)
	}
	if len(typ) > 50 {
		return fmt.Errorf("type exceeds 50 characters: %w", domain.ErrValidation)
	}
	if len(address) > 500 {
		return fmt.Errorf("address exceeds 500 characters: %w", domain.ErrValidation)
	}
	return nil
}

// SameName compares location names the way the uniqueness rule does (case-insensitive).
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
