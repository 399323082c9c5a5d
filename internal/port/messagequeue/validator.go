package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case subject == SubjectProductCreated:
		var p ProductCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.SKU == "" || p.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: sku and tenant_id are required", subject)
		}
		return nil
	case subject == SubjectStockAdjusted:
		target = &StockAdjustedPayload{}
	case strings.HasPrefix(subject, "inventory.reservation."):
		target = &ReservationEventPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
