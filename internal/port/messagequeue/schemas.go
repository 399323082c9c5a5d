package messagequeue

import "time"

// ProductCreatedPayload is the schema for products.created messages.
type ProductCreatedPayload struct {
	EventType string    `json:"event_type"`
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	TenantID  string    `json:"tenant_id"`
	SellerID  string    `json:"seller_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StockAdjustedPayload is the schema for inventory.stock.adjusted messages.
type StockAdjustedPayload struct {
	TenantID     string `json:"tenant_id"`
	StockID      string `json:"stock_id"`
	SKU          string `json:"sku"`
	LocationID   string `json:"location_id"`
	Delta        int    `json:"delta"`
	Reason       string `json:"reason"`
	OrderID      string `json:"order_id,omitempty"`
	QtyOnHand    int    `json:"qty_on_hand"`
	ReservedQty  int    `json:"reserved_qty"`
	AvailableQty int    `json:"available_qty"`
}

// ReservationLine is one reserved row inside a reservation event.
type ReservationLine struct {
	ReservationID string `json:"reservation_id"`
	SKU           string `json:"sku"`
	LocationID    string `json:"location_id"`
	Quantity      int    `json:"quantity"`
}

// ReservationEventPayload is the schema for inventory.reservation.* messages.
type ReservationEventPayload struct {
	TenantID string            `json:"tenant_id"`
	OrderID  string            `json:"order_id"`
	Status   string            `json:"status"`
	Lines    []ReservationLine `json:"lines"`
}
