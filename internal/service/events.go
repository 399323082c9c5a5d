package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
	"github.com/Strob0t/StockForge/internal/domain/reservation"
	"github.com/Strob0t/StockForge/internal/domain/stock"
	"github.com/Strob0t/StockForge/internal/port/broadcast"
	"github.com/Strob0t/StockForge/internal/port/messagequeue"
	"github.com/Strob0t/StockForge/internal/resilience"
)

// EventPublisher emits stock events after a transaction has committed.
// Delivery is best effort: failures are logged and counted, never returned,
// because the ledger change they describe is already durable.
type EventPublisher struct {
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	breaker *resilience.Breaker
	metrics *sfotel.Metrics
}

// NewEventPublisher creates an EventPublisher. queue and hub may be nil.
func NewEventPublisher(queue messagequeue.Queue, hub broadcast.Broadcaster, breaker *resilience.Breaker, metrics *sfotel.Metrics) *EventPublisher {
	return &EventPublisher{queue: queue, hub: hub, breaker: breaker, metrics: metrics}
}

// StockAdjusted announces a committed adjustment together with the resulting levels.
func (p *EventPublisher) StockAdjusted(ctx context.Context, st *stock.Stock, adj *stock.Adjustment) {
	if p == nil {
		return
	}
	lvl := st.Level()
	p.publish(ctx, st.TenantID, messagequeue.SubjectStockAdjusted, messagequeue.StockAdjustedPayload{
		TenantID:     st.TenantID,
		StockID:      st.ID,
		SKU:          st.SKU,
		LocationID:   st.LocationID,
		Delta:        adj.Delta,
		Reason:       string(adj.Reason),
		OrderID:      adj.OrderID,
		QtyOnHand:    lvl.QtyOnHand,
		ReservedQty:  lvl.ReservedQty,
		AvailableQty: lvl.AvailableQty,
	})
}

// ReservationsChanged announces reservations of one order that reached status.
func (p *EventPublisher) ReservationsChanged(ctx context.Context, tenantID, orderID string, status reservation.Status, rs []reservation.Reservation) {
	if p == nil || len(rs) == 0 {
		return
	}
	subject, ok := reservationSubject(status)
	if !ok {
		return
	}
	lines := make([]messagequeue.ReservationLine, 0, len(rs))
	for i := range rs {
		lines = append(lines, messagequeue.ReservationLine{
			ReservationID: rs[i].ID,
			SKU:           rs[i].SKU,
			LocationID:    rs[i].LocationID,
			Quantity:      rs[i].Quantity,
		})
	}
	p.publish(ctx, tenantID, subject, messagequeue.ReservationEventPayload{
		TenantID: tenantID,
		OrderID:  orderID,
		Status:   string(status),
		Lines:    lines,
	})
}

func reservationSubject(status reservation.Status) (string, bool) {
	switch status {
	case reservation.StatusPending:
		return messagequeue.SubjectReservationCreated, true
	case reservation.StatusCancelled:
		return messagequeue.SubjectReservationReleased, true
	case reservation.StatusExpired:
		return messagequeue.SubjectReservationExpired, true
	case reservation.StatusConfirmed:
		return messagequeue.SubjectReservationConfirmed, true
	}
	return "", false
}

func (p *EventPublisher) publish(ctx context.Context, tenantID, subject string, payload any) {
	if p.hub != nil {
		p.hub.BroadcastEvent(ctx, tenantID, subject, payload)
	}
	if p.queue == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", "subject", subject, "error", err)
		p.metrics.RecordEventDropped(ctx, subject)
		return
	}

	send := func() error { return p.queue.Publish(ctx, subject, data) }
	if p.breaker != nil {
		err = p.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		slog.Warn("event not published", "subject", subject, "tenant_id", tenantID, "error", fmt.Errorf("publish: %w", err))
		p.metrics.RecordEventDropped(ctx, subject)
	}
}
