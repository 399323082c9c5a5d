package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "stockforge"

// Metrics holds the ledger metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	Adjustments          metric.Int64Counter
	ReservationsCreated  metric.Int64Counter
	ReservationsClosed   metric.Int64Counter
	InsufficientStock    metric.Int64Counter
	LockBusy             metric.Int64Counter
	StockRowsProvisioned metric.Int64Counter
	EventsDropped        metric.Int64Counter
	SweepDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Adjustments, err = meter.Int64Counter("stockforge.adjustments",
		metric.WithDescription("Number of committed stock adjustments"))
	if err != nil {
		return nil, err
	}

	m.ReservationsCreated, err = meter.Int64Counter("stockforge.reservations.created",
		metric.WithDescription("Number of reservation lines created"))
	if err != nil {
		return nil, err
	}

	m.ReservationsClosed, err = meter.Int64Counter("stockforge.reservations.closed",
		metric.WithDescription("Number of reservations leaving PENDING, by final status"))
	if err != nil {
		return nil, err
	}

	m.InsufficientStock, err = meter.Int64Counter("stockforge.insufficient_stock",
		metric.WithDescription("Number of operations rejected for insufficient stock"))
	if err != nil {
		return nil, err
	}

	m.LockBusy, err = meter.Int64Counter("stockforge.lock_busy",
		metric.WithDescription("Number of operations that exceeded the row lock wait bound"))
	if err != nil {
		return nil, err
	}

	m.StockRowsProvisioned, err = meter.Int64Counter("stockforge.stock.provisioned",
		metric.WithDescription("Number of zero-quantity stock rows created by provisioning"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("stockforge.events.dropped",
		metric.WithDescription("Number of outbound events that could not be published"))
	if err != nil {
		return nil, err
	}

	m.SweepDuration, err = meter.Float64Histogram("stockforge.sweep.duration_seconds",
		metric.WithDescription("Expiry sweep duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAdjustment counts one committed adjustment.
func (m *Metrics) RecordAdjustment(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Adjustments.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordReserved counts created reservation lines.
func (m *Metrics) RecordReserved(ctx context.Context, lines int) {
	if m == nil {
		return
	}
	m.ReservationsCreated.Add(ctx, int64(lines))
}

// RecordClosed counts reservations that reached status.
func (m *Metrics) RecordClosed(ctx context.Context, status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReservationsClosed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status)))
}

// RecordInsufficient counts a rejection for insufficient stock.
func (m *Metrics) RecordInsufficient(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.InsufficientStock.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordBusy counts a lock wait that timed out.
func (m *Metrics) RecordBusy(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.LockBusy.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordProvisioned counts stock rows created for a new product.
func (m *Metrics) RecordProvisioned(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.StockRowsProvisioned.Add(ctx, int64(n))
}

// RecordEventDropped counts an outbound event that was not delivered.
func (m *Metrics) RecordEventDropped(ctx context.Context, subject string) {
	if m == nil {
		return
	}
	m.EventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("subject", subject)))
}

// RecordSweep records how long one sweep took.
func (m *Metrics) RecordSweep(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Record(ctx, seconds)
}

// RegisterGauge exports fn as an observable gauge sampled on every collection.
// It backs process-local values such as the L1 cache hit ratio and the number
// of open WebSocket connections.
func RegisterGauge(name, description string, fn func() float64) error {
	_, err := otel.Meter(meterName).Float64ObservableGauge(name,
		metric.WithDescription(description),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(fn())
			return nil
		}))
	return err
}
