package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stockforge"

// StartLedgerSpan starts a span for a stock ledger operation on one row.
func StartLedgerSpan(ctx context.Context, op, tenantID, sku, locationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stock.sku", sku),
			attribute.String("stock.location_id", locationID),
		),
	)
}

// StartReservationSpan starts a span for a reservation operation on an order.
func StartReservationSpan(ctx context.Context, op, tenantID, orderID string, lines int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reservation."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("order.id", orderID),
			attribute.Int("reservation.lines", lines),
		),
	)
}

// StartSweepSpan starts a span for one expiry sweep.
func StartSweepSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sweeper.expire_overdue")
}

// StartProvisionSpan starts a span for provisioning a product's stock rows.
func StartProvisionSpan(ctx context.Context, tenantID, sku string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provisioning.product_created",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("stock.sku", sku),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
