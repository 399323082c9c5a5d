package stock_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/StockForge/internal/domain"
	"github.com/Strob0t/StockForge/internal/domain/stock"
)

const locA = "11111111-1111-1111-1111-111111111111"

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		name     string
		onHand   int
		reserved int
		delta    int
		wantQty  int
		wantErr  error
	}{
		{name: "restock", onHand: 10, delta: 5, wantQty: 15},
		{name: "write off to zero", onHand: 10, delta: -10, wantQty: 0},
		{name: "negative result", onHand: 10, delta: -20, wantQty: 10, wantErr: domain.ErrInsufficientStock},
		{name: "below reserved", onHand: 10, reserved: 4, delta: -8, wantQty: 10, wantErr: domain.ErrInsufficientStock},
		{name: "down to reserved", onHand: 10, reserved: 4, delta: -6, wantQty: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stock.Stock{SKU: "SKU1", QtyOnHand: tt.onHand, ReservedQty: tt.reserved}
			err := s.ApplyDelta(tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.QtyOnHand != tt.wantQty {
				t.Errorf("expected qty %d, got %d", tt.wantQty, s.QtyOnHand)
			}
		})
	}
}

func TestReserveAndRelease(t *testing.T) {
	s := stock.Stock{SKU: "SKU1", QtyOnHand: 10}

	if err := s.Reserve(4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if s.ReservedQty != 4 || s.Available() != 6 {
		t.Fatalf("expected reserved 4 available 6, got %d/%d", s.ReservedQty, s.Available())
	}

	if err := s.Reserve(7); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if s.ReservedQty != 4 {
		t.Fatalf("failed reserve mutated row: reserved %d", s.ReservedQty)
	}

	if err := s.Reserve(0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}

	s.Release(4)
	s.Release(4) // double release floors at zero
	if s.ReservedQty != 0 {
		t.Fatalf("expected reserved 0, got %d", s.ReservedQty)
	}
}

func TestConsume(t *testing.T) {
	s := stock.Stock{SKU: "SKU1", QtyOnHand: 10, ReservedQty: 4}
	if err := s.Consume(4); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.QtyOnHand != 6 || s.ReservedQty != 0 {
		t.Fatalf("expected 6/0, got %d/%d", s.QtyOnHand, s.ReservedQty)
	}
	if err := s.Consume(7); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestLevel(t *testing.T) {
	s := stock.Stock{ID: "s1", SKU: "SKU1", LocationID: locA, QtyOnHand: 10, ReservedQty: 3}
	lvl := s.Level()
	if lvl.AvailableQty != lvl.QtyOnHand-lvl.ReservedQty {
		t.Fatalf("available %d inconsistent with %d-%d", lvl.AvailableQty, lvl.QtyOnHand, lvl.ReservedQty)
	}
	if lvl.StockID != "s1" || lvl.AvailableQty != 7 {
		t.Fatalf("unexpected level %+v", lvl)
	}
}

func TestSortKeys(t *testing.T) {
	keys := []stock.Key{
		{SKU: "B", LocationID: "2"},
		{SKU: "A", LocationID: "9"},
		{SKU: "B", LocationID: "1"},
		{SKU: "A", LocationID: "9"},
	}
	got := stock.SortKeys(keys)
	want := []stock.Key{
		{SKU: "A", LocationID: "9"},
		{SKU: "B", LocationID: "1"},
		{SKU: "B", LocationID: "2"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if keys[0].SKU != "B" {
		t.Error("SortKeys must not reorder its input")
	}
}

func TestAdjustRequest_Validate(t *testing.T) {
	valid := stock.AdjustRequest{SKU: "SKU1", LocationID: locA, Delta: 3, Reason: stock.ReasonRestock}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recount := stock.AdjustRequest{SKU: "SKU1", LocationID: locA, Delta: 0, Reason: stock.ReasonRestock}
	if err := recount.Validate(); err != nil {
		t.Fatalf("zero delta should be accepted, got %v", err)
	}

	tests := []struct {
		name string
		mut  func(r *stock.AdjustRequest)
	}{
		{name: "missing sku", mut: func(r *stock.AdjustRequest) { r.SKU = "" }},
		{name: "bad location", mut: func(r *stock.AdjustRequest) { r.LocationID = "warehouse-1" }},
		{name: "unknown reason", mut: func(r *stock.AdjustRequest) { r.Reason = "THEFT?" }},
		{name: "bad order id", mut: func(r *stock.AdjustRequest) { r.OrderID = "42" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mut(&req)
			if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
