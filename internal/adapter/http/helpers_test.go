package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/StockForge/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{fmt.Errorf("bad: %w", domain.ErrValidation), http.StatusBadRequest, "VALIDATION_FAILED"},
		{fmt.Errorf("adjust: %w", domain.ErrUnauthorized), http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("reserve: %w", domain.ErrInsufficientStock), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{fmt.Errorf("create: %w", domain.ErrAlreadyExists), http.StatusConflict, "ALREADY_EXISTS"},
		{fmt.Errorf("name: %w", domain.ErrConflict), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("lock: %w", domain.ErrBusy), http.StatusServiceUnavailable, "BUSY"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, body.Code)
			}
		})
	}
}

func TestBusyCarriesRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("lock stock: %w", domain.ErrBusy))
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After 1, got %q", got)
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, errors.New("pq: password authentication failed"))
	if body := rec.Body.String(); body != "{\"error\":\"internal server error\",\"code\":\"INTERNAL\"}\n" {
		t.Errorf("unexpected body %q", body)
	}
}
