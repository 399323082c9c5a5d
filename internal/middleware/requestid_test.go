package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/StockForge/internal/logger"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"missing", "", false},
		{"checkout id", "checkout-7f3a.retry:2", true},
		{"oversized", strings.Repeat("x", maxRequestIDLen+1), false},
		{"newline", "req-1\nlevel=ERROR", false},
		{"space", "req 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				ctxID = logger.RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/reserve", http.NoBody)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			respID := rec.Header().Get("X-Request-ID")
			if respID != ctxID {
				t.Errorf("response id %q differs from context id %q", respID, ctxID)
			}
			if tt.keep {
				if ctxID != tt.header {
					t.Errorf("expected %q kept, got %q", tt.header, ctxID)
				}
				return
			}
			if _, err := uuid.Parse(ctxID); err != nil {
				t.Errorf("expected generated UUID, got %q", ctxID)
			}
		})
	}
}
