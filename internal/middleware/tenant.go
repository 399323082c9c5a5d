package middleware

import (
	"context"
)

// DefaultTenantID is the single-tenant default used when auth is disabled and
// no X-Tenant-ID header is set.
const DefaultTenantID = "00000000-0000-0000-0000-000000000000"

const headerTenantID = "X-Tenant-ID"

// TenantIDFromContext returns the tenant of the authenticated identity, or ""
// when the request was not authenticated.
func TenantIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.TenantID
	}
	return ""
}
