// Package user defines the authenticated identity the inventory core acts on behalf of.
package user

import (
	"errors"
	"slices"
	"strings"
)

// Role is a coarse authorization grant carried in the access token.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleSeller   Role = "SELLER"
	RoleCustomer Role = "CUSTOMER"
)

// stockManagers are the roles that may change stock and locations.
var stockManagers = []Role{RoleAdmin, RoleSeller}

// Identity is the already-authenticated (user, tenant, roles) triple.
type Identity struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Roles    []Role `json:"roles"`
}

// Validate checks that both the user and the tenant are known.
func (i *Identity) Validate() error {
	if i.UserID == "" {
		return errors.New("user id is required")
	}
	if i.TenantID == "" {
		return errors.New("tenant id is required")
	}
	return nil
}

// CanManageStock reports whether the identity may adjust stock or manage locations.
func (i *Identity) CanManageStock() bool {
	return CanManageStock(i.Roles)
}

// CanManageStock is true iff roles intersect {SELLER, ADMIN}.
func CanManageStock(roles []Role) bool {
	for _, r := range roles {
		if slices.Contains(stockManagers, r) {
			return true
		}
	}
	return false
}

// ParseRoles splits a comma separated role list, normalising case and dropping blanks.
func ParseRoles(s string) []Role {
	var roles []Role
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		roles = append(roles, Role(part))
	}
	return roles
}

// TokenClaims contains the JWT payload fields.
type TokenClaims struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tid"`
	Roles    []Role `json:"roles"`
	Issuer   string `json:"iss"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// Identity converts validated claims into an Identity.
func (c *TokenClaims) Identity() Identity {
	return Identity{UserID: c.UserID, TenantID: c.TenantID, Roles: c.Roles}
}
