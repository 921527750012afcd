package domain

import "strings"

// Scope is the isolation boundary for knowledge: the shared baseline corpus
// or a single tenant's corpus.
type Scope string

const (
	ScopeShared Scope = "shared"
	ScopeTenant Scope = "tenant"
)

// ScopeSelector names the collections a retrieval request may touch.
// A selector never widens beyond the shared collection plus the one tenant
// it explicitly names.
type ScopeSelector string

const (
	SelectSharedOnly       ScopeSelector = "shared"
	SelectTenantOnly       ScopeSelector = "tenant"
	SelectTenantPlusShared ScopeSelector = "tenant+shared"
)

// NormalizeTenantCode canonicalizes a tenant code for storage and collection
// naming.
func NormalizeTenantCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateScope checks a (scope, tenantCode) pair. Tenant scope without a
// tenant code is a scope error; shared scope must not carry one.
func ValidateScope(scope Scope, tenantCode string) error {
	switch scope {
	case ScopeShared:
		if tenantCode != "" {
			return NewDomainError(ErrCodeScope, "tenant code must be empty for shared scope")
		}
		return nil
	case ScopeTenant:
		if strings.TrimSpace(tenantCode) == "" {
			return ErrScopeRequired
		}
		return nil
	default:
		return ErrInvalidScope
	}
}

// ValidateSelector checks a (selector, tenantCode) pair for retrieval.
func ValidateSelector(selector ScopeSelector, tenantCode string) error {
	switch selector {
	case SelectSharedOnly:
		return nil
	case SelectTenantOnly, SelectTenantPlusShared:
		if strings.TrimSpace(tenantCode) == "" {
			return ErrScopeRequired
		}
		return nil
	default:
		return ErrInvalidScope
	}
}

// TenantScoped reports whether the selector touches a tenant collection.
func (s ScopeSelector) TenantScoped() bool {
	return s == SelectTenantOnly || s == SelectTenantPlusShared
}

// SharedScoped reports whether the selector touches the shared collection.
func (s ScopeSelector) SharedScoped() bool {
	return s == SelectSharedOnly || s == SelectTenantPlusShared
}
