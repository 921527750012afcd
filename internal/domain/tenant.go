package domain

import (
	"fmt"
	"regexp"
	"time"
)

// tenant codes double as vector collection suffixes, so keep them short and
// shell/URL safe
var tenantCodePattern = regexp.MustCompile(`^[A-Z0-9_]{2,16}$`)

// Tenant represents a registered client whose knowledge is isolated from
// every other tenant and from the shared baseline corpus.
type Tenant struct {
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTenant creates a new Tenant instance
func NewTenant(code, name string, now time.Time) *Tenant {
	return &Tenant{
		Code:      NormalizeTenantCode(code),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateTenant validates a Tenant instance
func ValidateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant cannot be nil")
	}

	if !tenantCodePattern.MatchString(t.Code) {
		return NewDomainError(ErrCodeValidation,
			fmt.Sprintf("tenant code %q must match %s", t.Code, tenantCodePattern.String()))
	}

	if t.Name == "" {
		return fmt.Errorf("tenant Name is required")
	}

	return nil
}
