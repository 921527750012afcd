package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

// TenantRepositoryInterface defines the repository interface for the tenant
// directory
type TenantRepositoryInterface interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByCode(ctx context.Context, code string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Update(ctx context.Context, tenant *domain.Tenant) error
	Delete(ctx context.Context, code string) error
}

// TenantService manages the tenant directory. Every tenant-scoped request
// is validated against it.
type TenantService struct {
	tenantRepo TenantRepositoryInterface
}

func NewTenantService(tenantRepo TenantRepositoryInterface) *TenantService {
	return &TenantService{tenantRepo: tenantRepo}
}

// Register adds a tenant. Codes are uppercased and must be short and
// URL safe because they double as collection suffixes.
func (s *TenantService) Register(ctx context.Context, code, name string) (*domain.Tenant, error) {
	tenant := domain.NewTenant(code, name, time.Now().UTC())
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid tenant", err)
	}
	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) GetByCode(ctx context.Context, code string) (*domain.Tenant, error) {
	return s.tenantRepo.GetByCode(ctx, code)
}

func (s *TenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.tenantRepo.List(ctx)
}

// Rename changes a tenant's display name. The code is immutable: items and
// collections reference it.
func (s *TenantService) Rename(ctx context.Context, code, name string) (*domain.Tenant, error) {
	tenant, err := s.tenantRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	tenant.Name = name
	tenant.UpdatedAt = time.Now().UTC()
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid tenant", err)
	}
	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) Delete(ctx context.Context, code string) error {
	return s.tenantRepo.Delete(ctx, code)
}
