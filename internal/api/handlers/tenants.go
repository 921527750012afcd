package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/knowbase/internal/api"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/go-chi/chi/v5"
)

type TenantDirectoryService interface {
	Register(ctx context.Context, code, name string) (*domain.Tenant, error)
	GetByCode(ctx context.Context, code string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Rename(ctx context.Context, code, name string) (*domain.Tenant, error)
	Delete(ctx context.Context, code string) error
}

type TenantHandler struct {
	svc TenantDirectoryService
}

func NewTenantHandler(svc TenantDirectoryService) *TenantHandler {
	return &TenantHandler{svc: svc}
}

type RegisterTenantRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type RenameTenantRequest struct {
	Name string `json:"name"`
}

type TenantResponse struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func tenantToResponse(t *domain.Tenant) *TenantResponse {
	return &TenantResponse{
		Code:      t.Code,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *TenantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Code == "" {
		api.Error(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tenant, err := h.svc.Register(r.Context(), req.Code, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, tenantToResponse(tenant))
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		api.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	tenant, err := h.svc.GetByCode(r.Context(), code)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tenantToResponse(tenant))
}

type TenantListResponse struct {
	Tenants []*TenantResponse `json:"tenants"`
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*TenantResponse, len(tenants))
	for i, t := range tenants {
		responses[i] = tenantToResponse(t)
	}

	api.Success(w, http.StatusOK, TenantListResponse{Tenants: responses})
}

// Rename changes the display name. Codes are immutable since they key
// vector collections.
func (h *TenantHandler) Rename(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		api.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	var req RenameTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tenant, err := h.svc.Rename(r.Context(), code, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tenantToResponse(tenant))
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		api.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.svc.Delete(r.Context(), code); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
