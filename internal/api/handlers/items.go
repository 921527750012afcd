package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/knowbase/internal/api"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/go-chi/chi/v5"
)

type ItemStoreService interface {
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	GetVersion(ctx context.Context, id string, version int) (*domain.Item, error)
	ListVersions(ctx context.Context, id string) ([]*domain.Item, error)
	List(ctx context.Context, input service.ListItemsInput) (*service.ItemPageResult, error)
}

type ItemReviewService interface {
	Approve(ctx context.Context, itemID string) (*domain.Item, error)
	Reject(ctx context.Context, itemID string) (*domain.Item, error)
	Edit(ctx context.Context, input service.EditItemInput) (*domain.Item, error)
}

type ItemsHandler struct {
	store  ItemStoreService
	review ItemReviewService
}

func NewItemsHandler(store ItemStoreService, review ItemReviewService) *ItemsHandler {
	return &ItemsHandler{store: store, review: review}
}

type ItemResponse struct {
	ID            string         `json:"id"`
	Scope         string         `json:"scope"`
	TenantCode    string         `json:"tenant_code,omitempty"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Tags          []string       `json:"tags"`
	DomainObjects []string       `json:"domain_objects"`
	Signals       domain.Signals `json:"signals,omitempty"`
	Sources       []string       `json:"sources,omitempty"`
	Version       int            `json:"version"`
	Status        string         `json:"status"`
	ContentHash   string         `json:"content_hash"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

func itemToResponse(it *domain.Item) *ItemResponse {
	return &ItemResponse{
		ID:            it.ID,
		Scope:         string(it.Scope),
		TenantCode:    it.TenantCode,
		Type:          string(it.Type),
		Title:         it.Title,
		Body:          it.Body,
		Tags:          it.Tags,
		DomainObjects: it.DomainObjects,
		Signals:       it.Signals,
		Sources:       it.Sources,
		Version:       it.Version,
		Status:        string(it.Status),
		ContentHash:   it.ContentHash,
		CreatedAt:     it.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     it.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type ItemListResponse struct {
	Items   []*ItemResponse `json:"items"`
	Cursor  string          `json:"cursor,omitempty"`
	HasMore bool            `json:"has_more"`
}

func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := service.ItemFilter{
		TenantCode: domain.NormalizeTenantCode(q.Get("tenant")),
	}
	if scope := q.Get("scope"); scope != "" {
		filter.Scope = domain.Scope(scope)
	}
	if status := q.Get("status"); status != "" {
		filter.Status = domain.ItemStatus(status)
	}
	if typ := q.Get("type"); typ != "" {
		itemType, err := domain.ParseItemType(typ)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid item type")
			return
		}
		filter.Type = itemType
	}

	limit := 20
	if limitStr := q.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.store.List(r.Context(), service.ListItemsInput{
		Filter: filter,
		Cursor: q.Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ItemResponse, len(output.Items))
	for i, it := range output.Items {
		responses[i] = itemToResponse(it)
	}

	api.Success(w, http.StatusOK, ItemListResponse{
		Items:   responses,
		Cursor:  output.NextCursor,
		HasMore: output.HasMore,
	})
}

func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

type ItemVersionsResponse struct {
	Versions []*ItemResponse `json:"versions"`
}

func (h *ItemsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	versions, err := h.store.ListVersions(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ItemResponse, len(versions))
	for i, it := range versions {
		responses[i] = itemToResponse(it)
	}

	api.Success(w, http.StatusOK, ItemVersionsResponse{Versions: responses})
}

func (h *ItemsHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		api.Error(w, http.StatusBadRequest, "invalid version number")
		return
	}

	item, err := h.store.GetVersion(r.Context(), id, version)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *ItemsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := h.review.Approve(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *ItemsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := h.review.Reject(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}

// EditItemRequest carries partial updates; absent fields are left untouched.
type EditItemRequest struct {
	Title         *string         `json:"title"`
	Body          *string         `json:"body"`
	Tags          *[]string       `json:"tags"`
	DomainObjects *[]string       `json:"domain_objects"`
	Signals       *domain.Signals `json:"signals"`
}

func (h *ItemsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req EditItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == nil && req.Body == nil && req.Tags == nil && req.DomainObjects == nil && req.Signals == nil {
		api.Error(w, http.StatusBadRequest, "at least one field must be provided")
		return
	}

	item, err := h.review.Edit(r.Context(), service.EditItemInput{
		ItemID:        id,
		Title:         req.Title,
		Body:          req.Body,
		Tags:          req.Tags,
		DomainObjects: req.DomainObjects,
		Signals:       req.Signals,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, itemToResponse(item))
}
