package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloo-solutions/knowbase/internal/api"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps multipart uploads; extraction spools the file to disk
// so the limit protects memory, not storage.
const maxUploadBytes = 32 << 20

type IngestionService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestOutput, error)
	GetIngestion(ctx context.Context, id string) (*domain.Ingestion, []string, error)
	ListIngestions(ctx context.Context, input service.ListIngestionsInput) (*service.IngestionPageResult, error)
}

type IngestionReviewService interface {
	ApproveIngestion(ctx context.Context, ingestionID string) (*domain.Ingestion, error)
	RejectIngestion(ctx context.Context, ingestionID string) (*domain.Ingestion, error)
}

type IngestHandler struct {
	svc    IngestionService
	review IngestionReviewService
}

func NewIngestHandler(svc IngestionService, review IngestionReviewService) *IngestHandler {
	return &IngestHandler{svc: svc, review: review}
}

type IngestTextRequest struct {
	Scope           string `json:"scope"`
	TenantCode      string `json:"tenant_code"`
	Name            string `json:"name"`
	Text            string `json:"text"`
	ReasoningEffort string `json:"reasoning_effort"`
}

type IngestionResponse struct {
	ID              string   `json:"id"`
	Scope           string   `json:"scope"`
	TenantCode      string   `json:"tenant_code,omitempty"`
	InputKind       string   `json:"input_kind"`
	InputHash       string   `json:"input_hash"`
	InputName       string   `json:"input_name,omitempty"`
	Status          string   `json:"status"`
	ModelUsed       string   `json:"model_used,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	ItemIDs         []string `json:"item_ids,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func ingestionToResponse(ing *domain.Ingestion) *IngestionResponse {
	return &IngestionResponse{
		ID:              ing.ID,
		Scope:           string(ing.Scope),
		TenantCode:      ing.TenantCode,
		InputKind:       string(ing.InputKind),
		InputHash:       ing.InputHash,
		InputName:       ing.InputName,
		Status:          string(ing.Status),
		ModelUsed:       ing.ModelUsed,
		ReasoningEffort: ing.ReasoningEffort,
		CreatedAt:       ing.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:       ing.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type IngestedItemResponse struct {
	Item    *ItemResponse `json:"item"`
	Outcome string        `json:"outcome"`
}

type IngestResponse struct {
	Ingestion *IngestionResponse     `json:"ingestion"`
	Items     []IngestedItemResponse `json:"items"`
	Duplicate bool                   `json:"duplicate"`
}

func ingestOutputToResponse(out *service.IngestOutput) *IngestResponse {
	items := make([]IngestedItemResponse, len(out.Items))
	for i, it := range out.Items {
		items[i] = IngestedItemResponse{
			Item:    itemToResponse(it.Item),
			Outcome: string(it.Outcome),
		}
	}
	return &IngestResponse{
		Ingestion: ingestionToResponse(out.Ingestion),
		Items:     items,
		Duplicate: out.Duplicate,
	}
}

// IngestText accepts raw text for synthesis.
func (h *IngestHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req IngestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Scope == "" {
		api.Error(w, http.StatusBadRequest, "scope is required")
		return
	}

	out, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Scope:           domain.Scope(req.Scope),
		TenantCode:      req.TenantCode,
		Kind:            domain.InputKindText,
		Name:            req.Name,
		Text:            req.Text,
		ReasoningEffort: req.ReasoningEffort,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ingestOutputToResponse(out))
}

// IngestFile accepts a multipart PDF or DOCX upload for synthesis. The input
// kind is inferred from the file extension.
func (h *IngestHandler) IngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	kind, err := inputKindFromFilename(header.Filename)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	scope := r.FormValue("scope")
	if scope == "" {
		api.Error(w, http.StatusBadRequest, "scope is required")
		return
	}

	out, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Scope:           domain.Scope(scope),
		TenantCode:      r.FormValue("tenant_code"),
		Kind:            kind,
		Name:            header.Filename,
		FileBytes:       data,
		ReasoningEffort: r.FormValue("reasoning_effort"),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ingestOutputToResponse(out))
}

func inputKindFromFilename(name string) (domain.InputKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.InputKindPDF, nil
	case ".docx":
		return domain.InputKindDOCX, nil
	default:
		return "", domain.NewDomainError(domain.ErrCodeValidation, "unsupported file type, expected .pdf or .docx")
	}
}

func (h *IngestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	ing, itemIDs, err := h.svc.GetIngestion(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := ingestionToResponse(ing)
	resp.ItemIDs = itemIDs
	api.Success(w, http.StatusOK, resp)
}

type IngestionListResponse struct {
	Ingestions []*IngestionResponse `json:"ingestions"`
	Cursor     string               `json:"cursor,omitempty"`
	HasMore    bool                 `json:"has_more"`
}

func (h *IngestHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if limitStr := q.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	input := service.ListIngestionsInput{
		TenantCode: domain.NormalizeTenantCode(q.Get("tenant")),
		Cursor:     q.Get("cursor"),
		Limit:      limit,
	}
	if scope := q.Get("scope"); scope != "" {
		input.Scope = domain.Scope(scope)
	}

	output, err := h.svc.ListIngestions(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*IngestionResponse, len(output.Items))
	for i, ing := range output.Items {
		responses[i] = ingestionToResponse(ing)
	}

	api.Success(w, http.StatusOK, IngestionListResponse{
		Ingestions: responses,
		Cursor:     output.NextCursor,
		HasMore:    output.HasMore,
	})
}

func (h *IngestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	ing, err := h.review.ApproveIngestion(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ingestionToResponse(ing))
}

func (h *IngestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	ing, err := h.review.RejectIngestion(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ingestionToResponse(ing))
}
