package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/knowbase/internal/api"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/service"
)

type RetrievalAsker interface {
	Ask(ctx context.Context, input service.AskInput) (*service.Answer, error)
}

type AskHandler struct {
	svc RetrievalAsker
}

func NewAskHandler(svc RetrievalAsker) *AskHandler {
	return &AskHandler{svc: svc}
}

type AskRequest struct {
	Question        string   `json:"question"`
	Selector        string   `json:"selector"`
	TenantCode      string   `json:"tenant_code"`
	Limit           int      `json:"limit"`
	Types           []string `json:"types"`
	ReasoningEffort string   `json:"reasoning_effort"`
}

type AskSourceResponse struct {
	Item  *ItemResponse `json:"item"`
	Score float64       `json:"score"`
}

type AskResponse struct {
	Answer      string              `json:"answer"`
	Sources     []AskSourceResponse `json:"sources"`
	ModelCalled bool                `json:"model_called"`
	Model       string              `json:"model,omitempty"`
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.Selector == "" {
		api.Error(w, http.StatusBadRequest, "selector is required")
		return
	}

	types := make([]domain.ItemType, 0, len(req.Types))
	for _, t := range req.Types {
		itemType, err := domain.ParseItemType(t)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid item type: "+t)
			return
		}
		types = append(types, itemType)
	}

	answer, err := h.svc.Ask(r.Context(), service.AskInput{
		Question:        req.Question,
		Selector:        domain.ScopeSelector(req.Selector),
		TenantCode:      req.TenantCode,
		Limit:           req.Limit,
		Types:           types,
		ReasoningEffort: req.ReasoningEffort,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sources := make([]AskSourceResponse, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = AskSourceResponse{
			Item:  itemToResponse(src.Item),
			Score: src.Score,
		}
	}

	api.Success(w, http.StatusOK, AskResponse{
		Answer:      answer.Text,
		Sources:     sources,
		ModelCalled: answer.ModelCalled,
		Model:       answer.Model,
	})
}
