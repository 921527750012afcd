package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIngestion() *Ingestion {
	now := time.Now().UTC()
	return &Ingestion{
		ID:              "ing-1",
		Scope:           ScopeShared,
		InputKind:       InputKindText,
		InputHash:       "abc123",
		InputName:       "pasted",
		Status:          IngestionStatusDraft,
		ModelUsed:       "gpt-5.2",
		ReasoningEffort: "high",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestValidateIngestion(t *testing.T) {
	require.NoError(t, ValidateIngestion(validIngestion()))
}

func TestValidateIngestionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Ingestion)
	}{
		{"MissingID", func(ing *Ingestion) { ing.ID = "" }},
		{"MissingHash", func(ing *Ingestion) { ing.InputHash = "" }},
		{"BadKind", func(ing *Ingestion) { ing.InputKind = "odt" }},
		{"BadStatus", func(ing *Ingestion) { ing.Status = "done" }},
		{"TenantWithoutCode", func(ing *Ingestion) { ing.Scope = ScopeTenant }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := validIngestion()
			tt.mutate(ing)
			assert.Error(t, ValidateIngestion(ing))
		})
	}
}

func TestIngestionTransitions(t *testing.T) {
	allowed := []struct{ from, to IngestionStatus }{
		{IngestionStatusDraft, IngestionStatusSynthesized},
		{IngestionStatusDraft, IngestionStatusFailed},
		{IngestionStatusSynthesized, IngestionStatusApproved},
		{IngestionStatusSynthesized, IngestionStatusRejected},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransitionIngestion(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to IngestionStatus }{
		{IngestionStatusDraft, IngestionStatusApproved},
		{IngestionStatusSynthesized, IngestionStatusDraft},
		{IngestionStatusSynthesized, IngestionStatusFailed},
		{IngestionStatusFailed, IngestionStatusDraft},
		{IngestionStatusApproved, IngestionStatusRejected},
		{IngestionStatusRejected, IngestionStatusApproved},
	}
	for _, tr := range denied {
		assert.False(t, CanTransitionIngestion(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestTransitionIngestion(t *testing.T) {
	ing := validIngestion()
	before := ing.UpdatedAt

	require.NoError(t, TransitionIngestion(ing, IngestionStatusSynthesized))
	assert.Equal(t, IngestionStatusSynthesized, ing.Status)
	assert.True(t, !ing.UpdatedAt.Before(before))

	err := TransitionIngestion(ing, IngestionStatusFailed)
	require.Error(t, err)
	assert.Equal(t, IngestionStatusSynthesized, ing.Status)
}
