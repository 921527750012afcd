package domain

import (
	"fmt"
	"time"
)

// InputKind identifies the source format of an ingestion
type InputKind string

const (
	InputKindText InputKind = "text"
	InputKindPDF  InputKind = "pdf"
	InputKindDOCX InputKind = "docx"
)

// IngestionStatus represents the lifecycle state of an ingestion record
type IngestionStatus string

const (
	IngestionStatusDraft       IngestionStatus = "draft"
	IngestionStatusSynthesized IngestionStatus = "synthesized"
	IngestionStatusApproved    IngestionStatus = "approved"
	IngestionStatusRejected    IngestionStatus = "rejected"
	IngestionStatusFailed      IngestionStatus = "failed"
)

// Ingestion tracks one extraction+synthesis attempt
type Ingestion struct {
	ID              string
	Scope           Scope
	TenantCode      string
	InputKind       InputKind
	InputHash       string
	InputName       string
	Status          IngestionStatus
	ModelUsed       string
	ReasoningEffort string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateIngestion validates an Ingestion instance
func ValidateIngestion(ing *Ingestion) error {
	if ing == nil {
		return fmt.Errorf("ingestion cannot be nil")
	}

	if ing.ID == "" {
		return fmt.Errorf("ingestion ID is required")
	}

	if err := ValidateScope(ing.Scope, ing.TenantCode); err != nil {
		return err
	}

	if !isValidInputKind(ing.InputKind) {
		return fmt.Errorf("ingestion InputKind is invalid: %s", ing.InputKind)
	}

	if ing.InputHash == "" {
		return fmt.Errorf("ingestion InputHash is required")
	}

	if !isValidIngestionStatus(ing.Status) {
		return fmt.Errorf("ingestion Status is invalid: %s", ing.Status)
	}

	return nil
}

// CanTransitionIngestion reports whether a status transition is allowed.
// Transitions are one-directional: draft -> synthesized -> approved|rejected,
// with a terminal branch draft -> failed.
func CanTransitionIngestion(from, to IngestionStatus) bool {
	switch from {
	case IngestionStatusDraft:
		return to == IngestionStatusSynthesized || to == IngestionStatusFailed
	case IngestionStatusSynthesized:
		return to == IngestionStatusApproved || to == IngestionStatusRejected
	default:
		return false
	}
}

// TransitionIngestion validates and applies a status transition.
func TransitionIngestion(ing *Ingestion, to IngestionStatus) error {
	if !isValidIngestionStatus(to) {
		return fmt.Errorf("ingestion Status is invalid: %s", to)
	}
	if !CanTransitionIngestion(ing.Status, to) {
		return NewDomainError(ErrCodeInvalidTransition,
			fmt.Sprintf("ingestion cannot transition from %s to %s", ing.Status, to))
	}
	ing.Status = to
	ing.UpdatedAt = time.Now().UTC()
	return nil
}

func isValidInputKind(k InputKind) bool {
	switch k {
	case InputKindText, InputKindPDF, InputKindDOCX:
		return true
	}
	return false
}

func isValidIngestionStatus(s IngestionStatus) bool {
	switch s {
	case IngestionStatusDraft, IngestionStatusSynthesized, IngestionStatusApproved,
		IngestionStatusRejected, IngestionStatusFailed:
		return true
	}
	return false
}
