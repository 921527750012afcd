package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ItemType classifies a knowledge item
type ItemType string

const (
	ItemTypeIncidentPattern   ItemType = "incident-pattern"
	ItemTypeRootCause         ItemType = "root-cause"
	ItemTypeResolution        ItemType = "resolution"
	ItemTypeVerificationSteps ItemType = "verification-steps"
	ItemTypeCustomizing       ItemType = "customizing"
	ItemTypeTechnicalNote     ItemType = "technical-note"
	ItemTypeGlossary          ItemType = "glossary"
	ItemTypeRunbook           ItemType = "runbook"
)

// ItemTypes lists all valid item types in declaration order.
func ItemTypes() []ItemType {
	return []ItemType{
		ItemTypeIncidentPattern,
		ItemTypeRootCause,
		ItemTypeResolution,
		ItemTypeVerificationSteps,
		ItemTypeCustomizing,
		ItemTypeTechnicalNote,
		ItemTypeGlossary,
		ItemTypeRunbook,
	}
}

// ItemStatus represents the review status of a knowledge item
type ItemStatus string

const (
	ItemStatusDraft    ItemStatus = "draft"
	ItemStatusApproved ItemStatus = "approved"
	ItemStatusRejected ItemStatus = "rejected"
)

// Item represents one version of a knowledge item. The ID is stable across
// versions; (ID, Version) identifies a row.
type Item struct {
	ID            string
	Scope         Scope
	TenantCode    string
	Type          ItemType
	Title         string
	Body          string
	Tags          []string
	DomainObjects []string
	Signals       Signals
	Sources       []string
	Version       int
	Status        ItemStatus
	ContentHash   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeTitle canonicalizes a title for dedup grouping (trim + case-fold).
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// ContentHash computes the content-addressing hash over (type, title, body).
func ContentHash(itemType ItemType, title, body string) string {
	sum := sha256.Sum256([]byte(string(itemType) + "|" + title + "|" + body))
	return hex.EncodeToString(sum[:])
}

// ValidateItem validates an Item instance
func ValidateItem(it *Item) error {
	if it == nil {
		return fmt.Errorf("item cannot be nil")
	}

	if it.ID == "" {
		return fmt.Errorf("item ID is required")
	}

	if err := ValidateScope(it.Scope, it.TenantCode); err != nil {
		return err
	}

	if strings.TrimSpace(it.Title) == "" {
		return fmt.Errorf("item Title is required")
	}

	if strings.TrimSpace(it.Body) == "" {
		return fmt.Errorf("item Body is required")
	}

	if !isValidItemType(it.Type) {
		return fmt.Errorf("item Type is invalid: %s", it.Type)
	}

	if !isValidItemStatus(it.Status) {
		return fmt.Errorf("item Status is invalid: %s", it.Status)
	}

	if it.Version < 1 {
		return fmt.Errorf("item Version must be >= 1")
	}

	if err := ValidateSignals(it.Signals); err != nil {
		return err
	}

	return nil
}

// ParseItemType converts a string to an ItemType, failing on unknown values.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !isValidItemType(t) {
		return "", NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid item type: %q", s))
	}
	return t, nil
}

// ParseItemStatus converts a string to an ItemStatus, failing on unknown values.
func ParseItemStatus(s string) (ItemStatus, error) {
	st := ItemStatus(s)
	if !isValidItemStatus(st) {
		return "", NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid item status: %q", s))
	}
	return st, nil
}

// isValidItemType checks if an ItemType is valid
func isValidItemType(t ItemType) bool {
	switch t {
	case ItemTypeIncidentPattern, ItemTypeRootCause, ItemTypeResolution,
		ItemTypeVerificationSteps, ItemTypeCustomizing, ItemTypeTechnicalNote,
		ItemTypeGlossary, ItemTypeRunbook:
		return true
	}
	return false
}

// isValidItemStatus checks if an ItemStatus is valid
func isValidItemStatus(s ItemStatus) bool {
	switch s {
	case ItemStatusDraft, ItemStatusApproved, ItemStatusRejected:
		return true
	}
	return false
}
