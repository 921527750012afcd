// Package extract normalizes heterogeneous input (pasted text, PDF, DOCX)
// into plain text plus a content hash used for ingestion dedup and
// traceability.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

// Result is the normalized output of an extraction.
type Result struct {
	Text      string
	InputHash string
	InputKind domain.InputKind
	InputName string
}

// Text extracts from free (pasted) text. The label is an optional display
// name carried to the ingestion record.
func Text(raw, label string) (*Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, domain.ErrEmptyInput
	}

	return &Result{
		Text:      text,
		InputHash: hashText(text),
		InputKind: domain.InputKindText,
		InputName: label,
	}, nil
}

// hashText computes sha256 over the extracted text. Identical input always
// yields the identical hash.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// joinParts concatenates page/paragraph texts with blank-line separators.
func joinParts(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
