// Package synthesis turns extracted source text into draft knowledge items
// via structured LLM output, with validation and bounded retries.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/openai"
)

// DefaultMaxRetries bounds how often a failed validation is fed back to the
// model. Total attempts are 1 + MaxRetries: one retry by default.
const DefaultMaxRetries = 1

const systemPrompt = `You distill support and operations source material into reusable knowledge items.

Each item must be self-contained and reusable outside the original incident. Split the input into as many focused items as it supports. Use these types:

- incident-pattern: a recognizable failure symptom and its context
- root-cause: the underlying cause of a failure
- resolution: concrete steps that fixed a problem
- verification-steps: how to confirm a fix or a healthy state
- customizing: configuration or customizing knowledge
- technical-note: technical background worth keeping
- glossary: a term definition
- runbook: an operational procedure

Put transaction codes, error codes, and system identifiers into domain_objects. Put searchable keywords into tags. Put structured machine-readable facts (codes, thresholds, durations) into signals.`

// Generator produces a structured completion. *openai.Client satisfies it.
type Generator interface {
	CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResult, error)
}

// Draft is a synthesized knowledge item before it is stored.
type Draft struct {
	Type          domain.ItemType
	Title         string
	Body          string
	Tags          []string
	DomainObjects []string
	Signals       domain.Signals
}

// Input carries one synthesis request.
type Input struct {
	Text            string
	ReasoningEffort string
}

// Output carries the validated drafts of a successful synthesis.
type Output struct {
	Drafts    []Draft
	ModelUsed string
	Attempts  int
}

// Pipeline runs synthesis with validation feedback retries.
type Pipeline struct {
	gen        Generator
	maxRetries int
}

func NewPipeline(gen Generator) *Pipeline {
	return NewPipelineWithRetries(gen, DefaultMaxRetries)
}

func NewPipelineWithRetries(gen Generator, maxRetries int) *Pipeline {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Pipeline{gen: gen, maxRetries: maxRetries}
}

// Run synthesizes drafts from text. Validation failures are fed back to the
// model up to maxRetries times; API failures abort immediately.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Output, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domain.ErrEmptyInput
	}

	maxAttempts := 1 + p.maxRetries
	var lastErrs []string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := p.gen.CreateCompletion(ctx, openai.CompletionRequest{
			System:          systemPrompt,
			User:            buildUserPrompt(in.Text, lastErrs),
			SchemaName:      SchemaName,
			Schema:          ItemsSchema,
			ReasoningEffort: in.ReasoningEffort,
		})
		if err != nil {
			return nil, fmt.Errorf("synthesis attempt %d: %w", attempt, err)
		}

		drafts, errs := parseAndValidate(result.Content)
		if len(errs) == 0 {
			return &Output{
				Drafts:    drafts,
				ModelUsed: result.Model,
				Attempts:  attempt,
			}, nil
		}
		lastErrs = errs
	}

	return nil, domain.NewSynthesisError(maxAttempts, lastErrs)
}

func buildUserPrompt(text string, prevErrs []string) string {
	if len(prevErrs) == 0 {
		return text
	}

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\nYour previous response failed validation. Fix these problems and respond again:\n")
	for _, e := range prevErrs {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return sb.String()
}

type candidateItem struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Tags          []string       `json:"tags"`
	DomainObjects []string       `json:"domain_objects"`
	Signals       map[string]any `json:"signals"`
}

type candidatePayload struct {
	Items []candidateItem `json:"items"`
}

// parseAndValidate checks every candidate independently so the model gets
// the complete error list, not just the first failure.
func parseAndValidate(content string) ([]Draft, []string) {
	var payload candidatePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, []string{fmt.Sprintf("response is not valid JSON: %v", err)}
	}

	if len(payload.Items) == 0 {
		return nil, []string{"items: at least one knowledge item is required"}
	}

	var drafts []Draft
	var errs []string
	for i, c := range payload.Items {
		itemType, err := domain.ParseItemType(c.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("items[%d].type: unknown type %q", i, c.Type))
		}
		if strings.TrimSpace(c.Title) == "" {
			errs = append(errs, fmt.Sprintf("items[%d].title: must not be empty", i))
		}
		if strings.TrimSpace(c.Body) == "" {
			errs = append(errs, fmt.Sprintf("items[%d].body: must not be empty", i))
		}
		if err := domain.ValidateSignals(c.Signals); err != nil {
			errs = append(errs, fmt.Sprintf("items[%d].signals: %v", i, err))
		}
		if len(errs) > 0 {
			continue
		}

		drafts = append(drafts, Draft{
			Type:          itemType,
			Title:         strings.TrimSpace(c.Title),
			Body:          strings.TrimSpace(c.Body),
			Tags:          c.Tags,
			DomainObjects: c.DomainObjects,
			Signals:       c.Signals,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return drafts, nil
}
