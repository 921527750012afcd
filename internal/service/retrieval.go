package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/openai"
	"github.com/cloo-solutions/knowbase/internal/telemetry"
	"github.com/cloo-solutions/knowbase/internal/tokens"
	"github.com/cloo-solutions/knowbase/internal/vectorindex"
)

const (
	// DefaultSearchLimit is the vector search limit when the caller does
	// not specify one.
	DefaultSearchLimit = 8

	// DefaultContextTokenBudget bounds the assembled context document.
	DefaultContextTokenBudget = 6000

	// Boost added per question token that exactly matches an item tag or
	// domain object. Additive per token, deliberately uncapped.
	tagBoost          = 0.05
	domainObjectBoost = 0.08

	// truncationFloor: a section is truncated into the remaining budget
	// only when at least this many tokens remain, otherwise it is
	// dropped entirely.
	truncationFloor = 50

	// NoResultsAnswer is returned when no approved items survive
	// validation. The generation model is never called in that case.
	NoResultsAnswer = "No relevant knowledge found for this question. Try rephrasing, or ingest the missing documentation first."
)

const askSystemPrompt = `You are a support knowledge assistant. Answer the question using ONLY the knowledge base context provided. Cite the items you used by their title. If the context does not contain the answer, say so plainly instead of guessing.`

// Embedder turns text into a query vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator produces the final answer text
type AnswerGenerator interface {
	CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResult, error)
}

// VectorSearcher performs scoped similarity search
type VectorSearcher interface {
	Search(ctx context.Context, in vectorindex.SearchInput) ([]vectorindex.Hit, error)
}

// QueryLogger records completed retrieval requests
type QueryLogger interface {
	Create(ctx context.Context, entry QueryLogEntry) (string, error)
}

// AskInput is one retrieval question.
type AskInput struct {
	Question        string
	Selector        domain.ScopeSelector
	TenantCode      string
	Limit           int
	Types           []domain.ItemType
	ReasoningEffort string
}

// Source is one knowledge item that grounded an answer, in rank order.
type Source struct {
	Item  *domain.Item
	Score float64
}

// Answer is the result of one retrieval request.
type Answer struct {
	Text        string
	Sources     []Source
	ModelCalled bool
	Model       string
}

// RetrievalService answers questions over the approved knowledge base:
// embed, scoped search, fetch+validate, deterministic boost, zero-result
// gate, token-bounded context, generate.
type RetrievalService struct {
	embedder    Embedder
	searcher    VectorSearcher
	generator   AnswerGenerator
	itemRepo    ItemRepositoryInterface
	queryLog    QueryLogger
	counter     tokens.Counter
	tokenBudget int
}

type RetrievalServiceConfig struct {
	Embedder    Embedder
	Searcher    VectorSearcher
	Generator   AnswerGenerator
	ItemRepo    ItemRepositoryInterface
	QueryLog    QueryLogger    // optional
	Counter     tokens.Counter // optional, defaults to the chars/4 estimator
	TokenBudget int            // optional
}

func NewRetrievalService(cfg RetrievalServiceConfig) *RetrievalService {
	counter := cfg.Counter
	if counter == nil {
		counter = tokens.Estimator{}
	}
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = DefaultContextTokenBudget
	}
	return &RetrievalService{
		embedder:    cfg.Embedder,
		searcher:    cfg.Searcher,
		generator:   cfg.Generator,
		itemRepo:    cfg.ItemRepo,
		queryLog:    cfg.QueryLog,
		counter:     counter,
		tokenBudget: budget,
	}
}

// Ask answers one question. The zero-result gate is a success path: when
// nothing approved matches, a fixed answer is returned and the generation
// model is not called.
func (s *RetrievalService) Ask(ctx context.Context, input AskInput) (*Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Ask", telemetry.SpanAttributes{
		TenantCode: input.TenantCode,
		Operation:  "ask",
	})
	defer span.End()

	started := time.Now()

	input.TenantCode = domain.NormalizeTenantCode(input.TenantCode)
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyInput
	}
	if err := domain.ValidateSelector(input.Selector, input.TenantCode); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, domain.NewRetrievalError("failed to embed question", err)
	}

	hits, err := s.searcher.Search(ctx, vectorindex.SearchInput{
		Selector:   input.Selector,
		TenantCode: input.TenantCode,
		Vector:     vector,
		Limit:      limit,
		Types:      input.Types,
	})
	if err != nil {
		return nil, domain.NewRetrievalError("vector search failed", err)
	}

	candidates, err := s.fetchCandidates(ctx, hits)
	if err != nil {
		return nil, err
	}

	boostCandidates(candidates, question)

	if len(candidates) == 0 {
		answer := &Answer{Text: NoResultsAnswer, Sources: []Source{}, ModelCalled: false}
		s.logQuery(ctx, input, question, answer, time.Since(started))
		return answer, nil
	}

	contextDoc, included := s.buildContext(candidates)

	result, err := s.generator.CreateCompletion(ctx, openai.CompletionRequest{
		System:          askSystemPrompt,
		User:            fmt.Sprintf("Question:\n%s\n\nKnowledge base context:\n%s", question, contextDoc),
		ReasoningEffort: input.ReasoningEffort,
	})
	if err != nil {
		return nil, domain.NewRetrievalError("answer generation failed", err)
	}

	answer := &Answer{
		Text:        result.Content,
		Sources:     included,
		ModelCalled: true,
		Model:       result.Model,
	}
	s.logQuery(ctx, input, question, answer, time.Since(started))
	return answer, nil
}

type candidate struct {
	item  *domain.Item
	score float64
}

// fetchCandidates re-fetches every hit from the store and drops anything
// missing or not approved. The relational store is authoritative over the
// index's view of status.
func (s *RetrievalService) fetchCandidates(ctx context.Context, hits []vectorindex.Hit) ([]*candidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	items, err := s.itemRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	candidates := make([]*candidate, 0, len(hits))
	for _, h := range hits {
		it, ok := byID[h.ID]
		if !ok || it.Status != domain.ItemStatusApproved {
			continue
		}
		candidates = append(candidates, &candidate{item: it, score: float64(h.Score)})
	}
	return candidates, nil
}

// boostCandidates applies the deterministic lexical boost and re-sorts.
// The sort is stable so candidates untouched by the boost keep their
// similarity order.
func boostCandidates(candidates []*candidate, question string) {
	qtokens := questionTokens(question)
	for _, c := range candidates {
		for _, tok := range qtokens {
			for _, tag := range c.item.Tags {
				if tag == tok {
					c.score += tagBoost
				}
			}
			for _, obj := range c.item.DomainObjects {
				if obj == tok {
					c.score += domainObjectBoost
				}
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// questionTokens extracts the uppercase alphanumeric tokens (transaction
// codes, object names like EA10 or IDEX) that drive the boost. '/' stays
// part of a token so namespaced object names like /IDXGC/PDOCMON01
// survive intact.
func questionTokens(question string) []string {
	fields := strings.FieldsFunc(question, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/'
	})

	var out []string
	for _, f := range fields {
		f = strings.TrimRight(f, "/")
		if len(f) < 2 || f != strings.ToUpper(f) {
			continue
		}
		hasLetter := false
		for _, r := range f {
			if unicode.IsLetter(r) {
				hasLetter = true
				break
			}
		}
		if hasLetter {
			out = append(out, f)
		}
	}
	return out
}

// buildContext assembles the delimited context document in rank order,
// stopping at the token budget. An oversized section is truncated into the
// remaining budget only when more than truncationFloor tokens remain.
func (s *RetrievalService) buildContext(candidates []*candidate) (string, []Source) {
	var b strings.Builder
	var included []Source
	used := 0

	for i, c := range candidates {
		section := formatSection(i+1, c)
		n := s.counter.Count(section)

		if used+n > s.tokenBudget {
			remaining := s.tokenBudget - used
			if remaining > truncationFloor {
				truncated := s.counter.Truncate(section, remaining)
				b.WriteString(truncated)
				included = append(included, Source{Item: c.item, Score: c.score})
			}
			break
		}

		b.WriteString(section)
		used += n
		included = append(included, Source{Item: c.item, Score: c.score})
	}

	return b.String(), included
}

func formatSection(index int, c *candidate) string {
	return fmt.Sprintf(
		"--- Item %d ---\nTitle: %s\nType: %s\nTags: %s\nDomain objects: %s\nScore: %.4f\nID: %s\n\n%s\n\n",
		index,
		c.item.Title,
		c.item.Type,
		strings.Join(c.item.Tags, ", "),
		strings.Join(c.item.DomainObjects, ", "),
		c.score,
		c.item.ID,
		c.item.Body,
	)
}

// logQuery is best effort: a logging failure never fails the request.
func (s *RetrievalService) logQuery(ctx context.Context, input AskInput, question string, answer *Answer, elapsed time.Duration) {
	if s.queryLog == nil {
		return
	}
	sources := make([]string, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		sources = append(sources, src.Item.ID)
	}
	_, err := s.queryLog.Create(ctx, QueryLogEntry{
		Question:    question,
		Selector:    input.Selector,
		TenantCode:  input.TenantCode,
		HitCount:    len(answer.Sources),
		ModelCalled: answer.ModelCalled,
		Model:       answer.Model,
		Sources:     sources,
		DurationMs:  elapsed.Milliseconds(),
	})
	if err != nil {
		log.Printf("failed to write query log: %v", err)
	}
}
