package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/telemetry"
)

// ItemRepositoryInterface defines the repository interface for knowledge item persistence
type ItemRepositoryInterface interface {
	Insert(ctx context.Context, it *domain.Item) error
	GetLatestByGroup(ctx context.Context, scope domain.Scope, tenantCode string, itemType domain.ItemType, normalizedTitle string) (*domain.Item, error)
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Item, error)
	GetVersion(ctx context.Context, id string, version int) (*domain.Item, error)
	ListVersions(ctx context.Context, id string) ([]*domain.Item, error)
	UpdateStatus(ctx context.Context, id string, status domain.ItemStatus) error
	UpdateFields(ctx context.Context, it *domain.Item) error
	ListWithCursor(ctx context.Context, filter ItemFilter, cursor *pagination.Cursor, limit int) (*ItemPageResult, error)
}

// IndexJobRepositoryInterface defines the repository interface for index job persistence
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
}

// IngestionRepositoryInterface defines the repository interface for ingestion records
type IngestionRepositoryInterface interface {
	Create(ctx context.Context, ing *domain.Ingestion) error
	GetByID(ctx context.Context, id string) (*domain.Ingestion, error)
	FindByInputHash(ctx context.Context, scope domain.Scope, tenantCode, inputHash string) ([]*domain.Ingestion, error)
	UpdateStatus(ctx context.Context, id string, status domain.IngestionStatus, modelUsed, reasoningEffort string) error
	AddItems(ctx context.Context, ingestionID string, itemIDs []string) error
	ListItemIDs(ctx context.Context, ingestionID string) ([]string, error)
	ListWithCursor(ctx context.Context, scope domain.Scope, tenantCode string, cursor *pagination.Cursor, limit int) (*IngestionPageResult, error)
}

// ItemFilter narrows item listings. Zero values mean no filter.
type ItemFilter struct {
	Scope      domain.Scope
	TenantCode string
	Status     domain.ItemStatus
	Type       domain.ItemType
}

type ItemPageResult struct {
	Items      []*domain.Item
	NextCursor string
	HasMore    bool
}

type IngestionPageResult struct {
	Items      []*domain.Ingestion
	NextCursor string
	HasMore    bool
}

// ItemWithEmbedding pairs the latest approved version of an item with its
// cached vector, for bulk reindexing.
type ItemWithEmbedding struct {
	Item      *domain.Item
	Embedding []float32
}

// QueryLogEntry records one retrieval request for evaluation and tuning.
type QueryLogEntry struct {
	Question    string
	Selector    domain.ScopeSelector
	TenantCode  string
	HitCount    int
	ModelCalled bool
	Model       string
	Sources     []string
	DurationMs  int64
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// UpsertOutcome classifies what an upsert did.
type UpsertOutcome string

const (
	// OutcomeCreated: a new dedup group, stored as version 1.
	OutcomeCreated UpsertOutcome = "created"
	// OutcomeNewVersion: same group, different content, version bumped.
	OutcomeNewVersion UpsertOutcome = "new_version"
	// OutcomeUnchanged: same group, identical content hash, nothing written.
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// UpsertInput describes one candidate item to store.
type UpsertInput struct {
	Scope         domain.Scope
	TenantCode    string
	Type          domain.ItemType
	Title         string
	Body          string
	Tags          []string
	DomainObjects []string
	Signals       domain.Signals
	Sources       []string
}

// StoreService owns the content-addressed versioning of knowledge items.
// The dedup group is (scope, tenant, type, normalized title); within a
// group, content decides whether a write is a no-op or a new version.
type StoreService struct {
	itemRepo ItemRepositoryInterface
	uuidGen  UUIDGenerator
}

func NewStoreService(itemRepo ItemRepositoryInterface) *StoreService {
	return &StoreService{
		itemRepo: itemRepo,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

func NewStoreServiceWithUUIDGen(itemRepo ItemRepositoryInterface, uuidGen UUIDGenerator) *StoreService {
	return &StoreService{
		itemRepo: itemRepo,
		uuidGen:  uuidGen,
	}
}

// Upsert stores a candidate item with dedup and versioning. Concurrent
// writers that race on the same group are resolved by the unique version
// index plus one retry against the re-read group head.
func (s *StoreService) Upsert(ctx context.Context, input UpsertInput) (*domain.Item, UpsertOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "StoreService.Upsert", telemetry.SpanAttributes{
		TenantCode: input.TenantCode,
		Scope:      string(input.Scope),
		Operation:  "upsert",
	})
	defer span.End()

	input.TenantCode = domain.NormalizeTenantCode(input.TenantCode)
	if err := domain.ValidateScope(input.Scope, input.TenantCode); err != nil {
		return nil, "", err
	}

	item, outcome, err := s.tryUpsert(ctx, input)
	if errors.Is(err, domain.ErrVersionConflict) {
		// Someone else won the version race. The group now has a new
		// head, so re-evaluate against it exactly once.
		item, outcome, err = s.tryUpsert(ctx, input)
	}
	return item, outcome, err
}

func (s *StoreService) tryUpsert(ctx context.Context, input UpsertInput) (*domain.Item, UpsertOutcome, error) {
	now := time.Now().UTC()
	normalizedTitle := domain.NormalizeTitle(input.Title)
	hash := domain.ContentHash(input.Type, input.Title, input.Body)

	latest, err := s.itemRepo.GetLatestByGroup(ctx, input.Scope, input.TenantCode, input.Type, normalizedTitle)
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		item := s.buildItem(input, s.uuidGen.NewString(), 1, hash, now)
		if err := domain.ValidateItem(item); err != nil {
			return nil, "", err
		}
		if err := s.itemRepo.Insert(ctx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeCreated, nil

	case err != nil:
		return nil, "", err

	case latest.ContentHash == hash:
		return latest, OutcomeUnchanged, nil

	default:
		item := s.buildItem(input, latest.ID, latest.Version+1, hash, now)
		item.CreatedAt = latest.CreatedAt
		if err := domain.ValidateItem(item); err != nil {
			return nil, "", err
		}
		if err := s.itemRepo.Insert(ctx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeNewVersion, nil
	}
}

func (s *StoreService) buildItem(input UpsertInput, id string, version int, hash string, now time.Time) *domain.Item {
	return &domain.Item{
		ID:            id,
		Scope:         input.Scope,
		TenantCode:    input.TenantCode,
		Type:          input.Type,
		Title:         input.Title,
		Body:          input.Body,
		Tags:          input.Tags,
		DomainObjects: input.DomainObjects,
		Signals:       input.Signals,
		Sources:       input.Sources,
		Version:       version,
		Status:        domain.ItemStatusDraft,
		ContentHash:   hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GetByID returns the latest version of an item.
func (s *StoreService) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "StoreService.GetByID", telemetry.SpanAttributes{
		ItemID:    id,
		Operation: "get",
	})
	defer span.End()

	return s.itemRepo.GetByID(ctx, id)
}

// GetVersion returns one specific version of an item.
func (s *StoreService) GetVersion(ctx context.Context, id string, version int) (*domain.Item, error) {
	return s.itemRepo.GetVersion(ctx, id, version)
}

// ListVersions returns all versions of an item, newest first.
func (s *StoreService) ListVersions(ctx context.Context, id string) ([]*domain.Item, error) {
	return s.itemRepo.ListVersions(ctx, id)
}

type ListItemsInput struct {
	Filter ItemFilter
	Cursor string
	Limit  int
}

// List pages over latest-version items.
func (s *StoreService) List(ctx context.Context, input ListItemsInput) (*ItemPageResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "StoreService.List", telemetry.SpanAttributes{
		TenantCode: input.Filter.TenantCode,
		Operation:  "list",
	})
	defer span.End()

	var cursor *pagination.Cursor
	if input.Cursor != "" {
		decoded, err := pagination.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
		}
		cursor = decoded
	}

	return s.itemRepo.ListWithCursor(ctx, input.Filter, cursor, input.Limit)
}
