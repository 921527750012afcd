package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/extract"
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/storage"
	"github.com/cloo-solutions/knowbase/internal/synthesis"
	"github.com/cloo-solutions/knowbase/internal/telemetry"
)

// SynthesisRunner defines the interface for the synthesis pipeline
type SynthesisRunner interface {
	Run(ctx context.Context, input synthesis.Input) (*synthesis.Output, error)
}

// SourceArchiver stores the raw bytes of ingested documents
type SourceArchiver interface {
	PutObject(ctx context.Context, key string, contentType string, body []byte) error
}

// TenantDirectory resolves registered tenants
type TenantDirectory interface {
	GetByCode(ctx context.Context, code string) (*domain.Tenant, error)
}

// IngestInput describes one ingestion request. Text carries raw text for
// kind "text"; FileBytes carries the uploaded document for pdf/docx.
type IngestInput struct {
	Scope           domain.Scope
	TenantCode      string
	Kind            domain.InputKind
	Name            string
	Text            string
	FileBytes       []byte
	ReasoningEffort string
}

// IngestedItem summarizes one draft produced by an ingestion.
type IngestedItem struct {
	Item    *domain.Item
	Outcome UpsertOutcome
}

// IngestOutput is the result of a completed ingestion.
type IngestOutput struct {
	Ingestion *domain.Ingestion
	Items     []IngestedItem
	// Duplicate is set when an earlier ingestion in the same scope saw
	// identical extracted text. The run still proceeds; the store makes
	// repeated upserts idempotent.
	Duplicate bool
}

// IngestService runs the extraction -> synthesis -> store flow and tracks
// each attempt as an ingestion record.
type IngestService struct {
	ingestionRepo IngestionRepositoryInterface
	store         *StoreService
	pipeline      SynthesisRunner
	tenants       TenantDirectory
	archive       SourceArchiver
	uuidGen       UUIDGenerator
}

type IngestServiceConfig struct {
	IngestionRepo IngestionRepositoryInterface
	Store         *StoreService
	Pipeline      SynthesisRunner
	Tenants       TenantDirectory
	Archive       SourceArchiver // optional
	UUIDGen       UUIDGenerator  // optional
}

func NewIngestService(cfg IngestServiceConfig) *IngestService {
	uuidGen := cfg.UUIDGen
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &IngestService{
		ingestionRepo: cfg.IngestionRepo,
		store:         cfg.Store,
		pipeline:      cfg.Pipeline,
		tenants:       cfg.Tenants,
		archive:       cfg.Archive,
		uuidGen:       uuidGen,
	}
}

// Ingest extracts text from the input, synthesizes draft knowledge items,
// and stores them. The ingestion record is created before synthesis so
// failed attempts remain visible.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		TenantCode: input.TenantCode,
		Scope:      string(input.Scope),
		Operation:  "ingest",
	})
	defer span.End()

	input.TenantCode = domain.NormalizeTenantCode(input.TenantCode)
	if err := s.validateScope(ctx, input.Scope, input.TenantCode); err != nil {
		return nil, err
	}

	result, err := s.extractInput(input)
	if err != nil {
		return nil, err
	}

	duplicate, err := s.checkDuplicate(ctx, input.Scope, input.TenantCode, result.InputHash)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ing := &domain.Ingestion{
		ID:              s.uuidGen.NewString(),
		Scope:           input.Scope,
		TenantCode:      input.TenantCode,
		InputKind:       result.InputKind,
		InputHash:       result.InputHash,
		InputName:       result.InputName,
		Status:          domain.IngestionStatusDraft,
		ReasoningEffort: input.ReasoningEffort,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := domain.ValidateIngestion(ing); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid ingestion", err)
	}
	if err := s.ingestionRepo.Create(ctx, ing); err != nil {
		return nil, err
	}

	s.archiveSource(ctx, input, result)

	out, err := s.pipeline.Run(ctx, synthesis.Input{
		Text:            result.Text,
		ReasoningEffort: input.ReasoningEffort,
	})
	if err != nil {
		if uerr := s.ingestionRepo.UpdateStatus(ctx, ing.ID, domain.IngestionStatusFailed, "", input.ReasoningEffort); uerr != nil {
			log.Printf("failed to mark ingestion %s failed: %v", ing.ID, uerr)
		}
		ing.Status = domain.IngestionStatusFailed
		return nil, err
	}

	items := make([]IngestedItem, 0, len(out.Drafts))
	itemIDs := make([]string, 0, len(out.Drafts))
	for _, draft := range out.Drafts {
		item, outcome, err := s.store.Upsert(ctx, UpsertInput{
			Scope:         input.Scope,
			TenantCode:    input.TenantCode,
			Type:          draft.Type,
			Title:         draft.Title,
			Body:          draft.Body,
			Tags:          draft.Tags,
			DomainObjects: draft.DomainObjects,
			Signals:       draft.Signals,
			Sources:       []string{result.InputName},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store draft %q: %w", draft.Title, err)
		}
		items = append(items, IngestedItem{Item: item, Outcome: outcome})
		itemIDs = append(itemIDs, item.ID)
	}

	if err := s.ingestionRepo.AddItems(ctx, ing.ID, itemIDs); err != nil {
		return nil, err
	}
	if err := s.ingestionRepo.UpdateStatus(ctx, ing.ID, domain.IngestionStatusSynthesized, out.ModelUsed, input.ReasoningEffort); err != nil {
		return nil, err
	}
	ing.Status = domain.IngestionStatusSynthesized
	ing.ModelUsed = out.ModelUsed

	return &IngestOutput{
		Ingestion: ing,
		Items:     items,
		Duplicate: duplicate,
	}, nil
}

func (s *IngestService) validateScope(ctx context.Context, scope domain.Scope, tenantCode string) error {
	if err := domain.ValidateScope(scope, tenantCode); err != nil {
		return err
	}
	if scope == domain.ScopeTenant && s.tenants != nil {
		if _, err := s.tenants.GetByCode(ctx, tenantCode); err != nil {
			if errors.Is(err, domain.ErrTenantNotFound) {
				return domain.NewDomainError(domain.ErrCodeScope, fmt.Sprintf("unknown tenant %q", tenantCode))
			}
			return err
		}
	}
	return nil
}

func (s *IngestService) extractInput(input IngestInput) (*extract.Result, error) {
	switch input.Kind {
	case domain.InputKindText:
		return extract.Text(input.Text, input.Name)
	case domain.InputKindPDF, domain.InputKindDOCX:
		return s.extractFile(input)
	default:
		return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("unsupported input kind %q", input.Kind))
	}
}

// extractFile spools the uploaded bytes to a temp file so the extractors
// can work on a path.
func (s *IngestService) extractFile(input IngestInput) (*extract.Result, error) {
	if len(input.FileBytes) == 0 {
		return nil, domain.ErrEmptyInput
	}

	tmp, err := os.CreateTemp("", "knowbase-ingest-*"+filepath.Ext(input.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(input.FileBytes); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}

	var result *extract.Result
	switch input.Kind {
	case domain.InputKindPDF:
		result, err = extract.PDF(tmp.Name())
	case domain.InputKindDOCX:
		result, err = extract.DOCX(tmp.Name())
	}
	if err != nil {
		return nil, err
	}
	result.InputName = input.Name
	return result, nil
}

func (s *IngestService) checkDuplicate(ctx context.Context, scope domain.Scope, tenantCode, inputHash string) (bool, error) {
	prior, err := s.ingestionRepo.FindByInputHash(ctx, scope, tenantCode, inputHash)
	if err != nil {
		return false, err
	}
	for _, p := range prior {
		if p.Status != domain.IngestionStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

// archiveSource is best effort: a storage outage must not block ingestion.
func (s *IngestService) archiveSource(ctx context.Context, input IngestInput, result *extract.Result) {
	if s.archive == nil || len(input.FileBytes) == 0 {
		return
	}
	key := storage.ArchiveKey(string(input.Scope), result.InputHash)
	contentType := "application/octet-stream"
	switch input.Kind {
	case domain.InputKindPDF:
		contentType = "application/pdf"
	case domain.InputKindDOCX:
		contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if err := s.archive.PutObject(ctx, key, contentType, input.FileBytes); err != nil {
		log.Printf("failed to archive source %s: %v", key, err)
	}
}

// GetIngestion returns one ingestion record with its produced item IDs.
func (s *IngestService) GetIngestion(ctx context.Context, id string) (*domain.Ingestion, []string, error) {
	ing, err := s.ingestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	itemIDs, err := s.ingestionRepo.ListItemIDs(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ing, itemIDs, nil
}

type ListIngestionsInput struct {
	Scope      domain.Scope
	TenantCode string
	Cursor     string
	Limit      int
}

// ListIngestions pages over ingestion records in a scope, newest first.
func (s *IngestService) ListIngestions(ctx context.Context, input ListIngestionsInput) (*IngestionPageResult, error) {
	input.TenantCode = domain.NormalizeTenantCode(input.TenantCode)

	var cursor *pagination.Cursor
	if input.Cursor != "" {
		decoded, err := pagination.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
		}
		cursor = decoded
	}

	return s.ingestionRepo.ListWithCursor(ctx, input.Scope, input.TenantCode, cursor, input.Limit)
}
