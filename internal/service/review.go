package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/telemetry"
)

// ReviewService applies human review decisions to draft items. Approval
// and rejection pair the status change with an index job in one
// transaction, so the vector index can never drift silently.
type ReviewService struct {
	itemRepo      ItemRepositoryInterface
	ingestionRepo IngestionRepositoryInterface
	txRunner      TxRunner
	uuidGen       UUIDGenerator
}

func NewReviewService(itemRepo ItemRepositoryInterface, ingestionRepo IngestionRepositoryInterface, txRunner TxRunner) *ReviewService {
	return &ReviewService{
		itemRepo:      itemRepo,
		ingestionRepo: ingestionRepo,
		txRunner:      txRunner,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

func NewReviewServiceWithUUIDGen(itemRepo ItemRepositoryInterface, ingestionRepo IngestionRepositoryInterface, txRunner TxRunner, uuidGen UUIDGenerator) *ReviewService {
	return &ReviewService{
		itemRepo:      itemRepo,
		ingestionRepo: ingestionRepo,
		txRunner:      txRunner,
		uuidGen:       uuidGen,
	}
}

// Approve marks the latest version of an item approved and queues it for
// indexing.
func (s *ReviewService) Approve(ctx context.Context, itemID string) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.Approve", telemetry.SpanAttributes{
		ItemID:    itemID,
		Operation: "approve",
	})
	defer span.End()

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Items().UpdateStatus(ctx, itemID, domain.ItemStatusApproved); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, s.newJob(itemID, domain.IndexJobOpUpsert))
	})
	if err != nil {
		return nil, err
	}

	item.Status = domain.ItemStatusApproved
	return item, nil
}

// Reject marks the latest version of an item rejected and queues removal
// of any previously indexed point.
func (s *ReviewService) Reject(ctx context.Context, itemID string) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.Reject", telemetry.SpanAttributes{
		ItemID:    itemID,
		Operation: "reject",
	})
	defer span.End()

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Items().UpdateStatus(ctx, itemID, domain.ItemStatusRejected); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, s.newJob(itemID, domain.IndexJobOpDelete))
	})
	if err != nil {
		return nil, err
	}

	item.Status = domain.ItemStatusRejected
	return item, nil
}

// EditItemInput carries partial field updates. Nil fields are unchanged.
type EditItemInput struct {
	ItemID        string
	Title         *string
	Body          *string
	Tags          *[]string
	DomainObjects *[]string
	Signals       *domain.Signals
}

// Edit rewrites fields of the latest item version in place, recomputing
// the content hash without bumping the version. An approved item drops
// back to draft and must be approved again before it is re-indexed.
func (s *ReviewService) Edit(ctx context.Context, input EditItemInput) (*domain.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.Edit", telemetry.SpanAttributes{
		ItemID:    input.ItemID,
		Operation: "edit",
	})
	defer span.End()

	item, err := s.itemRepo.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		item.Title = *input.Title
	}
	if input.Body != nil {
		item.Body = *input.Body
	}
	if input.Tags != nil {
		item.Tags = *input.Tags
	}
	if input.DomainObjects != nil {
		item.DomainObjects = *input.DomainObjects
	}
	if input.Signals != nil {
		item.Signals = *input.Signals
	}

	wasApproved := item.Status == domain.ItemStatusApproved
	item.ContentHash = domain.ContentHash(item.Type, item.Title, item.Body)
	item.UpdatedAt = time.Now().UTC()
	if err := domain.ValidateItem(item); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid item", err)
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Items().UpdateFields(ctx, item); err != nil {
			return err
		}
		if wasApproved {
			if err := repos.Items().UpdateStatus(ctx, item.ID, domain.ItemStatusDraft); err != nil {
				return err
			}
			// The stale point is removed now; re-approval re-indexes
			// the edited content.
			return repos.IndexJobs().Create(ctx, s.newJob(item.ID, domain.IndexJobOpDelete))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wasApproved {
		item.Status = domain.ItemStatusDraft
	}
	return item, nil
}

// ApproveIngestion approves every item an ingestion produced and
// transitions the record.
func (s *ReviewService) ApproveIngestion(ctx context.Context, ingestionID string) (*domain.Ingestion, error) {
	return s.reviewIngestion(ctx, ingestionID, domain.IngestionStatusApproved)
}

// RejectIngestion rejects every item an ingestion produced and
// transitions the record.
func (s *ReviewService) RejectIngestion(ctx context.Context, ingestionID string) (*domain.Ingestion, error) {
	return s.reviewIngestion(ctx, ingestionID, domain.IngestionStatusRejected)
}

func (s *ReviewService) reviewIngestion(ctx context.Context, ingestionID string, to domain.IngestionStatus) (*domain.Ingestion, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.ReviewIngestion", telemetry.SpanAttributes{
		IngestionID: ingestionID,
		Operation:   "review_ingestion",
	})
	defer span.End()

	ing, err := s.ingestionRepo.GetByID(ctx, ingestionID)
	if err != nil {
		return nil, err
	}
	if err := domain.TransitionIngestion(ing, to); err != nil {
		return nil, err
	}

	itemIDs, err := s.ingestionRepo.ListItemIDs(ctx, ingestionID)
	if err != nil {
		return nil, err
	}

	itemStatus := domain.ItemStatusApproved
	jobOp := domain.IndexJobOpUpsert
	if to == domain.IngestionStatusRejected {
		itemStatus = domain.ItemStatusRejected
		jobOp = domain.IndexJobOpDelete
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, itemID := range itemIDs {
			if err := repos.Items().UpdateStatus(ctx, itemID, itemStatus); err != nil {
				return err
			}
			if err := repos.IndexJobs().Create(ctx, s.newJob(itemID, jobOp)); err != nil {
				return err
			}
		}
		return repos.Ingestions().UpdateStatus(ctx, ingestionID, to, "", "")
	})
	if err != nil {
		return nil, err
	}

	return ing, nil
}

func (s *ReviewService) newJob(itemID string, op domain.IndexJobOp) *domain.IndexJob {
	return &domain.IndexJob{
		ID:        s.uuidGen.NewString(),
		ItemID:    itemID,
		Op:        op,
		Status:    domain.IndexJobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
