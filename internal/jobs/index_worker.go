package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

const (
	// MaxRetries is the maximum number of attempts for a failed job
	MaxRetries = 3

	// claimBatchSize bounds how many jobs one poll claims
	claimBatchSize = 10
)

// IndexJobRepository defines the interface for index job persistence
type IndexJobRepository interface {
	// ClaimPending retrieves and claims pending index jobs
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)

	// UpdateStatus updates the status of an index job
	UpdateStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// ItemStore provides the item rows and the cached embedding column
type ItemStore interface {
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	GetEmbedding(ctx context.Context, id string, version int) ([]float32, error)
	UpdateEmbedding(ctx context.Context, id string, version int, embedding []float32) error
}

// Embedder generates embedding vectors
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the scoped vector collection router
type VectorIndex interface {
	EnsureCollection(ctx context.Context, scope domain.Scope, tenantCode string) error
	Upsert(ctx context.Context, item *domain.Item, vector []float32) error
	Delete(ctx context.Context, scope domain.Scope, tenantCode, itemID string) error
}

// IndexWorker processes index jobs: it embeds approved items, caches the
// vector, and keeps the vector index in sync with review decisions.
type IndexWorker struct {
	jobRepo  IndexJobRepository
	items    ItemStore
	embedder Embedder
	index    VectorIndex
}

// NewIndexWorker creates a new IndexWorker instance
func NewIndexWorker(jobRepo IndexJobRepository, items ItemStore, embedder Embedder, index VectorIndex) *IndexWorker {
	return &IndexWorker{
		jobRepo:  jobRepo,
		items:    items,
		embedder: embedder,
		index:    index,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.jobRepo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending index jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	var err error
	switch job.Op {
	case domain.IndexJobOpUpsert:
		err = w.upsertItem(ctx, job)
	case domain.IndexJobOpDelete:
		err = w.deleteItem(ctx, job)
	default:
		return fmt.Errorf("job %s has unknown op %q", job.ID, job.Op)
	}

	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

func (w *IndexWorker) upsertItem(ctx context.Context, job *domain.IndexJob) error {
	item, err := w.items.GetByID(ctx, job.ItemID)
	if err != nil {
		return err
	}

	// The review decision may have changed since the job was queued; a
	// stale upsert for a no-longer-approved item is a no-op, the paired
	// delete job handles removal.
	if item.Status != domain.ItemStatusApproved {
		log.Printf("Job %s skipped: item %s is %s", job.ID, item.ID, item.Status)
		return nil
	}

	vector, err := w.items.GetEmbedding(ctx, item.ID, item.Version)
	if err != nil {
		return err
	}
	if vector == nil {
		vector, err = w.embedder.GenerateEmbedding(ctx, item.Title+"\n\n"+item.Body)
		if err != nil {
			return err
		}
		if err := w.items.UpdateEmbedding(ctx, item.ID, item.Version, vector); err != nil {
			return err
		}
	}

	if err := w.index.EnsureCollection(ctx, item.Scope, item.TenantCode); err != nil {
		return err
	}
	return w.index.Upsert(ctx, item, vector)
}

func (w *IndexWorker) deleteItem(ctx context.Context, job *domain.IndexJob) error {
	item, err := w.items.GetByID(ctx, job.ItemID)
	if err != nil {
		return err
	}
	return w.index.Delete(ctx, item.Scope, item.TenantCode, item.ID)
}

// handleJobFailure handles a failed job with retry logic
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.jobRepo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.jobRepo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.jobRepo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
