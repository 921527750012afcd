//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/testutil"
)

func newIndexJobFixture(op domain.IndexJobOp) *domain.IndexJob {
	return &domain.IndexJob{
		ID:        uuid.NewString(),
		ItemID:    uuid.NewString(),
		Op:        op,
		Status:    domain.IndexJobStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestIndexJobRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewIndexJobRepository(pool)

	job := newIndexJobFixture(domain.IndexJobOpUpsert)
	require.NoError(t, repo.Create(ctx, job))

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ItemID, retrieved.ItemID)
	assert.Equal(t, domain.IndexJobOpUpsert, retrieved.Op)
	assert.Equal(t, domain.IndexJobStatusPending, retrieved.Status)
	assert.Zero(t, retrieved.Retries)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestIndexJobRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewIndexJobRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	oldest := newIndexJobFixture(domain.IndexJobOpUpsert)
	oldest.CreatedAt = base.Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, oldest))

	newer := newIndexJobFixture(domain.IndexJobOpDelete)
	newer.CreatedAt = base
	require.NoError(t, repo.Create(ctx, newer))

	claimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, oldest.ID, claimed[0].ID)

	// Claimed jobs are now processing and not claimable again.
	retrieved, err := repo.GetByID(ctx, oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusProcessing, retrieved.Status)

	claimed, err = repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, newer.ID, claimed[0].ID)
}

func TestIndexJobRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewIndexJobRepository(pool)

	job := newIndexJobFixture(domain.IndexJobOpUpsert)
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""))

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusCompleted, retrieved.Status)
	assert.NotNil(t, retrieved.ProcessedAt)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, "qdrant unavailable"))

	retrieved, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "qdrant unavailable", retrieved.Error)
}

func TestIndexJobRepository_IncrementRetries(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewIndexJobRepository(pool)

	job := newIndexJobFixture(domain.IndexJobOpUpsert)
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.IncrementRetries(ctx, job.ID))
	require.NoError(t, repo.IncrementRetries(ctx, job.ID))

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, retrieved.Retries)
}
