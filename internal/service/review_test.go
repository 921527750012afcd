package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

// MockIndexJobRepository is a mock implementation of IndexJobRepositoryInterface
type MockIndexJobRepository struct {
	mock.Mock
}

func (m *MockIndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

const testJobID = "9b2f2046-01f3-4f8f-9b6a-0a9f5be1c2aa"

func newReviewFixture() (*ReviewService, *MockItemRepository, *MockIngestionRepository, *MockIndexJobRepository, *testTxRunner) {
	itemRepo := new(MockItemRepository)
	ingestionRepo := new(MockIngestionRepository)
	jobRepo := new(MockIndexJobRepository)
	runner := &testTxRunner{repos: &testTxRepos{
		items:      itemRepo,
		indexJobs:  jobRepo,
		ingestions: ingestionRepo,
	}}
	uuidGen := new(MockUUIDGenerator)
	uuidGen.On("NewString").Return(testJobID)
	svc := NewReviewServiceWithUUIDGen(itemRepo, ingestionRepo, runner, uuidGen)
	return svc, itemRepo, ingestionRepo, jobRepo, runner
}

func draftItem() *domain.Item {
	return &domain.Item{
		ID:         testItemID,
		Scope:      domain.ScopeTenant,
		TenantCode: "ACME",
		Type:       domain.ItemTypeResolution,
		Title:      "Restart the EA10 consumer",
		Body:       "Stop and start the consumer, then replay the queue.",
		Version:    1,
		Status:     domain.ItemStatusDraft,
	}
}

func TestReviewApproveQueuesUpsertJob(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, jobRepo, runner := newReviewFixture()

	itemRepo.On("GetByID", mock.Anything, testItemID).Return(draftItem(), nil)
	itemRepo.On("UpdateStatus", mock.Anything, testItemID, domain.ItemStatusApproved).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.IndexJob) bool {
		return j.ItemID == testItemID && j.Op == domain.IndexJobOpUpsert && j.Status == domain.IndexJobStatusPending
	})).Return(nil)

	item, err := svc.Approve(ctx, testItemID)

	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusApproved, item.Status)
	assert.True(t, runner.called)
	itemRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestReviewRejectQueuesDeleteJob(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, jobRepo, _ := newReviewFixture()

	itemRepo.On("GetByID", mock.Anything, testItemID).Return(draftItem(), nil)
	itemRepo.On("UpdateStatus", mock.Anything, testItemID, domain.ItemStatusRejected).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.IndexJob) bool {
		return j.Op == domain.IndexJobOpDelete
	})).Return(nil)

	item, err := svc.Reject(ctx, testItemID)

	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusRejected, item.Status)
	jobRepo.AssertExpectations(t)
}

func TestReviewApproveUnknownItem(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, jobRepo, _ := newReviewFixture()

	itemRepo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrItemNotFound)

	_, err := svc.Approve(ctx, "missing")

	assert.ErrorIs(t, err, domain.ErrItemNotFound)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReviewEditRecomputesHashInPlace(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, jobRepo, _ := newReviewFixture()

	existing := draftItem()
	itemRepo.On("GetByID", mock.Anything, testItemID).Return(existing, nil)

	newBody := "Stop the consumer, clear poison messages, then restart."
	wantHash := domain.ContentHash(existing.Type, existing.Title, newBody)
	itemRepo.On("UpdateFields", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.Body == newBody && it.ContentHash == wantHash && it.Version == 1
	})).Return(nil)

	item, err := svc.Edit(ctx, EditItemInput{ItemID: testItemID, Body: &newBody})

	require.NoError(t, err)
	assert.Equal(t, wantHash, item.ContentHash)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, domain.ItemStatusDraft, item.Status)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	itemRepo.AssertExpectations(t)
}

func TestReviewEditApprovedItemDropsToDraft(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, jobRepo, _ := newReviewFixture()

	existing := draftItem()
	existing.Status = domain.ItemStatusApproved
	itemRepo.On("GetByID", mock.Anything, testItemID).Return(existing, nil)
	itemRepo.On("UpdateFields", mock.Anything, mock.Anything).Return(nil)
	itemRepo.On("UpdateStatus", mock.Anything, testItemID, domain.ItemStatusDraft).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.IndexJob) bool {
		return j.Op == domain.IndexJobOpDelete
	})).Return(nil)

	newTitle := "Restart the EA10 consumer and replay"
	item, err := svc.Edit(ctx, EditItemInput{ItemID: testItemID, Title: &newTitle})

	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusDraft, item.Status)
	itemRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestReviewEditEmptyBodyRejected(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, _, _, _ := newReviewFixture()

	itemRepo.On("GetByID", mock.Anything, testItemID).Return(draftItem(), nil)

	empty := ""
	_, err := svc.Edit(ctx, EditItemInput{ItemID: testItemID, Body: &empty})

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	itemRepo.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything)
}

func TestReviewApproveIngestion(t *testing.T) {
	ctx := context.Background()
	svc, itemRepo, ingestionRepo, jobRepo, _ := newReviewFixture()

	ing := &domain.Ingestion{
		ID:        testIngestionID,
		Scope:     domain.ScopeShared,
		InputKind: domain.InputKindText,
		InputHash: "abc",
		Status:    domain.IngestionStatusSynthesized,
	}
	ingestionRepo.On("GetByID", mock.Anything, testIngestionID).Return(ing, nil)
	ingestionRepo.On("ListItemIDs", mock.Anything, testIngestionID).Return([]string{"item-1", "item-2"}, nil)
	itemRepo.On("UpdateStatus", mock.Anything, "item-1", domain.ItemStatusApproved).Return(nil)
	itemRepo.On("UpdateStatus", mock.Anything, "item-2", domain.ItemStatusApproved).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Times(2)
	ingestionRepo.On("UpdateStatus", mock.Anything, testIngestionID, domain.IngestionStatusApproved, "", "").Return(nil)

	got, err := svc.ApproveIngestion(ctx, testIngestionID)

	require.NoError(t, err)
	assert.Equal(t, domain.IngestionStatusApproved, got.Status)
	itemRepo.AssertExpectations(t)
	jobRepo.AssertNumberOfCalls(t, "Create", 2)
}

func TestReviewIngestionInvalidTransition(t *testing.T) {
	ctx := context.Background()
	svc, _, ingestionRepo, jobRepo, _ := newReviewFixture()

	ing := &domain.Ingestion{
		ID:        testIngestionID,
		Scope:     domain.ScopeShared,
		InputKind: domain.InputKindText,
		InputHash: "abc",
		Status:    domain.IngestionStatusRejected,
	}
	ingestionRepo.On("GetByID", mock.Anything, testIngestionID).Return(ing, nil)

	_, err := svc.ApproveIngestion(ctx, testIngestionID)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeInvalidTransition, domainErr.Code)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
