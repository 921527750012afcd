package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/pagination"
)

// MockItemRepository is a mock implementation of ItemRepositoryInterface
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Insert(ctx context.Context, it *domain.Item) error {
	args := m.Called(ctx, it)
	return args.Error(0)
}

func (m *MockItemRepository) GetLatestByGroup(ctx context.Context, scope domain.Scope, tenantCode string, itemType domain.ItemType, normalizedTitle string) (*domain.Item, error) {
	args := m.Called(ctx, scope, tenantCode, itemType, normalizedTitle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockItemRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Item, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Item), args.Error(1)
}

func (m *MockItemRepository) GetVersion(ctx context.Context, id string, version int) (*domain.Item, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockItemRepository) ListVersions(ctx context.Context, id string) ([]*domain.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Item), args.Error(1)
}

func (m *MockItemRepository) UpdateStatus(ctx context.Context, id string, status domain.ItemStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockItemRepository) UpdateFields(ctx context.Context, it *domain.Item) error {
	args := m.Called(ctx, it)
	return args.Error(0)
}

func (m *MockItemRepository) ListWithCursor(ctx context.Context, filter ItemFilter, cursor *pagination.Cursor, limit int) (*ItemPageResult, error) {
	args := m.Called(ctx, filter, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ItemPageResult), args.Error(1)
}

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	mock.Mock
}

func (m *MockUUIDGenerator) NewString() string {
	args := m.Called()
	return args.String(0)
}

const testItemID = "550e8400-e29b-41d4-a716-446655440000"

func validUpsertInput() UpsertInput {
	return UpsertInput{
		Scope:         domain.ScopeTenant,
		TenantCode:    "ACME",
		Type:          domain.ItemTypeIncidentPattern,
		Title:         "IDEX timeout during settlement",
		Body:          "When IDEX times out during settlement, check the EA10 queue.",
		Tags:          []string{"IDEX", "SETTLEMENT"},
		DomainObjects: []string{"EA10"},
		Sources:       []string{"runbook.pdf"},
	}
}

func TestStoreServiceUpsertCreatesNewItem(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	mockUUID := new(MockUUIDGenerator)
	svc := NewStoreServiceWithUUIDGen(mockRepo, mockUUID)

	input := validUpsertInput()
	mockUUID.On("NewString").Return(testItemID)
	mockRepo.On("GetLatestByGroup", mock.Anything, domain.ScopeTenant, "ACME", domain.ItemTypeIncidentPattern, domain.NormalizeTitle(input.Title)).
		Return(nil, domain.ErrItemNotFound)
	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.ID == testItemID && it.Version == 1 && it.Status == domain.ItemStatusDraft
	})).Return(nil)

	item, outcome, err := svc.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, testItemID, item.ID)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, domain.ContentHash(input.Type, input.Title, input.Body), item.ContentHash)
	mockRepo.AssertExpectations(t)
}

func TestStoreServiceUpsertUnchangedContent(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	svc := NewStoreService(mockRepo)

	input := validUpsertInput()
	existing := &domain.Item{
		ID:          testItemID,
		Scope:       input.Scope,
		TenantCode:  input.TenantCode,
		Type:        input.Type,
		Title:       input.Title,
		Body:        input.Body,
		Version:     3,
		Status:      domain.ItemStatusApproved,
		ContentHash: domain.ContentHash(input.Type, input.Title, input.Body),
	}
	mockRepo.On("GetLatestByGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(existing, nil)

	item, outcome, err := svc.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, 3, item.Version)
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestStoreServiceUpsertNewVersion(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	svc := NewStoreService(mockRepo)

	input := validUpsertInput()
	existing := &domain.Item{
		ID:          testItemID,
		Scope:       input.Scope,
		TenantCode:  input.TenantCode,
		Type:        input.Type,
		Title:       input.Title,
		Body:        "An older description of the same incident.",
		Version:     2,
		Status:      domain.ItemStatusApproved,
		ContentHash: domain.ContentHash(input.Type, input.Title, "An older description of the same incident."),
	}
	mockRepo.On("GetLatestByGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(existing, nil)
	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.ID == testItemID && it.Version == 3 && it.Status == domain.ItemStatusDraft
	})).Return(nil)

	item, outcome, err := svc.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNewVersion, outcome)
	assert.Equal(t, testItemID, item.ID)
	assert.Equal(t, 3, item.Version)
	mockRepo.AssertExpectations(t)
}

func TestStoreServiceUpsertRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	mockUUID := new(MockUUIDGenerator)
	svc := NewStoreServiceWithUUIDGen(mockRepo, mockUUID)

	input := validUpsertInput()
	winner := &domain.Item{
		ID:          testItemID,
		Scope:       input.Scope,
		TenantCode:  input.TenantCode,
		Type:        input.Type,
		Title:       input.Title,
		Body:        input.Body,
		Version:     1,
		Status:      domain.ItemStatusDraft,
		ContentHash: domain.ContentHash(input.Type, input.Title, input.Body),
	}

	// First read sees an empty group, the insert loses the race, the
	// second read sees the winner's identical row.
	mockUUID.On("NewString").Return(testItemID)
	mockRepo.On("GetLatestByGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrItemNotFound).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(domain.ErrVersionConflict).Once()
	mockRepo.On("GetLatestByGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(winner, nil).Once()

	item, outcome, err := svc.Upsert(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, testItemID, item.ID)
	mockRepo.AssertExpectations(t)
}

func TestStoreServiceUpsertSameTitleDifferentType(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	mockUUID := new(MockUUIDGenerator)
	svc := NewStoreServiceWithUUIDGen(mockRepo, mockUUID)

	patternID := "550e8400-e29b-41d4-a716-446655440001"
	resolutionID := "550e8400-e29b-41d4-a716-446655440002"
	mockUUID.On("NewString").Return(patternID).Once()
	mockUUID.On("NewString").Return(resolutionID).Once()

	// The dedup group keys on type, so an identical title+body under a
	// different type starts its own version chain.
	input := validUpsertInput()
	normalized := domain.NormalizeTitle(input.Title)
	mockRepo.On("GetLatestByGroup", mock.Anything, domain.ScopeTenant, "ACME", domain.ItemTypeIncidentPattern, normalized).
		Return(nil, domain.ErrItemNotFound).Once()
	mockRepo.On("GetLatestByGroup", mock.Anything, domain.ScopeTenant, "ACME", domain.ItemTypeResolution, normalized).
		Return(nil, domain.ErrItemNotFound).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Twice()

	first, firstOutcome, err := svc.Upsert(ctx, input)
	require.NoError(t, err)

	input.Type = domain.ItemTypeResolution
	second, secondOutcome, err := svc.Upsert(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, firstOutcome)
	assert.Equal(t, OutcomeCreated, secondOutcome)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 1, second.Version)
	mockRepo.AssertExpectations(t)
}

func TestStoreServiceUpsertScopeValidation(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	svc := NewStoreService(mockRepo)

	input := validUpsertInput()
	input.Scope = domain.ScopeTenant
	input.TenantCode = ""

	_, _, err := svc.Upsert(ctx, input)

	assert.ErrorIs(t, err, domain.ErrScopeRequired)
	mockRepo.AssertNotCalled(t, "GetLatestByGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStoreServiceUpsertNormalizesTenantCode(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	mockUUID := new(MockUUIDGenerator)
	svc := NewStoreServiceWithUUIDGen(mockRepo, mockUUID)

	input := validUpsertInput()
	input.TenantCode = "acme"

	mockUUID.On("NewString").Return(testItemID)
	mockRepo.On("GetLatestByGroup", mock.Anything, domain.ScopeTenant, "ACME", mock.Anything, mock.Anything).
		Return(nil, domain.ErrItemNotFound)
	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.TenantCode == "ACME"
	})).Return(nil)

	_, _, err := svc.Upsert(ctx, input)

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestStoreServiceListInvalidCursor(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockItemRepository)
	svc := NewStoreService(mockRepo)

	_, err := svc.List(ctx, ListItemsInput{Cursor: "not-base64!!!"})

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}
