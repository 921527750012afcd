package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

type MockPointStore struct {
	mock.Mock
}

func (m *MockPointStore) GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error) {
	args := m.Called(ctx, collectionName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qdrant.CollectionInfo), args.Error(1)
}

func (m *MockPointStore) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPointStore) DeleteCollection(ctx context.Context, collectionName string) error {
	args := m.Called(ctx, collectionName)
	return args.Error(0)
}

func (m *MockPointStore) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(1)
}

func (m *MockPointStore) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*qdrant.ScoredPoint), args.Error(1)
}

func (m *MockPointStore) Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(1)
}

func collectionInfoWithSize(size uint64) *qdrant.CollectionInfo {
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     size,
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}
}

func approvedItem() *domain.Item {
	return &domain.Item{
		ID:            "3f6f6f3e-9f0e-4f6e-8f94-0a4c6f9b2d10",
		Scope:         domain.ScopeTenant,
		TenantCode:    "ACME",
		Type:          domain.ItemTypeResolution,
		Title:         "Restart the IDEX batch queue",
		Body:          "Stop and restart the queue, then re-run EA10.",
		Tags:          []string{"idex"},
		DomainObjects: []string{"EA10"},
		Version:       1,
		Status:        domain.ItemStatusApproved,
		UpdatedAt:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "kb_shared", CollectionName(domain.ScopeShared, ""))
	assert.Equal(t, "kb_ACME", CollectionName(domain.ScopeTenant, "ACME"))
	assert.Equal(t, "kb_ACME", CollectionName(domain.ScopeTenant, " acme "))
}

func TestEnsureCollectionCreatesMissing(t *testing.T) {
	store := new(MockPointStore)
	store.On("GetCollectionInfo", mock.Anything, "kb_ACME").
		Return(nil, status.Error(codes.NotFound, "not found"))
	store.On("CreateCollection", mock.Anything, mock.MatchedBy(func(req *qdrant.CreateCollection) bool {
		return req.CollectionName == "kb_ACME" &&
			req.VectorsConfig.GetParams().GetSize() == 3072
	})).Return(nil)

	r := NewRouter(store, 3072)
	err := r.EnsureCollection(context.Background(), domain.ScopeTenant, "ACME")

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestEnsureCollectionExistingMatch(t *testing.T) {
	store := new(MockPointStore)
	store.On("GetCollectionInfo", mock.Anything, "kb_shared").
		Return(collectionInfoWithSize(3072), nil)

	r := NewRouter(store, 3072)
	err := r.EnsureCollection(context.Background(), domain.ScopeShared, "")

	require.NoError(t, err)
	store.AssertNotCalled(t, "CreateCollection", mock.Anything, mock.Anything)
}

func TestEnsureCollectionDimensionMismatch(t *testing.T) {
	store := new(MockPointStore)
	store.On("GetCollectionInfo", mock.Anything, "kb_shared").
		Return(collectionInfoWithSize(1536), nil)

	r := NewRouter(store, 3072)
	err := r.EnsureCollection(context.Background(), domain.ScopeShared, "")

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	store.AssertNotCalled(t, "CreateCollection", mock.Anything, mock.Anything)
}

func TestRecreateCollectionDropsAndCreates(t *testing.T) {
	store := new(MockPointStore)
	store.On("DeleteCollection", mock.Anything, "kb_ACME").Return(nil)
	store.On("CreateCollection", mock.Anything, mock.MatchedBy(func(req *qdrant.CreateCollection) bool {
		return req.CollectionName == "kb_ACME" &&
			req.VectorsConfig.GetParams().GetSize() == 3072
	})).Return(nil)

	r := NewRouter(store, 3072)
	err := r.RecreateCollection(context.Background(), domain.ScopeTenant, "ACME")

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRecreateCollectionMissingIsFine(t *testing.T) {
	store := new(MockPointStore)
	store.On("DeleteCollection", mock.Anything, "kb_shared").
		Return(status.Error(codes.NotFound, "not found"))
	store.On("CreateCollection", mock.Anything, mock.Anything).Return(nil)

	r := NewRouter(store, 3072)
	err := r.RecreateCollection(context.Background(), domain.ScopeShared, "")

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestUpsertRejectsUnapproved(t *testing.T) {
	r := NewRouter(new(MockPointStore), 4)

	item := approvedItem()
	item.Status = domain.ItemStatusDraft

	err := r.Upsert(context.Background(), item, []float32{1, 2, 3, 4})
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestUpsertRejectsWrongDimensions(t *testing.T) {
	r := NewRouter(new(MockPointStore), 4)

	err := r.Upsert(context.Background(), approvedItem(), []float32{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestUpsert(t *testing.T) {
	store := new(MockPointStore)
	store.On("GetCollectionInfo", mock.Anything, "kb_ACME").
		Return(collectionInfoWithSize(4), nil)
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(req *qdrant.UpsertPoints) bool {
		if req.CollectionName != "kb_ACME" || len(req.Points) != 1 {
			return false
		}
		p := req.Points[0]
		return p.Id.GetUuid() == approvedItem().ID &&
			p.Payload["type"].GetStringValue() == "resolution" &&
			p.Payload["scope"].GetStringValue() == "tenant" &&
			p.Payload["version"].GetIntegerValue() == 1
	})).Return(nil, nil)

	r := NewRouter(store, 4)
	err := r.Upsert(context.Background(), approvedItem(), []float32{1, 2, 3, 4})

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSearchTenantPlusSharedMergesByScore(t *testing.T) {
	store := new(MockPointStore)
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.CollectionName == "kb_ACME"
	})).Return([]*qdrant.ScoredPoint{
		{Id: qdrant.NewIDUUID("aaaaaaaa-0000-0000-0000-000000000001"), Score: 0.5},
		{Id: qdrant.NewIDUUID("aaaaaaaa-0000-0000-0000-000000000002"), Score: 0.9},
	}, nil)
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.CollectionName == "kb_shared"
	})).Return([]*qdrant.ScoredPoint{
		{Id: qdrant.NewIDUUID("bbbbbbbb-0000-0000-0000-000000000001"), Score: 0.7},
	}, nil)

	r := NewRouter(store, 2)
	hits, err := r.Search(context.Background(), SearchInput{
		Selector:   domain.SelectTenantPlusShared,
		TenantCode: "ACME",
		Vector:     []float32{0.1, 0.2},
		Limit:      2,
	})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "aaaaaaaa-0000-0000-0000-000000000002", hits[0].ID)
	assert.Equal(t, "bbbbbbbb-0000-0000-0000-000000000001", hits[1].ID)
}

func TestSearchTenantOnlyNeverTouchesShared(t *testing.T) {
	store := new(MockPointStore)
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.CollectionName == "kb_ACME"
	})).Return([]*qdrant.ScoredPoint{}, nil)

	r := NewRouter(store, 2)
	_, err := r.Search(context.Background(), SearchInput{
		Selector:   domain.SelectTenantOnly,
		TenantCode: "ACME",
		Vector:     []float32{0.1, 0.2},
		Limit:      5,
	})

	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "Query", 1)
}

func TestSearchMissingTenantCollection(t *testing.T) {
	store := new(MockPointStore)
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.CollectionName == "kb_NEWT"
	})).Return(nil, status.Error(codes.NotFound, "collection not found"))
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.CollectionName == "kb_shared"
	})).Return([]*qdrant.ScoredPoint{
		{Id: qdrant.NewIDUUID("bbbbbbbb-0000-0000-0000-000000000001"), Score: 0.4},
	}, nil)

	r := NewRouter(store, 2)
	hits, err := r.Search(context.Background(), SearchInput{
		Selector:   domain.SelectTenantPlusShared,
		TenantCode: "NEWT",
		Vector:     []float32{0.1, 0.2},
		Limit:      5,
	})

	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchSelectorValidation(t *testing.T) {
	r := NewRouter(new(MockPointStore), 2)

	_, err := r.Search(context.Background(), SearchInput{
		Selector: domain.SelectTenantOnly,
		Vector:   []float32{0.1, 0.2},
	})

	assert.ErrorIs(t, err, domain.ErrScopeRequired)
}

func TestSearchWrongQueryDimensions(t *testing.T) {
	r := NewRouter(new(MockPointStore), 3072)

	_, err := r.Search(context.Background(), SearchInput{
		Selector: domain.SelectSharedOnly,
		Vector:   []float32{0.1, 0.2},
	})

	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestSearchTypeFilter(t *testing.T) {
	store := new(MockPointStore)
	store.On("Query", mock.Anything, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.Filter != nil && len(req.Filter.Must) == 1
	})).Return([]*qdrant.ScoredPoint{}, nil)

	r := NewRouter(store, 2)
	_, err := r.Search(context.Background(), SearchInput{
		Selector: domain.SelectSharedOnly,
		Vector:   []float32{0.1, 0.2},
		Types:    []domain.ItemType{domain.ItemTypeResolution, domain.ItemTypeRunbook},
	})

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	store := new(MockPointStore)
	store.On("Delete", mock.Anything, mock.MatchedBy(func(req *qdrant.DeletePoints) bool {
		return req.CollectionName == "kb_ACME"
	})).Return(nil, nil)

	r := NewRouter(store, 4)
	err := r.Delete(context.Background(), domain.ScopeTenant, "ACME", approvedItem().ID)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDeleteMissingCollection(t *testing.T) {
	store := new(MockPointStore)
	store.On("Delete", mock.Anything, mock.Anything).
		Return(nil, status.Error(codes.NotFound, "collection not found"))

	r := NewRouter(store, 4)
	err := r.Delete(context.Background(), domain.ScopeShared, "", approvedItem().ID)

	assert.NoError(t, err)
}
