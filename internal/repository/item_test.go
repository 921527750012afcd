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
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/cloo-solutions/knowbase/internal/testutil"
)

func newItemFixture(title string) *domain.Item {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Item{
		ID:            uuid.NewString(),
		Scope:         domain.ScopeTenant,
		TenantCode:    "ACME",
		Type:          domain.ItemTypeIncidentPattern,
		Title:         title,
		Body:          "IDEX transfers stall when the EA10 consumer is behind. Check status 51 messages first.",
		Tags:          []string{"IDEX", "EA10"},
		DomainObjects: []string{"EDIFACT"},
		Signals:       domain.Signals{"error_code": "51"},
		Sources:       []string{"ticket-4711"},
		Version:       1,
		Status:        domain.ItemStatusDraft,
		ContentHash:   uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestItemRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	item := newItemFixture("IDEX transfer stuck in queue")
	require.NoError(t, repo.Insert(ctx, item))

	retrieved, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, retrieved.ID)
	assert.Equal(t, item.Title, retrieved.Title)
	assert.Equal(t, item.Tags, retrieved.Tags)
	assert.Equal(t, item.DomainObjects, retrieved.DomainObjects)
	assert.Equal(t, "51", retrieved.Signals["error_code"])
	assert.Equal(t, 1, retrieved.Version)
	assert.Equal(t, domain.ItemStatusDraft, retrieved.Status)
}

func TestItemRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestItemRepository_VersionConflict(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	first := newItemFixture("Duplicate version title")
	require.NoError(t, repo.Insert(ctx, first))

	// Same dedup group, same version, different ID.
	second := newItemFixture("Duplicate version title")
	err := repo.Insert(ctx, second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestItemRepository_GetLatestByGroup(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	v1 := newItemFixture("Grouped Title")
	require.NoError(t, repo.Insert(ctx, v1))

	v2 := newItemFixture("grouped title  ") // normalizes to the same group
	v2.ID = v1.ID
	v2.Version = 2
	v2.Body = "Updated body"
	require.NoError(t, repo.Insert(ctx, v2))

	latest, err := repo.GetLatestByGroup(ctx, domain.ScopeTenant, "ACME", domain.ItemTypeIncidentPattern, domain.NormalizeTitle("Grouped Title"))
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "Updated body", latest.Body)

	_, err = repo.GetLatestByGroup(ctx, domain.ScopeShared, "", domain.ItemTypeIncidentPattern, "missing")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestItemRepository_GroupIndexAllowsSameTitleAcrossTypes(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	pattern := newItemFixture("EA10 rejection handling")
	require.NoError(t, repo.Insert(ctx, pattern))

	resolution := newItemFixture("EA10 rejection handling")
	resolution.Type = domain.ItemTypeResolution
	require.NoError(t, repo.Insert(ctx, resolution))

	latest, err := repo.GetLatestByGroup(ctx, domain.ScopeTenant, "ACME", domain.ItemTypeResolution, domain.NormalizeTitle("EA10 rejection handling"))
	require.NoError(t, err)
	assert.Equal(t, resolution.ID, latest.ID)
	assert.Equal(t, 1, latest.Version)
}

func TestItemRepository_ListVersions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	item := newItemFixture("Versioned item")
	require.NoError(t, repo.Insert(ctx, item))

	v2 := *item
	v2.Version = 2
	v2.Status = domain.ItemStatusApproved
	require.NoError(t, repo.Insert(ctx, &v2))

	versions, err := repo.ListVersions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)

	single, err := repo.GetVersion(ctx, item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusDraft, single.Status)
}

func TestItemRepository_UpdateStatus_LatestVersionOnly(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	item := newItemFixture("Status transitions")
	require.NoError(t, repo.Insert(ctx, item))

	v2 := *item
	v2.Version = 2
	require.NoError(t, repo.Insert(ctx, &v2))

	require.NoError(t, repo.UpdateStatus(ctx, item.ID, domain.ItemStatusApproved))

	latest, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusApproved, latest.Status)

	older, err := repo.GetVersion(ctx, item.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusDraft, older.Status)
}

func TestItemRepository_Embedding_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	item := newItemFixture("Embedded item")
	require.NoError(t, repo.Insert(ctx, item))

	embedding := make([]float32, 3072)
	embedding[0] = 0.25
	embedding[3071] = -0.5
	require.NoError(t, repo.UpdateEmbedding(ctx, item.ID, 1, embedding))

	stored, err := repo.GetEmbedding(ctx, item.ID, 1)
	require.NoError(t, err)
	require.Len(t, stored, 3072)
	assert.InDelta(t, 0.25, stored[0], 0.0001)
	assert.InDelta(t, -0.5, stored[3071], 0.0001)
}

func TestItemRepository_ListApprovedWithEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	approved := newItemFixture("Approved with embedding")
	approved.Status = domain.ItemStatusApproved
	require.NoError(t, repo.Insert(ctx, approved))
	require.NoError(t, repo.UpdateEmbedding(ctx, approved.ID, 1, make([]float32, 3072)))

	// Approved but no embedding cached yet: excluded.
	pending := newItemFixture("Approved without embedding")
	pending.Status = domain.ItemStatusApproved
	require.NoError(t, repo.Insert(ctx, pending))

	draft := newItemFixture("Draft with embedding")
	require.NoError(t, repo.Insert(ctx, draft))
	require.NoError(t, repo.UpdateEmbedding(ctx, draft.ID, 1, make([]float32, 3072)))

	entries, err := repo.ListApprovedWithEmbedding(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, approved.ID, entries[0].Item.ID)
	assert.Len(t, entries[0].Embedding, 3072)
}

func TestItemRepository_ListWithCursor_Filters(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	tenantItem := newItemFixture("Tenant incident")
	require.NoError(t, repo.Insert(ctx, tenantItem))

	sharedItem := newItemFixture("Shared runbook")
	sharedItem.Scope = domain.ScopeShared
	sharedItem.TenantCode = ""
	sharedItem.Type = domain.ItemTypeRunbook
	require.NoError(t, repo.Insert(ctx, sharedItem))

	page, err := repo.ListWithCursor(ctx, service.ItemFilter{
		Scope:      domain.ScopeTenant,
		TenantCode: "ACME",
	}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, tenantItem.ID, page.Items[0].ID)
	assert.False(t, page.HasMore)

	page, err = repo.ListWithCursor(ctx, service.ItemFilter{
		Type: domain.ItemTypeRunbook,
	}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sharedItem.ID, page.Items[0].ID)
}

func TestItemRepository_ListWithCursor_Pagination(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewItemRepository(pool)

	for i := 0; i < 5; i++ {
		item := newItemFixture("Paged item " + uuid.NewString())
		item.CreatedAt = item.CreatedAt.Add(time.Duration(i) * time.Second)
		item.UpdatedAt = item.CreatedAt
		require.NoError(t, repo.Insert(ctx, item))
	}

	first, err := repo.ListWithCursor(ctx, service.ItemFilter{}, nil, 3)
	require.NoError(t, err)
	assert.Len(t, first.Items, 3)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	cursor, err := pagination.DecodeCursor(first.NextCursor)
	require.NoError(t, err)

	second, err := repo.ListWithCursor(ctx, service.ItemFilter{}, cursor, 3)
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.False(t, second.HasMore)

	seen := map[string]bool{}
	for _, it := range append(first.Items, second.Items...) {
		assert.False(t, seen[it.ID], "item %s returned twice", it.ID)
		seen[it.ID] = true
	}
}

func TestMigrationsCreateListingIndexes(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	for _, idx := range []struct{ table, name string }{
		{"kb_items", "idx_kb_items_group_version"},
		{"kb_items", "idx_kb_items_scope_tenant"},
		{"kb_items", "idx_kb_items_type_title"},
		{"kb_items", "idx_kb_items_status"},
		{"ingestions", "idx_ingestions_input_hash"},
		{"ingestions", "idx_ingestions_scope_tenant"},
		{"ingestions", "idx_ingestions_status"},
	} {
		var count int
		err := pool.QueryRow(ctx,
			`SELECT count(*) FROM pg_indexes WHERE tablename = $1 AND indexname = $2`,
			idx.table, idx.name).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "missing index %s on %s", idx.name, idx.table)
	}
}
