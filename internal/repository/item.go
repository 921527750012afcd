package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/service"
)

const itemColumns = `id, scope, tenant_code, type, title, normalized_title, body, tags, domain_objects, signals, sources, version, status, content_hash, created_at, updated_at`

type ItemRepository struct {
	db dbtx
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{db: pool}
}

func NewItemRepositoryWithTx(tx pgx.Tx) *ItemRepository {
	return &ItemRepository{db: tx}
}

// Insert writes one item version row. The unique index over
// (scope, tenant_code, type, normalized_title, version) turns concurrent
// inserts of the same version into ErrVersionConflict.
func (r *ItemRepository) Insert(ctx context.Context, it *domain.Item) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO kb_items (id, scope, tenant_code, type, title, normalized_title, body, tags, domain_objects, signals, sources, version, status, content_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		it.ID, it.Scope, it.TenantCode, it.Type, it.Title, domain.NormalizeTitle(it.Title),
		it.Body, it.Tags, it.DomainObjects, it.Signals, it.Sources,
		it.Version, it.Status, it.ContentHash, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

// GetLatestByGroup returns the newest version in a dedup group, or
// ErrItemNotFound when the group does not exist yet.
func (r *ItemRepository) GetLatestByGroup(ctx context.Context, scope domain.Scope, tenantCode string, itemType domain.ItemType, normalizedTitle string) (*domain.Item, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+itemColumns+`
		 FROM kb_items
		 WHERE scope = $1 AND tenant_code = $2 AND type = $3 AND normalized_title = $4
		 ORDER BY version DESC
		 LIMIT 1`,
		scope, tenantCode, itemType, normalizedTitle,
	)
	return scanItemRow(row)
}

// GetByID returns the latest version of an item.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+itemColumns+`
		 FROM kb_items WHERE id = $1
		 ORDER BY version DESC
		 LIMIT 1`,
		id,
	)
	return scanItemRow(row)
}

// GetByIDs returns the latest version of each item. Missing IDs are
// silently absent from the result.
func (r *ItemRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return []*domain.Item{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ON (id) `+itemColumns+`
		 FROM kb_items WHERE id = ANY($1)
		 ORDER BY id, version DESC`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// GetVersion returns one specific version of an item.
func (r *ItemRepository) GetVersion(ctx context.Context, id string, version int) (*domain.Item, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+itemColumns+`
		 FROM kb_items WHERE id = $1 AND version = $2`,
		id, version,
	)
	return scanItemRow(row)
}

// ListVersions returns all versions of an item, newest first.
func (r *ItemRepository) ListVersions(ctx context.Context, id string) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM kb_items WHERE id = $1
		 ORDER BY version DESC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrItemNotFound
	}
	return items, nil
}

// UpdateStatus transitions the latest version of an item.
func (r *ItemRepository) UpdateStatus(ctx context.Context, id string, status domain.ItemStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE kb_items SET status = $1, updated_at = $2
		 WHERE id = $3 AND version = (SELECT MAX(version) FROM kb_items WHERE id = $3)`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// UpdateFields rewrites the content of one item version in place. The
// caller is expected to have recomputed ContentHash before calling.
func (r *ItemRepository) UpdateFields(ctx context.Context, it *domain.Item) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE kb_items
		 SET title = $1, normalized_title = $2, body = $3, tags = $4,
		     domain_objects = $5, signals = $6, content_hash = $7,
		     embedding = NULL, updated_at = $8
		 WHERE id = $9 AND version = $10`,
		it.Title, domain.NormalizeTitle(it.Title), it.Body, it.Tags,
		it.DomainObjects, it.Signals, it.ContentHash, it.UpdatedAt,
		it.ID, it.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrCodeAlreadyExists, "another item already uses this title")
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// UpdateEmbedding caches the embedding vector for one item version.
func (r *ItemRepository) UpdateEmbedding(ctx context.Context, id string, version int, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE kb_items SET embedding = $1 WHERE id = $2 AND version = $3`,
		pgvector.NewVector(embedding), id, version,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// GetEmbedding returns the cached embedding for one item version, or nil
// when none was stored yet.
func (r *ItemRepository) GetEmbedding(ctx context.Context, id string, version int) ([]float32, error) {
	var vec *pgvector.Vector
	err := r.db.QueryRow(ctx,
		`SELECT embedding FROM kb_items WHERE id = $1 AND version = $2`,
		id, version,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	if vec == nil {
		return nil, nil
	}
	return vec.Slice(), nil
}

// ListApprovedWithEmbedding streams every approved latest-version item that
// has a cached embedding.
func (r *ItemRepository) ListApprovedWithEmbedding(ctx context.Context) ([]*service.ItemWithEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`, embedding
		 FROM (
			 SELECT DISTINCT ON (id) `+itemColumns+`, embedding
			 FROM kb_items
			 ORDER BY id, version DESC
		 ) latest
		 WHERE status = $1 AND embedding IS NOT NULL`,
		domain.ItemStatusApproved,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*service.ItemWithEmbedding
	for rows.Next() {
		var it domain.Item
		var vec pgvector.Vector
		if err := scanItemInto(rows, &it, &vec); err != nil {
			return nil, err
		}
		out = append(out, &service.ItemWithEmbedding{Item: &it, Embedding: vec.Slice()})
	}
	return out, rows.Err()
}

// ListWithCursor pages over latest-version items, newest first.
func (r *ItemRepository) ListWithCursor(ctx context.Context, filter service.ItemFilter, cursor *pagination.Cursor, limit int) (*service.ItemPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + itemColumns + `
		 FROM (
			 SELECT DISTINCT ON (id) ` + itemColumns + `
			 FROM kb_items
			 ORDER BY id, version DESC
		 ) latest
		 WHERE 1=1`
	args := []any{}

	if filter.Scope != "" {
		args = append(args, filter.Scope)
		query += fmt.Sprintf(" AND scope = $%d", len(args))
	}
	if filter.TenantCode != "" {
		args = append(args, domain.NormalizeTenantCode(filter.TenantCode))
		query += fmt.Sprintf(" AND tenant_code = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.Timestamp, cursor.LastID)
		query += fmt.Sprintf(" AND (updated_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &service.ItemPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func scanItemRow(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(
		&it.ID, &it.Scope, &it.TenantCode, &it.Type, &it.Title, new(string),
		&it.Body, &it.Tags, &it.DomainObjects, &it.Signals, &it.Sources,
		&it.Version, &it.Status, &it.ContentHash, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func scanItemRows(rows pgx.Rows) ([]*domain.Item, error) {
	var items []*domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(
			&it.ID, &it.Scope, &it.TenantCode, &it.Type, &it.Title, new(string),
			&it.Body, &it.Tags, &it.DomainObjects, &it.Signals, &it.Sources,
			&it.Version, &it.Status, &it.ContentHash, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func scanItemInto(rows pgx.Rows, it *domain.Item, vec *pgvector.Vector) error {
	return rows.Scan(
		&it.ID, &it.Scope, &it.TenantCode, &it.Type, &it.Title, new(string),
		&it.Body, &it.Tags, &it.DomainObjects, &it.Signals, &it.Sources,
		&it.Version, &it.Status, &it.ContentHash, &it.CreatedAt, &it.UpdatedAt,
		vec,
	)
}
