package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/pagination"
	"github.com/cloo-solutions/knowbase/internal/service"
)

const ingestionColumns = `id, scope, tenant_code, input_kind, input_hash, input_name, status, model_used, reasoning_effort, created_at, updated_at`

type IngestionRepository struct {
	db dbtx
}

func NewIngestionRepository(pool *pgxpool.Pool) *IngestionRepository {
	return &IngestionRepository{db: pool}
}

func NewIngestionRepositoryWithTx(tx pgx.Tx) *IngestionRepository {
	return &IngestionRepository{db: tx}
}

func (r *IngestionRepository) Create(ctx context.Context, ing *domain.Ingestion) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingestions (id, scope, tenant_code, input_kind, input_hash, input_name, status, model_used, reasoning_effort, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ing.ID, ing.Scope, ing.TenantCode, ing.InputKind, ing.InputHash,
		nullableString(ing.InputName), ing.Status, nullableString(ing.ModelUsed),
		nullableString(ing.ReasoningEffort), ing.CreatedAt, ing.UpdatedAt,
	)
	return err
}

func (r *IngestionRepository) GetByID(ctx context.Context, id string) (*domain.Ingestion, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ingestionColumns+` FROM ingestions WHERE id = $1`,
		id,
	)
	return scanIngestionRow(row)
}

// FindByInputHash returns prior ingestions of the same source in the same
// scope, newest first. Used to flag duplicate submissions.
func (r *IngestionRepository) FindByInputHash(ctx context.Context, scope domain.Scope, tenantCode, inputHash string) ([]*domain.Ingestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ingestionColumns+`
		 FROM ingestions
		 WHERE scope = $1 AND tenant_code = $2 AND input_hash = $3
		 ORDER BY created_at DESC`,
		scope, tenantCode, inputHash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIngestionRows(rows)
}

// UpdateStatus records a lifecycle transition plus synthesis metadata.
func (r *IngestionRepository) UpdateStatus(ctx context.Context, id string, status domain.IngestionStatus, modelUsed, reasoningEffort string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingestions
		 SET status = $1,
		     model_used = COALESCE($2, model_used),
		     reasoning_effort = COALESCE($3, reasoning_effort),
		     updated_at = $4
		 WHERE id = $5`,
		status, nullableString(modelUsed), nullableString(reasoningEffort), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIngestionNotFound
	}
	return nil
}

// AddItems links the items an ingestion produced.
func (r *IngestionRepository) AddItems(ctx context.Context, ingestionID string, itemIDs []string) error {
	for _, itemID := range itemIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO ingestion_items (ingestion_id, item_id)
			 VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			ingestionID, itemID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListItemIDs returns the item IDs an ingestion produced.
func (r *IngestionRepository) ListItemIDs(ctx context.Context, ingestionID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT item_id FROM ingestion_items WHERE ingestion_id = $1 ORDER BY item_id`,
		ingestionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *IngestionRepository) ListWithCursor(ctx context.Context, scope domain.Scope, tenantCode string, cursor *pagination.Cursor, limit int) (*service.IngestionPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+ingestionColumns+`
			 FROM ingestions
			 WHERE scope = $1 AND tenant_code = $2 AND (created_at, id) < ($3, $4)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $5`,
			scope, tenantCode, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+ingestionColumns+`
			 FROM ingestions
			 WHERE scope = $1 AND tenant_code = $2
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			scope, tenantCode, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanIngestionRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.IngestionPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func scanIngestionRow(row pgx.Row) (*domain.Ingestion, error) {
	var ing domain.Ingestion
	var inputName, modelUsed, effort pgtype.Text
	err := row.Scan(
		&ing.ID, &ing.Scope, &ing.TenantCode, &ing.InputKind, &ing.InputHash,
		&inputName, &ing.Status, &modelUsed, &effort, &ing.CreatedAt, &ing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIngestionNotFound
		}
		return nil, err
	}
	ing.InputName = inputName.String
	ing.ModelUsed = modelUsed.String
	ing.ReasoningEffort = effort.String
	return &ing, nil
}

func scanIngestionRows(rows pgx.Rows) ([]*domain.Ingestion, error) {
	var out []*domain.Ingestion
	for rows.Next() {
		var ing domain.Ingestion
		var inputName, modelUsed, effort pgtype.Text
		if err := rows.Scan(
			&ing.ID, &ing.Scope, &ing.TenantCode, &ing.InputKind, &ing.InputHash,
			&inputName, &ing.Status, &modelUsed, &effort, &ing.CreatedAt, &ing.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ing.InputName = inputName.String
		ing.ModelUsed = modelUsed.String
		ing.ReasoningEffort = effort.String
		out = append(out, &ing)
	}
	return out, rows.Err()
}
