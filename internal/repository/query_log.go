package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/knowbase/internal/service"
)

// QueryLogRepository stores retrieval logs for evaluation/feedback loops.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) Create(ctx context.Context, entry service.QueryLogEntry) (string, error) {
	sourcesJSON, _ := json.Marshal(entry.Sources)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO query_logs (question_length, selector, tenant_code, hit_count, model_called, model, sources, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		len(entry.Question),
		string(entry.Selector),
		entry.TenantCode,
		entry.HitCount,
		entry.ModelCalled,
		nullableString(entry.Model),
		sourcesJSON,
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
