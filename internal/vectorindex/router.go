// Package vectorindex routes knowledge item vectors to per-scope Qdrant
// collections. Shared knowledge lives in one collection, every tenant gets
// its own, and nothing ever crosses between them.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cloo-solutions/knowbase/internal/domain"
)

const (
	// SharedCollection holds all shared-scope items.
	SharedCollection = "kb_shared"
	// tenantCollectionPrefix prefixes per-tenant collections, e.g. kb_ACME.
	tenantCollectionPrefix = "kb_"
)

// pointStore is the subset of the Qdrant client the router uses.
// *qdrant.Client satisfies it.
type pointStore interface {
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
}

// Hit is one scored search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchInput selects which collections to query and how.
type SearchInput struct {
	Selector   domain.ScopeSelector
	TenantCode string
	Vector     []float32
	Limit      int
	Types      []domain.ItemType
}

// Router maps scopes to collections and enforces vector dimensionality.
type Router struct {
	store      pointStore
	dimensions int
}

func NewRouter(store pointStore, dimensions int) *Router {
	return &Router{store: store, dimensions: dimensions}
}

// NewClient connects to Qdrant over gRPC.
func NewClient(host string, port int) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return client, nil
}

// CollectionName resolves the collection for a scope. Tenant codes are
// normalized before lookup so casing never splits a tenant's data.
func CollectionName(scope domain.Scope, tenantCode string) string {
	if scope == domain.ScopeShared {
		return SharedCollection
	}
	return tenantCollectionPrefix + domain.NormalizeTenantCode(tenantCode)
}

// EnsureCollection creates the collection for a scope if missing. An
// existing collection with a different vector size is a hard stop, never
// silently recreated.
func (r *Router) EnsureCollection(ctx context.Context, scope domain.Scope, tenantCode string) error {
	if err := domain.ValidateScope(scope, tenantCode); err != nil {
		return err
	}
	name := CollectionName(scope, tenantCode)

	info, err := r.store.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return r.createCollection(ctx, name)
		}
		return fmt.Errorf("get collection %s: %w", name, err)
	}

	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != uint64(r.dimensions) {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeDimensionMismatch,
			fmt.Sprintf("collection %s has vector size %d, expected %d", name, size, r.dimensions),
			domain.ErrDimensionMismatch,
		)
	}
	return nil
}

func (r *Router) createCollection(ctx context.Context, name string) error {
	err := r.store.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(r.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// RecreateCollection drops a collection and creates it fresh at the
// configured dimensionality. Only the reindex path may call this; the
// serving path treats a size mismatch as fatal.
func (r *Router) RecreateCollection(ctx context.Context, scope domain.Scope, tenantCode string) error {
	if err := domain.ValidateScope(scope, tenantCode); err != nil {
		return err
	}
	name := CollectionName(scope, tenantCode)

	if err := r.store.DeleteCollection(ctx, name); err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
	}
	return r.createCollection(ctx, name)
}

// Upsert indexes an approved item. Draft and rejected items never reach
// the index.
func (r *Router) Upsert(ctx context.Context, item *domain.Item, vector []float32) error {
	if item.Status != domain.ItemStatusApproved {
		return domain.ErrNotApproved
	}
	if len(vector) != r.dimensions {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeDimension,
			fmt.Sprintf("vector has %d dimensions, expected %d", len(vector), r.dimensions),
			domain.ErrDimension,
		)
	}
	if err := r.EnsureCollection(ctx, item.Scope, item.TenantCode); err != nil {
		return err
	}

	name := CollectionName(item.Scope, item.TenantCode)
	_, err := r.store.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: buildPayload(item),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point into %s: %w", name, err)
	}
	return nil
}

// Delete removes an item's point from its scope collection. A missing
// collection counts as already deleted.
func (r *Router) Delete(ctx context.Context, scope domain.Scope, tenantCode, itemID string) error {
	if err := domain.ValidateScope(scope, tenantCode); err != nil {
		return err
	}
	name := CollectionName(scope, tenantCode)

	_, err := r.store.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewIDUUID(itemID)},
				},
			},
		},
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return fmt.Errorf("delete point from %s: %w", name, err)
	}
	return nil
}

// Search queries the collections the selector names and merges results by
// score. A tenant query never touches another tenant's collection.
func (r *Router) Search(ctx context.Context, in SearchInput) ([]Hit, error) {
	if err := domain.ValidateSelector(in.Selector, in.TenantCode); err != nil {
		return nil, err
	}
	if len(in.Vector) != r.dimensions {
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeDimension,
			fmt.Sprintf("query vector has %d dimensions, expected %d", len(in.Vector), r.dimensions),
			domain.ErrDimension,
		)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	var collections []string
	switch in.Selector {
	case domain.SelectSharedOnly:
		collections = []string{SharedCollection}
	case domain.SelectTenantOnly:
		collections = []string{CollectionName(domain.ScopeTenant, in.TenantCode)}
	case domain.SelectTenantPlusShared:
		collections = []string{
			CollectionName(domain.ScopeTenant, in.TenantCode),
			SharedCollection,
		}
	default:
		return nil, domain.ErrInvalidScope
	}

	var hits []Hit
	for _, coll := range collections {
		results, err := r.store.Query(ctx, &qdrant.QueryPoints{
			CollectionName: coll,
			Query:          qdrant.NewQuery(in.Vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         typeFilter(in.Types),
		})
		if err != nil {
			// A tenant without indexed items has no collection yet.
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				continue
			}
			return nil, fmt.Errorf("query %s: %w", coll, err)
		}
		for _, p := range results {
			hits = append(hits, Hit{
				ID:      p.GetId().GetUuid(),
				Score:   p.GetScore(),
				Payload: extractPayload(p.GetPayload()),
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func typeFilter(types []domain.ItemType) *qdrant.Filter {
	if len(types) == 0 {
		return nil
	}
	keywords := make([]string, len(types))
	for i, t := range types {
		keywords[i] = string(t)
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords("type", keywords...)},
	}
}

// buildPayload carries the fields retrieval ranking and display need
// without a database round trip per hit.
func buildPayload(item *domain.Item) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"item_id":        valueString(item.ID),
		"scope":          valueString(string(item.Scope)),
		"tenant_code":    valueString(item.TenantCode),
		"type":           valueString(string(item.Type)),
		"title":          valueString(item.Title),
		"tags":           valueList(item.Tags),
		"domain_objects": valueList(item.DomainObjects),
		"version":        {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(item.Version)}},
		"updated_at":     valueString(item.UpdatedAt.UTC().Format(time.RFC3339)),
	}
}

func valueString(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func valueList(items []string) *qdrant.Value {
	values := make([]*qdrant.Value, len(items))
	for i, s := range items {
		values[i] = valueString(s)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = extractValue(v)
	}
	return out
}

func extractValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			items = append(items, extractValue(item))
		}
		return items
	default:
		return nil
	}
}
