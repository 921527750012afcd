//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/knowbase/internal/api/handlers"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/jobs"
	"github.com/cloo-solutions/knowbase/internal/openai"
	"github.com/cloo-solutions/knowbase/internal/repository"
	"github.com/cloo-solutions/knowbase/internal/server"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/cloo-solutions/knowbase/internal/synthesis"
	"github.com/cloo-solutions/knowbase/internal/testutil"
	"github.com/cloo-solutions/knowbase/internal/vectorindex"
	"github.com/jackc/pgx/v5/pgxpool"
)

// embeddingDims matches the kb_items embedding column.
const embeddingDims = 3072

// E2ETestEnv holds all resources needed for E2E tests. The model and
// vector edges are stubbed: synthesis and answering use canned
// completions, and the index is an in-memory implementation, so the
// tests exercise the real HTTP surface, services, and Postgres without
// external APIs.
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Auth         *service.AuthService
	Worker       *jobs.IndexWorker
	Index        *memoryVectorIndex
	APIToken     string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a Postgres
// container and an in-process HTTP server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser, authSvc, worker, index := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Auth:         authSvc,
		Worker:       worker,
		Index:        index,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap issues an API key directly through the auth service, the
// way the knowbased apikey create admin command does.
func (e *E2ETestEnv) Bootstrap() {
	token, err := e.Auth.CreateAPIKey(e.Ctx, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.APIToken = token
}

// ProcessIndexJobs drains pending index jobs the way the background
// worker would, so tests control when approved items become searchable.
func (e *E2ETestEnv) ProcessIndexJobs() {
	// Two passes: approve-then-edit flows queue a delete for the old
	// version in the same batch window as the upsert for the new one.
	for i := 0; i < 2; i++ {
		if err := e.Worker.ProcessJobs(e.Ctx); err != nil {
			e.T.Fatalf("failed to process index jobs: %v", err)
		}
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Patch performs a PATCH request
func (e *E2ETestEnv) Patch(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("PATCH", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// PostFile uploads a document to /ingest/file as multipart form data.
func (e *E2ETestEnv) PostFile(path, filename string, content []byte, fields map[string]string, authToken string) (*APIResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// startServer wires real repositories and services against the test
// database, with stubbed model clients and an in-memory vector index.
func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func(), *service.AuthService, *jobs.IndexWorker, *memoryVectorIndex) {
	itemRepo := repository.NewItemRepository(pool)
	ingestionRepo := repository.NewIngestionRepository(pool)
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	embedder := &stubEmbedder{}
	index := newMemoryVectorIndex()

	authSvc := service.NewAuthService(apiKeyRepo, uuidGen)
	storeSvc := service.NewStoreService(itemRepo)
	tenantSvc := service.NewTenantService(tenantRepo)
	reviewSvc := service.NewReviewService(itemRepo, ingestionRepo, txRunner)
	ingestSvc := service.NewIngestService(service.IngestServiceConfig{
		IngestionRepo: ingestionRepo,
		Store:         storeSvc,
		Pipeline:      synthesis.NewPipeline(&stubSynthesisGenerator{}),
		Tenants:       tenantSvc,
	})
	retrievalSvc := service.NewRetrievalService(service.RetrievalServiceConfig{
		Embedder:  embedder,
		Searcher:  index,
		Generator: &stubAnswerGenerator{},
		ItemRepo:  itemRepo,
		QueryLog:  queryLogRepo,
	})

	worker := jobs.NewIndexWorker(indexJobRepo, itemRepo, embedder, index)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: authSvc,
		IngestHandler: handlers.NewIngestHandler(ingestSvc, reviewSvc),
		ItemsHandler:  handlers.NewItemsHandler(storeSvc, reviewSvc),
		AskHandler:    handlers.NewAskHandler(retrievalSvc),
		TenantHandler: handlers.NewTenantHandler(tenantSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	closer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return serverURL, closer, authSvc, worker, index
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// stubSynthesisGenerator returns a fixed two-item candidate payload so
// the ingestion pipeline runs end to end without a model call.
type stubSynthesisGenerator struct{}

func (g *stubSynthesisGenerator) CreateCompletion(_ context.Context, _ openai.CompletionRequest) (openai.CompletionResult, error) {
	payload := map[string]any{
		"items": []map[string]any{
			{
				"type":           "incident-pattern",
				"title":          "IDEX transfer stuck after EA10 rejection",
				"body":           "IDEX document transfers stall when EA10 rejects the inbound document. The transfer queue shows status 51 and does not retry on its own.",
				"tags":           []string{"IDEX", "billing"},
				"domain_objects": []string{"EA10"},
				"signals":        map[string]any{"error_code": "51"},
			},
			{
				"type":           "resolution",
				"title":          "Re-trigger IDEX transfer after fixing EA10",
				"body":           "Correct the rejected document in EA10, then restart the IDEX transfer from the monitor. The queue entry moves out of status 51 once EA10 accepts.",
				"tags":           []string{"IDEX"},
				"domain_objects": []string{"EA10"},
				"signals":        map[string]any{"error_code": "51"},
			},
		},
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return openai.CompletionResult{}, err
	}
	return openai.CompletionResult{Content: string(content), Model: "gpt-5-test"}, nil
}

// stubAnswerGenerator answers from the retrieved context without a
// model call; it echoes the first item title so tests can assert the
// context reached the generator.
type stubAnswerGenerator struct{}

func (g *stubAnswerGenerator) CreateCompletion(_ context.Context, req openai.CompletionRequest) (openai.CompletionResult, error) {
	answer := "Based on the knowledge base, fix the rejected document in EA10 and restart the IDEX transfer."
	if idx := strings.Index(req.User, "Title: "); idx >= 0 {
		line := req.User[idx+len("Title: "):]
		if end := strings.IndexByte(line, '\n'); end >= 0 {
			line = line[:end]
		}
		answer += " (see: " + line + ")"
	}
	return openai.CompletionResult{Content: answer, Model: "gpt-5-test"}, nil
}

// stubEmbedder produces a deterministic bag-of-words hash vector, so
// texts sharing terms get a higher cosine similarity than unrelated
// ones. Good enough to rank IDEX items above glossary noise.
type stubEmbedder struct{}

func (e *stubEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?()[]\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%embeddingDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

type indexEntry struct {
	scope      domain.Scope
	tenantCode string
	itemType   domain.ItemType
	title      string
	vector     []float32
}

// memoryVectorIndex is an in-memory stand-in for the Qdrant router. It
// satisfies both the index worker's sink and the retrieval searcher.
type memoryVectorIndex struct {
	mu      sync.Mutex
	entries map[string]indexEntry
}

func newMemoryVectorIndex() *memoryVectorIndex {
	return &memoryVectorIndex{entries: make(map[string]indexEntry)}
}

func (m *memoryVectorIndex) EnsureCollection(_ context.Context, _ domain.Scope, _ string) error {
	return nil
}

func (m *memoryVectorIndex) Upsert(_ context.Context, item *domain.Item, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[item.ID] = indexEntry{
		scope:      item.Scope,
		tenantCode: item.TenantCode,
		itemType:   item.Type,
		title:      item.Title,
		vector:     vector,
	}
	return nil
}

func (m *memoryVectorIndex) Delete(_ context.Context, _ domain.Scope, _ string, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, itemID)
	return nil
}

// Len reports how many items are currently indexed.
func (m *memoryVectorIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryVectorIndex) Search(_ context.Context, in vectorindex.SearchInput) ([]vectorindex.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []vectorindex.Hit
	for id, entry := range m.entries {
		if !m.matchesSelector(entry, in.Selector, in.TenantCode) {
			continue
		}
		if len(in.Types) > 0 && !containsType(in.Types, entry.itemType) {
			continue
		}
		hits = append(hits, vectorindex.Hit{
			ID:    id,
			Score: dot(entry.vector, in.Vector),
			Payload: map[string]any{
				"title": entry.title,
				"type":  string(entry.itemType),
			},
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if in.Limit > 0 && len(hits) > in.Limit {
		hits = hits[:in.Limit]
	}
	return hits, nil
}

func (m *memoryVectorIndex) matchesSelector(entry indexEntry, selector domain.ScopeSelector, tenantCode string) bool {
	switch selector {
	case domain.SelectSharedOnly:
		return entry.scope == domain.ScopeShared
	case domain.SelectTenantOnly:
		return entry.scope == domain.ScopeTenant && entry.tenantCode == tenantCode
	case domain.SelectTenantPlusShared:
		return entry.scope == domain.ScopeShared ||
			(entry.scope == domain.ScopeTenant && entry.tenantCode == tenantCode)
	default:
		return false
	}
}

func containsType(types []domain.ItemType, t domain.ItemType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
