package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(CompletionResult), args.Error(1)
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{embeddings: mockAPI, dimensions: DefaultEmbeddingDimensions}

	ctx := context.Background()
	text := "IDEX timeout during invoice posting."
	expectedEmbedding := make([]float32, DefaultEmbeddingDimensions)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{expectedEmbedding}, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	ctx := context.Background()
	embedding, err := client.GenerateEmbedding(ctx, "")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbeddings_Batch(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{embeddings: mockAPI, dimensions: 4}

	ctx := context.Background()
	texts := []string{"first", "second"}
	vectors := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(vectors, nil)

	got, err := client.GenerateEmbeddings(ctx, texts)

	assert.NoError(t, err)
	assert.Equal(t, vectors, got)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{embeddings: mockAPI, dimensions: DefaultEmbeddingDimensions}

	ctx := context.Background()
	text := "Test text"
	apiErr := errors.New("API rate limit exceeded")

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return(nil, apiErr)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embeddings")
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{embeddings: mockAPI, dimensions: DefaultEmbeddingDimensions}

	ctx := context.Background()
	text := "Test text"
	wrongEmbedding := make([]float32, 512)

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{wrongEmbedding}, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "expected 3072")
	mockAPI.AssertExpectations(t)
}

func TestClient_CreateCompletion(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{chat: mockAPI, dimensions: DefaultEmbeddingDimensions}

	ctx := context.Background()
	req := CompletionRequest{
		System:          "You extract knowledge items.",
		User:            "IDEX timeout. Check EA10.",
		SchemaName:      "kb_items",
		ReasoningEffort: "high",
	}

	mockAPI.On("CreateCompletion", ctx, req).Return(CompletionResult{
		Content: `{"items": []}`,
		Model:   "gpt-5",
	}, nil)

	result, err := client.CreateCompletion(ctx, req)

	assert.NoError(t, err)
	assert.Equal(t, `{"items": []}`, result.Content)
	assert.Equal(t, "gpt-5", result.Model)
	mockAPI.AssertExpectations(t)
}

func TestClient_CreateCompletion_EmptyPrompt(t *testing.T) {
	client := NewClient("test")

	_, err := client.CreateCompletion(context.Background(), CompletionRequest{})

	assert.Equal(t, ErrEmptyText, err)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.embeddings)
	assert.NotNil(t, client.chat)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	assert.NotNil(t, client)
	assert.NoError(t, err)
}

func TestClassifyErr(t *testing.T) {
	authErr := classifyErr("chat completion", &openai.APIError{HTTPStatusCode: 401})
	assert.Contains(t, authErr.Error(), "authentication failed")

	rateErr := classifyErr("create embeddings", &openai.APIError{HTTPStatusCode: 429})
	assert.Contains(t, rateErr.Error(), "rate limited")

	plainErr := classifyErr("chat completion", errors.New("boom"))
	assert.Contains(t, plainErr.Error(), "boom")
}
