//go:build integration

package openai

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()
	text := "IDEX timeout during invoice posting, transaction EA10."

	embedding, err := client.GenerateEmbedding(ctx, text)

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_CreateCompletion_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}},
		"required": ["answer"],
		"additionalProperties": false
	}`)

	result, err := client.CreateCompletion(ctx, CompletionRequest{
		System:     "Answer in one short sentence.",
		User:       "What is a vector database?",
		SchemaName: "short_answer",
		Schema:     schema,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Model)

	var parsed struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &parsed))
	assert.NotEmpty(t, parsed.Answer)
}
