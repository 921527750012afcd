package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/knowbase/internal/config"
	"github.com/cloo-solutions/knowbase/internal/domain"
	"github.com/cloo-solutions/knowbase/internal/openai"
	"github.com/cloo-solutions/knowbase/internal/repository"
	"github.com/cloo-solutions/knowbase/internal/vectorindex"
	extopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector collections",
		Long: "Drop and recreate all vector collections at the configured dimensionality, " +
			"then re-upsert every approved item. Cached embeddings with a stale " +
			"dimensionality are regenerated.",
		RunE: runReindex,
	}

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("KNOWBASE_OPENAI_API_KEY is required to regenerate embeddings")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	itemRepo := repository.NewItemRepository(pool)
	tenantRepo := repository.NewTenantRepository(pool)

	qdrantClient, err := vectorindex.NewClient(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	router := vectorindex.NewRouter(qdrantClient, cfg.EmbeddingDimensions)

	oai := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      extopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
	})

	if err := router.RecreateCollection(ctx, domain.ScopeShared, ""); err != nil {
		return fmt.Errorf("failed to recreate shared collection: %w", err)
	}
	fmt.Println("recreated collection kb_shared")

	tenants, err := tenantRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	for _, tenant := range tenants {
		if err := router.RecreateCollection(ctx, domain.ScopeTenant, tenant.Code); err != nil {
			return fmt.Errorf("failed to recreate collection for tenant %s: %w", tenant.Code, err)
		}
		fmt.Printf("recreated collection %s\n", vectorindex.CollectionName(domain.ScopeTenant, tenant.Code))
	}

	items, err := itemRepo.ListApprovedWithEmbedding(ctx)
	if err != nil {
		return fmt.Errorf("failed to load approved items: %w", err)
	}

	reembedded := 0
	for _, entry := range items {
		embedding := entry.Embedding
		if len(embedding) != cfg.EmbeddingDimensions {
			embedding, err = oai.GenerateEmbedding(ctx, entry.Item.Title+"\n\n"+entry.Item.Body)
			if err != nil {
				return fmt.Errorf("failed to re-embed item %s: %w", entry.Item.ID, err)
			}
			if err := itemRepo.UpdateEmbedding(ctx, entry.Item.ID, entry.Item.Version, embedding); err != nil {
				return fmt.Errorf("failed to cache embedding for item %s: %w", entry.Item.ID, err)
			}
			reembedded++
		}
		if err := router.Upsert(ctx, entry.Item, embedding); err != nil {
			return fmt.Errorf("failed to index item %s: %w", entry.Item.ID, err)
		}
	}

	fmt.Printf("reindexed %d items (%d re-embedded)\n", len(items), reembedded)
	return nil
}
