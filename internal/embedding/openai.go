package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recallhq/memory-api/internal/apperr"
)

// OpenAIProvider is an alternate backend. OpenAI embedding models are
// symmetric, so the document/query mode carries no wire effect here; it is
// still threaded through so call sites stay provider-agnostic.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, _ Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding",
			fmt.Errorf("openai embed: got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}
