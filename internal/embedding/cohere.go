package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recallhq/memory-api/internal/apperr"
)

type CohereProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewCohereProvider(apiKey, baseURL, model string, timeout time.Duration) *CohereProvider {
	if baseURL == "" {
		baseURL = "https://api.cohere.ai"
	}
	if model == "" {
		model = "embed-english-v3.0"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CohereProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *CohereProvider) Name() string { return "cohere" }

type cohereEmbedReq struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *CohereProvider) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, _ := json.Marshal(cohereEmbedReq{
		Texts:     texts,
		Model:     p.model,
		InputType: string(mode),
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding",
			fmt.Errorf("cohere embed: status %d: %s", resp.StatusCode, detail))
	}

	var out cohereEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, apperr.Wrap(apperr.EmbeddingFailed, "failed to generate embedding",
			fmt.Errorf("cohere embed: got %d embeddings for %d texts", len(out.Embeddings), len(texts)))
	}

	return out.Embeddings, nil
}
