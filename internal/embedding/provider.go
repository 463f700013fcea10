// Package embedding converts text into fixed-dimension vectors via an
// external provider. Storing and searching use different modes even for
// identical text: the model encodes asymmetric intent, so a document vector
// and a query vector are not interchangeable.
package embedding

import (
	"context"
	"fmt"

	"github.com/recallhq/memory-api/internal/config"
)

type Mode string

const (
	ModeDocument Mode = "search_document"
	ModeQuery    Mode = "search_query"
)

type Provider interface {
	Name() string
	// Embed returns one vector per input text, in input order. Failures are
	// never retried here; callers surface them and commit nothing.
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "cohere", "":
		return NewCohereProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
