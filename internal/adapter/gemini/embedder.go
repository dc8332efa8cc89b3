package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"mercora/backend/internal/settings"
)

type EmbedderConfig struct {
	// Model is the only place the embedding model is chosen; indexing and
	// retrieval share the same embedder.
	Model      string
	RatePerSec float64
	Timeout    time.Duration
}

type DynamicEmbedder struct {
	clients *clientCache
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

func NewDynamicEmbedder(svc *settings.Service, cfg EmbedderConfig, opts ...option.ClientOption) *DynamicEmbedder {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &DynamicEmbedder{
		clients: newClientCache(svc, opts),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, 1),
		timeout: cfg.Timeout,
	}
}

func (e *DynamicEmbedder) Model() string {
	return e.model
}

func (e *DynamicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, release, err := e.clients.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer release()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding received", ErrEmbeddingUnavailable)
	}
	return res.Embedding.Values, nil
}

func (e *DynamicEmbedder) Close() error {
	return e.clients.Close()
}
