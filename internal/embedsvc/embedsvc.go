// Package embedsvc is the Embedding leaf service's provider client (§4.6):
// batch embedding generation and single-string query embedding against an
// external provider. Grounded on Tangerg-lynx's openai Api wrapper
// (client.Embeddings.New), replacing the teacher's raw net/http OpenAI
// caller (internal/embeddings/openai.go) with the SDK so retry/backoff on
// transient errors (§4.6, §7) comes from the SDK instead of hand-rolled
// retry loops.
package embedsvc

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// Provider is the external embedding collaborator (§1's "OUT OF SCOPE"
// list, specified only by interface here).
type Provider struct {
	client *openai.Client
}

// New builds a Provider. maxRetries sets the SDK's default bounded
// backoff for transient errors (rate limit, connection, timeout); Batch
// replaces it with rag_config.max_retries when the request carries a
// positive value.
func New(apiKey string, maxRetries int) *Provider {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	)
	return &Provider{client: &client}
}

// BatchResult is the per-text outcome of a batch embed call.
type BatchResult struct {
	ChunkID   string
	Embedding []float32
	Err       error
}

// Batch validates each text against rag_config limits, sends the valid
// subset to the provider in one call, and maps results back by chunk_id
// (§4.6's embedding.batch_process handling). Texts exceeding
// rag_config.MaxTextLength or empty are reported as per-chunk errors
// without ever reaching the provider.
func (p *Provider) Batch(ctx context.Context, texts []string, chunkIDs []string, model string, dimensions int, tenantID string, cfg *domainaction.RAGConfig) ([]BatchResult, domainaction.Usage, time.Duration, error) {
	start := time.Now()
	if len(texts) != len(chunkIDs) {
		return nil, domainaction.Usage{}, 0, domainerr.Validation("texts and chunk_ids must be the same length")
	}

	maxLen := 8191
	if cfg != nil && cfg.MaxTextLength > 0 {
		maxLen = cfg.MaxTextLength
	}

	results := make([]BatchResult, len(texts))
	var validTexts []string
	var validIdx []int
	for i, t := range texts {
		if t == "" {
			results[i] = BatchResult{ChunkID: chunkIDs[i], Err: domainerr.Validation("empty text")}
			continue
		}
		if len(t) > maxLen {
			results[i] = BatchResult{ChunkID: chunkIDs[i], Err: domainerr.Validation("text exceeds max_text_length %d", maxLen)}
			continue
		}
		validTexts = append(validTexts, t)
		validIdx = append(validIdx, i)
	}

	if len(validTexts) == 0 {
		return results, domainaction.Usage{}, time.Since(start), nil
	}

	params := openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: validTexts},
		User:  openai.String(tenantID),
	}
	if dimensions > 0 {
		params.Dimensions = openai.Int(int64(dimensions))
	}

	var opts []option.RequestOption
	if cfg != nil && cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	resp, err := p.client.Embeddings.New(ctx, params, opts...)
	if err != nil {
		return nil, domainaction.Usage{}, time.Since(start), classifyProviderError(err)
	}

	usage := domainaction.Usage{PromptTokens: int(resp.Usage.PromptTokens), TotalTokens: int(resp.Usage.TotalTokens)}

	for i, data := range resp.Data {
		if i >= len(validIdx) {
			break
		}
		origIdx := validIdx[i]
		vec := make([]float32, len(data.Embedding))
		for j, f := range data.Embedding {
			vec[j] = float32(f)
		}
		results[origIdx] = BatchResult{ChunkID: chunkIDs[origIdx], Embedding: vec}
	}

	return results, usage, time.Since(start), nil
}

// Query embeds a single string for retrieval (§4.4 step 3a).
func (p *Provider) Query(ctx context.Context, text, model string, dimensions int, tenantID string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		User:  openai.String(tenantID),
	}
	if dimensions > 0 {
		params.Dimensions = openai.Int(int64(dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if len(resp.Data) == 0 {
		return nil, domainerr.Internal(nil, "embedding provider returned no data")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// classifyProviderError maps an SDK error into the §7 taxonomy. The SDK
// has already retried transient errors internally (rate limit, timeout,
// connection drop) per option.WithMaxRetries; anything still returned
// here is either an exhausted-retry transient error or a non-retryable
// 4xx, both surfaced as ExternalServiceError-equivalents.
func classifyProviderError(err error) error {
	var apiErr *openai.Error
	if ok := asOpenAIError(err, &apiErr); ok {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return domainerr.Transient(err, "embedding provider error (status %d)", apiErr.StatusCode)
		default:
			return domainerr.Permanent(err, "embedding provider error (status %d)", apiErr.StatusCode)
		}
	}
	return domainerr.Transient(err, "embedding provider request failed")
}

func asOpenAIError(err error, target **openai.Error) bool {
	var apiErr *openai.Error
	if e, ok := err.(*openai.Error); ok {
		apiErr = e
		*target = apiErr
		return true
	}
	return false
}
