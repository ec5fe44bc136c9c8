// Package chatprovider is Query's LLM collaborator (§4.4 step 5): it sends
// the integrated message list to the configured chat model with sampling
// parameters and a per-call timeout/retry override. Grounded on
// Tangerg-lynx's openai Api.ChatCompletion wrapper; Groq support is the
// same SDK pointed at Groq's OpenAI-compatible endpoint via
// option.WithBaseURL, mirroring original_source's groq_client.py which
// talks to Groq over the OpenAI wire format.
package chatprovider

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

const groqBaseURL = "https://api.groq.com/openai/v1/"

// Provider dispatches chat completions to OpenAI or Groq depending on
// which client was constructed.
type Provider struct {
	client *openai.Client
}

// NewOpenAI builds a Provider targeting the OpenAI API.
func NewOpenAI(apiKey string) *Provider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &client}
}

// NewGroq builds a Provider targeting Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey string) *Provider {
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(groqBaseURL))
	return &Provider{client: &client}
}

// Complete sends messages to the model with cfg's sampling parameters.
// cfg.TimeoutSeconds and cfg.MaxRetries override the provider defaults
// per call (§4.4 step 5, §5 "effective deadline = min(service default,
// config.timeout)").
func (p *Provider) Complete(ctx context.Context, messages []domainaction.Message, cfg *domainaction.QueryConfig) (string, domainaction.Usage, error) {
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:            cfg.Model,
		Messages:         toOpenAIMessages(messages),
		Temperature:      openai.Float(cfg.Temperature),
		TopP:             openai.Float(cfg.TopP),
		FrequencyPenalty: openai.Float(cfg.FrequencyPenalty),
		PresencePenalty:  openai.Float(cfg.PresencePenalty),
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}

	var opts []option.RequestOption
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", domainaction.Usage{}, classifyProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return "", domainaction.Usage{}, domainerr.Internal(nil, "chat provider returned no choices")
	}

	usage := domainaction.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func toOpenAIMessages(messages []domainaction.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func classifyProviderError(err error) error {
	var apiErr *openai.Error
	if e, ok := err.(*openai.Error); ok {
		apiErr = e
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return domainerr.Transient(err, "chat provider error (status %d)", apiErr.StatusCode)
		}
		return domainerr.Permanent(err, "chat provider error (status %d)", apiErr.StatusCode)
	}
	return domainerr.Transient(err, "chat provider request failed")
}
