// Package openai implements the sage providers on top of the OpenAI API.
// Any OpenAI-compatible endpoint works via WithBaseURL (Groq, DeepSeek,
// Together, Mistral, local Ollama).
package openai

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	sage "github.com/vheim/sage"
)

// Provider implements sage.Provider using the chat completions API.
type Provider struct {
	client      *openai.Client
	model       string
	name        string
	temperature float32
}

// Option configures a Provider or an Embedding.
type Option func(*config)

type config struct {
	baseURL     string
	name        string
	temperature float32
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithName overrides the reported provider name (default "openai"). Useful
// when the endpoint is a compatible third party.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float32) Option {
	return func(c *config) { c.temperature = t }
}

func newClient(apiKey string, cfg config) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func applyOptions(opts []Option) config {
	cfg := config{name: "openai", temperature: 0.1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New creates an OpenAI chat provider.
func New(apiKey, model string, opts ...Option) *Provider {
	cfg := applyOptions(opts)
	return &Provider{
		client:      newClient(apiKey, cfg),
		model:       model,
		name:        cfg.name,
		temperature: cfg.temperature,
	}
}

var _ sage.Provider = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request.
func (p *Provider) Chat(ctx context.Context, req sage.ChatRequest) (sage.ChatResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toMessages(req.Messages),
		Temperature: p.temperature,
	})
	if err != nil {
		return sage.ChatResponse{}, p.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return sage.ChatResponse{}, &sage.ErrLLM{Provider: p.name, Message: "empty choices in response"}
	}
	return sage.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: sage.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// ChatStream streams text deltas into ch and returns the accumulated
// response. The channel is closed when streaming completes.
func (p *Provider) ChatStream(ctx context.Context, req sage.ChatRequest, ch chan<- string) (sage.ChatResponse, error) {
	defer close(ch)

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toMessages(req.Messages),
		Temperature: p.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		return sage.ChatResponse{}, p.wrapErr(err)
	}
	defer stream.Close()

	var content []byte
	var usage sage.Usage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sage.ChatResponse{}, p.wrapErr(err)
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			content = append(content, delta...)
			ch <- delta
		}
	}
	return sage.ChatResponse{Content: string(content), Usage: usage}, nil
}

// wrapErr maps go-openai errors onto the sage taxonomy so the retry
// decorator can inspect HTTP status codes uniformly across providers.
func (p *Provider) wrapErr(err error) error {
	return mapError(p.name, err)
}

func mapError(name string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &sage.ErrHTTP{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &sage.ErrHTTP{Status: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}
	return &sage.ErrLLM{Provider: name, Message: err.Error()}
}

func toMessages(messages []sage.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// ---- Embedding provider ----

// Embedding implements sage.EmbeddingProvider using the embeddings API.
// All texts in a batch go out in a single request.
type Embedding struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
	name   string
}

// NewEmbedding creates an OpenAI embedding provider.
func NewEmbedding(apiKey, model string, dims int, opts ...Option) *Embedding {
	cfg := applyOptions(opts)
	return &Embedding{
		client: newClient(apiKey, cfg),
		model:  openai.EmbeddingModel(model),
		dims:   dims,
		name:   cfg.name,
	}
}

var _ sage.EmbeddingProvider = (*Embedding)(nil)

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed embeds all texts in one request, preserving input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dims > 0 {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, mapError(e.name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &sage.ErrLLM{Provider: e.name, Message: "embedding count does not match input count"}
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		// The API may return data out of order; Index restores it.
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &sage.ErrLLM{Provider: e.name, Message: "embedding index out of range"}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
