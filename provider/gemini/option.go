package gemini

// Option configures a Gemini chat provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithBaseURL overrides the API base URL. Useful for proxies and tests.
func WithBaseURL(url string) Option {
	return func(g *Gemini) {
		if url != "" {
			g.baseURL = url
		}
	}
}

// EmbeddingOption configures a Gemini embedding provider.
type EmbeddingOption func(*GeminiEmbedding)

// WithEmbeddingBaseURL overrides the API base URL for embeddings.
func WithEmbeddingBaseURL(url string) EmbeddingOption {
	return func(e *GeminiEmbedding) {
		if url != "" {
			e.baseURL = url
		}
	}
}
