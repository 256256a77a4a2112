package sage

// --- Corpus types ---

// Document is one source file loaded from the rules corpus.
// It exists only for the duration of an ingestion run.
type Document struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Chunk is a bounded piece of one document's text, the unit that flows
// through splitting, merging, and enrichment. Chunks from the same document
// stay contiguous and in original order through the whole pipeline.
type Chunk struct {
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IndexRecord is the unit handed to a Store: an enriched chunk plus its
// embedding and the content hash used as the upsert conflict key.
type IndexRecord struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"-"`
	CreatedAt   int64     `json:"created_at"`
}

// SearchResult is a scored record returned from a similarity search.
// Score is in [0, 1]; higher means more relevant.
type SearchResult struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
}

// Answer is the result of a question answered against the corpus.
type Answer struct {
	Text    string         `json:"text"`
	Sources []SearchResult `json:"sources,omitempty"`
	Usage   Usage          `json:"usage"`
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}
