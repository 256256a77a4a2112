package sage

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventSources carries the retrieved source chunks, emitted once before
	// any text.
	EventSources StreamEventType = "sources"
	// EventTextDelta carries an incremental text chunk from the LLM.
	EventTextDelta StreamEventType = "text-delta"
	// EventDone signals the answer is complete.
	EventDone StreamEventType = "done"
)

// StreamEvent is a typed event emitted while an answer streams.
// Consumers receive these on the channel passed to AskStream.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Content carries the text delta (text-delta only).
	Content string `json:"content,omitempty"`
	// Sources carries the retrieved chunks (sources only).
	Sources []SearchResult `json:"sources,omitempty"`
}
