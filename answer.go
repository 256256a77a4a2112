package sage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultSystemPrompt instructs the model to answer strictly from the
// retrieved rules excerpts.
const DefaultSystemPrompt = `You are a rules assistant for a tabletop game.
Answer the question using only the rules excerpts provided. Quote dice
notation and numbers exactly as written. If the excerpts do not contain the
answer, say the rules do not cover it.`

// noAnswerText is returned without an LLM call when retrieval finds nothing.
const noAnswerText = "I couldn't find anything about that in the rules."

// AnswerOption configures an Answerer.
type AnswerOption func(*Answerer)

// WithTopK sets how many chunks are retrieved as context. Default is 5.
func WithTopK(n int) AnswerOption {
	return func(a *Answerer) {
		if n > 0 {
			a.topK = n
		}
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) AnswerOption {
	return func(a *Answerer) { a.systemPrompt = prompt }
}

// WithAnswerLogger sets a structured logger. Default discards.
func WithAnswerLogger(l *slog.Logger) AnswerOption {
	return func(a *Answerer) { a.logger = l }
}

// Answerer answers questions against the indexed corpus:
// retrieve → assemble a numbered context block → ask the LLM.
type Answerer struct {
	provider     Provider
	retriever    Retriever
	topK         int
	systemPrompt string
	logger       *slog.Logger
}

// NewAnswerer creates an Answerer from a chat provider and a retriever.
func NewAnswerer(provider Provider, retriever Retriever, opts ...AnswerOption) *Answerer {
	a := &Answerer{
		provider:     provider,
		retriever:    retriever,
		topK:         5,
		systemPrompt: DefaultSystemPrompt,
		logger:       nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Ask retrieves context for question and returns a complete answer.
// When retrieval returns nothing, a fixed "not in the rules" answer comes
// back without calling the LLM.
func (a *Answerer) Ask(ctx context.Context, question string) (Answer, error) {
	sources, req, err := a.prepare(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	if len(sources) == 0 {
		return Answer{Text: noAnswerText}, nil
	}

	resp, err := a.provider.Chat(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("chat: %w", err)
	}
	a.logger.Debug("answered", "question_len", len(question), "sources", len(sources),
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return Answer{Text: resp.Content, Sources: sources, Usage: resp.Usage}, nil
}

// AskStream answers question while streaming events into ch: one EventSources
// with the retrieved chunks, then text deltas, then EventDone. ch is closed
// before returning. The returned Answer carries the full accumulated text.
func (a *Answerer) AskStream(ctx context.Context, question string, ch chan<- StreamEvent) (Answer, error) {
	sources, req, err := a.prepare(ctx, question)
	if err != nil {
		close(ch)
		return Answer{}, err
	}
	if len(sources) == 0 {
		ch <- StreamEvent{Type: EventTextDelta, Content: noAnswerText}
		ch <- StreamEvent{Type: EventDone}
		close(ch)
		return Answer{Text: noAnswerText}, nil
	}

	ch <- StreamEvent{Type: EventSources, Sources: sources}

	deltas := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for delta := range deltas {
			ch <- StreamEvent{Type: EventTextDelta, Content: delta}
		}
	}()

	resp, err := a.provider.ChatStream(ctx, req, deltas)
	<-done
	if err != nil {
		close(ch)
		return Answer{}, fmt.Errorf("chat stream: %w", err)
	}
	ch <- StreamEvent{Type: EventDone}
	close(ch)
	return Answer{Text: resp.Content, Sources: sources, Usage: resp.Usage}, nil
}

// prepare retrieves context and builds the chat request. A nil sources slice
// means retrieval found nothing relevant.
func (a *Answerer) prepare(ctx context.Context, question string) ([]SearchResult, ChatRequest, error) {
	sources, err := a.retriever.Retrieve(ctx, question, a.topK)
	if err != nil {
		return nil, ChatRequest{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(sources) == 0 {
		a.logger.Debug("no sources retrieved", "question_len", len(question))
		return nil, ChatRequest{}, nil
	}

	var block strings.Builder
	block.WriteString("Rules excerpts:\n\n")
	for i, r := range sources {
		fmt.Fprintf(&block, "[%d] %s\n%s\n\n", i+1, r.Title, r.Content)
	}
	fmt.Fprintf(&block, "Question: %s", question)

	req := ChatRequest{Messages: []ChatMessage{
		SystemMessage(a.systemPrompt),
		UserMessage(block.String()),
	}}
	return sources, req, nil
}
