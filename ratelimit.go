package sage

import (
	"context"
	"sync"
	"time"
)

// rateLimitProvider wraps a Provider with proactive rate limiting.
// Requests are blocked until the rate budget allows them to proceed.
type rateLimitProvider struct {
	inner Provider
	lim   *slidingLimiter
}

// slidingLimiter enforces request- and token-per-minute budgets with
// sliding windows. Shared by the chat and embedding decorators.
type slidingLimiter struct {
	mu sync.Mutex

	// RPM state: sliding window of request timestamps.
	rpm       int
	rpmWindow []time.Time

	// TPM state: sliding window of (timestamp, tokenCount) pairs.
	tpm       int
	tpmWindow []tpmEntry
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rate-limit decorator.
type RateLimitOption func(*slidingLimiter)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption {
	return func(l *slidingLimiter) { l.rpm = n }
}

// TPM sets the maximum tokens per minute (input + output combined).
// Token counts are recorded from ChatResponse.Usage after each request.
// This is a soft limit — the request that exceeds the budget completes,
// but subsequent requests block until the window slides.
func TPM(n int) RateLimitOption {
	return func(l *slidingLimiter) { l.tpm = n }
}

// WithRateLimit wraps p with proactive rate limiting. Compose with other wrappers:
//
//	chatLLM = sage.WithRateLimit(provider, sage.RPM(60))
//	chatLLM = sage.WithRateLimit(sage.WithRetry(provider), sage.RPM(60), sage.TPM(100000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	lim := &slidingLimiter{}
	for _, opt := range opts {
		opt(lim)
	}
	return &rateLimitProvider{inner: p, lim: lim}
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.lim.waitForBudget(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil {
		r.lim.recordUsage(resp.Usage)
	}
	return resp, err
}

func (r *rateLimitProvider) ChatStream(ctx context.Context, req ChatRequest, ch chan<- string) (ChatResponse, error) {
	if err := r.lim.waitForBudget(ctx); err != nil {
		close(ch)
		return ChatResponse{}, err
	}
	resp, err := r.inner.ChatStream(ctx, req, ch)
	if err == nil {
		r.lim.recordUsage(resp.Usage)
	}
	return resp, err
}

// rateLimitEmbedding wraps an EmbeddingProvider with the same sliding-window
// limiter. Embedding batches count as one request; token budget is unused
// unless the caller sets TPM and the provider reports usage elsewhere.
type rateLimitEmbedding struct {
	inner EmbeddingProvider
	lim   *slidingLimiter
}

// WithEmbeddingRateLimit wraps p with proactive request rate limiting.
// Each Embed call, regardless of batch size, consumes one request slot.
func WithEmbeddingRateLimit(p EmbeddingProvider, opts ...RateLimitOption) EmbeddingProvider {
	lim := &slidingLimiter{}
	for _, opt := range opts {
		opt(lim)
	}
	return &rateLimitEmbedding{inner: p, lim: lim}
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.lim.waitForBudget(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// waitForBudget blocks until both RPM and TPM budgets allow a request.
// Returns ctx.Err() if the context is cancelled while waiting.
func (l *slidingLimiter) waitForBudget(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		// Prune expired entries.
		l.rpmWindow = pruneTime(l.rpmWindow, cutoff)
		l.tpmWindow = pruneTpm(l.tpmWindow, cutoff)

		rpmOK := l.rpm <= 0 || len(l.rpmWindow) < l.rpm

		tpmOK := true
		if l.tpm > 0 {
			var total int
			for _, e := range l.tpmWindow {
				total += e.tokens
			}
			tpmOK = total < l.tpm
		}

		if rpmOK && tpmOK {
			if l.rpm > 0 {
				l.rpmWindow = append(l.rpmWindow, now)
			}
			l.mu.Unlock()
			return nil
		}

		// Wait until the oldest entry in the blocking window expires.
		var wait time.Duration
		if !rpmOK && len(l.rpmWindow) > 0 {
			wait = l.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !tpmOK && len(l.tpmWindow) > 0 {
			w := l.tpmWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// recordUsage adds token counts to the TPM sliding window.
func (l *slidingLimiter) recordUsage(u Usage) {
	if l.tpm <= 0 {
		return
	}
	total := u.InputTokens + u.OutputTokens
	if total <= 0 {
		return
	}
	l.mu.Lock()
	l.tpmWindow = append(l.tpmWindow, tpmEntry{at: time.Now(), tokens: total})
	l.mu.Unlock()
}

// pruneTime removes entries older than cutoff from a sorted time slice.
func pruneTime(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

// pruneTpm removes entries older than cutoff from a sorted tpmEntry slice.
func pruneTpm(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

// compile-time checks
var (
	_ Provider          = (*rateLimitProvider)(nil)
	_ EmbeddingProvider = (*rateLimitEmbedding)(nil)
)
