package sage

import (
	"context"
	"errors"
)

// stubProvider is a test Provider that returns pre-configured results in order.
// Chat and ChatStream share the same result queue via a shared call counter.
type stubProvider struct {
	calls   int
	lastReq ChatRequest
	results []stubResult
}

type stubResult struct {
	resp   ChatResponse
	tokens []string // deltas written to ch in ChatStream
	err    error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) next() stubResult {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i]
	}
	return stubResult{}
}

func (s *stubProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	s.lastReq = req
	r := s.next()
	return r.resp, r.err
}

func (s *stubProvider) ChatStream(_ context.Context, req ChatRequest, ch chan<- string) (ChatResponse, error) {
	defer close(ch)
	s.lastReq = req
	r := s.next()
	for _, tok := range r.tokens {
		ch <- tok
	}
	return r.resp, r.err
}

var _ Provider = (*stubProvider)(nil)

// stubEmbedding returns a fixed vector per text, or a configured error.
type stubEmbedding struct {
	calls int
	dims  int
	err   error
}

func (s *stubEmbedding) Name() string { return "stub-embed" }

func (s *stubEmbedding) Dimensions() int {
	if s.dims > 0 {
		return s.dims
	}
	return 3
}

func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

var _ EmbeddingProvider = (*stubEmbedding)(nil)

// recordingStore records every mutation and serves canned search results.
type recordingStore struct {
	inited    bool
	upserted  [][]IndexRecord
	pruned    [][]string
	searchRes []SearchResult
	searchErr error
}

func (s *recordingStore) Init(_ context.Context) error { s.inited = true; return nil }

func (s *recordingStore) Upsert(_ context.Context, records []IndexRecord) error {
	cp := make([]IndexRecord, len(records))
	copy(cp, records)
	s.upserted = append(s.upserted, cp)
	return nil
}

func (s *recordingStore) PruneExcept(_ context.Context, hashes []string) (int, error) {
	cp := make([]string, len(hashes))
	copy(cp, hashes)
	s.pruned = append(s.pruned, cp)
	return 0, nil
}

func (s *recordingStore) Search(_ context.Context, _ []float32, topK int) ([]SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.searchRes) > topK {
		return s.searchRes[:topK], nil
	}
	return s.searchRes, nil
}

func (s *recordingStore) Count(_ context.Context) (int, error) {
	var n int
	for _, batch := range s.upserted {
		n += len(batch)
	}
	return n, nil
}

func (s *recordingStore) Close() error { return nil }

var _ Store = (*recordingStore)(nil)

var errBoom = errors.New("boom")
