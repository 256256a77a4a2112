package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vheim/sage"
)

type fakeStore struct {
	count    int
	countErr error
}

func (s *fakeStore) Init(context.Context) error                  { return nil }
func (s *fakeStore) Upsert(context.Context, []sage.IndexRecord) error { return nil }
func (s *fakeStore) PruneExcept(context.Context, []string) (int, error) {
	return 0, nil
}
func (s *fakeStore) Search(context.Context, []float32, int) ([]sage.SearchResult, error) {
	return nil, nil
}
func (s *fakeStore) Count(context.Context) (int, error) { return s.count, s.countErr }
func (s *fakeStore) Close() error                       { return nil }

type fakeRetriever struct {
	results  []sage.SearchResult
	err      error
	lastTopK int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]sage.SearchResult, error) {
	r.lastTopK = topK
	return r.results, r.err
}

type fakeAsker struct {
	answer sage.Answer
	err    error
	events []sage.StreamEvent
}

func (a *fakeAsker) Ask(context.Context, string) (sage.Answer, error) {
	return a.answer, a.err
}

func (a *fakeAsker) AskStream(_ context.Context, _ string, ch chan<- sage.StreamEvent) (sage.Answer, error) {
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return a.answer, a.err
}

func newTestServer(store sage.Store, retriever sage.Retriever, asker Asker) *httptest.Server {
	s := New(store, retriever, asker)
	return httptest.NewServer(s.Router())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(&fakeStore{count: 42}, &fakeRetriever{}, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Records != 42 {
		t.Errorf("records = %d, want 42", body.Records)
	}
}

func TestSearch(t *testing.T) {
	retriever := &fakeRetriever{results: []sage.SearchResult{
		{Content: "Roll 1d20.", Source: "vault/rules/Combat.md", Title: "Combat", Score: 0.91},
	}}
	srv := newTestServer(&fakeStore{}, retriever, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/search", "application/json",
		strings.NewReader(`{"query":"how do attacks work","top_k":3}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 1 || body.Results[0].Title != "Combat" {
		t.Errorf("results = %+v", body.Results)
	}
	if retriever.lastTopK != 3 {
		t.Errorf("topK = %d, want 3", retriever.lastTopK)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	retriever := &fakeRetriever{}
	srv := newTestServer(&fakeStore{}, retriever, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/search", "application/json",
		strings.NewReader(`{"query":"initiative"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if retriever.lastTopK != 5 {
		t.Errorf("topK = %d, want default 5", retriever.lastTopK)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/search", "application/json",
		strings.NewReader(`{"query":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAsk(t *testing.T) {
	asker := &fakeAsker{answer: sage.Answer{
		Text:    "Attacks use a d20.",
		Sources: []sage.SearchResult{{Title: "Combat", Score: 0.9}},
		Usage:   sage.Usage{InputTokens: 100, OutputTokens: 20},
	}}
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, asker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/ask", "application/json",
		strings.NewReader(`{"question":"how do attacks work"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body askResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Answer != "Attacks use a d20." {
		t.Errorf("answer = %q", body.Answer)
	}
	if len(body.Sources) != 1 {
		t.Errorf("sources = %+v", body.Sources)
	}
	if body.Usage.InputTokens != 100 {
		t.Errorf("usage = %+v", body.Usage)
	}
}

func TestAskRateLimitMapsTo429(t *testing.T) {
	asker := &fakeAsker{err: &sage.ErrHTTP{Status: http.StatusTooManyRequests, Body: "quota"}}
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, asker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/ask", "application/json",
		strings.NewReader(`{"question":"anything"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestAskStreamSSE(t *testing.T) {
	asker := &fakeAsker{
		answer: sage.Answer{Text: "Roll 2d6."},
		events: []sage.StreamEvent{
			{Type: sage.EventSources, Sources: []sage.SearchResult{{Title: "Dice"}}},
			{Type: sage.EventTextDelta, Content: "Roll "},
			{Type: sage.EventTextDelta, Content: "2d6."},
			{Type: sage.EventDone},
		},
	}
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, asker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/ask", "application/json",
		strings.NewReader(`{"question":"dice","stream":true}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	var eventNames []string
	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			eventNames = append(eventNames, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var ev sage.StreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("bad event payload %q: %v", data, err)
			}
			if ev.Type == sage.EventTextDelta {
				text.WriteString(ev.Content)
			}
		}
	}

	want := []string{"sources", "text-delta", "text-delta", "done"}
	if len(eventNames) != len(want) {
		t.Fatalf("events = %v, want %v", eventNames, want)
	}
	for i := range want {
		if eventNames[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, eventNames[i], want[i])
		}
	}
	if text.String() != "Roll 2d6." {
		t.Errorf("text = %q", text.String())
	}
}

func TestRecovererReturnsJSON500(t *testing.T) {
	h := jsonRecoverer(sage.NopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
}

func TestAskRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeRetriever{}, &fakeAsker{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/ask", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
