package sage

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx response from a provider API. RetryAfter carries the
// server-requested wait (from the Retry-After header) when present; the retry
// decorator uses it as the minimum backoff delay.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, which is either a
// delay in seconds or an HTTP date. Returns 0 for empty or unparseable input.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrLoad reports a corpus directory or file that could not be read.
// Fatal: ingestion aborts before anything is written.
type ErrLoad struct {
	Dir string
	Err error
}

func (e *ErrLoad) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Dir, e.Err)
}

func (e *ErrLoad) Unwrap() error { return e.Err }

// ErrEmptyResult reports an ingestion run that produced zero chunks.
// Raised before any store call, so an empty corpus can never clear a
// populated index.
type ErrEmptyResult struct {
	Dir string
}

func (e *ErrEmptyResult) Error() string {
	return fmt.Sprintf("ingest %s: no chunks produced, refusing to touch the index", e.Dir)
}

// ErrWrite reports a failure in the embed, upsert, or prune stage.
// Propagated as-is; the pipeline never retries or skips individual chunks.
type ErrWrite struct {
	Stage string
	Err   error
}

func (e *ErrWrite) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ErrWrite) Unwrap() error { return e.Err }
