package sage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}

// ContentHash returns the stable identity of an enriched chunk: a sha256 over
// its final content and source path, hex-encoded. Stores use it as the upsert
// conflict key, which is what makes re-ingesting an unchanged corpus a no-op.
// A NUL byte separates the two inputs so (content, source) pairs can never
// collide by concatenation.
func ContentHash(content, source string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}
