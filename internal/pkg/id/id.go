package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New generates a ULID for the current time. ULIDs are lexicographically
// sortable by creation time and safe for use as DynamoDB keys.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a ULID stamped with t. IDs drawn for the same millisecond
// increase monotonically, so rows written together keep their order when
// sorted by id.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
