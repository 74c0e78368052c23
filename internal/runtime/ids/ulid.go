package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-sortable ULID encoded as a 26-character string.
// IDs minted from the same process are strictly monotonic within a millisecond.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// IsULID reports whether s parses as a strict ULID. Used to tell generated
// ids apart from caller-supplied opaque identifiers.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
