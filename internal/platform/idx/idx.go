// Package idx generates correlation ids for inbound requests.
package idx

import (
	"crypto/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)

	// Caller supplied ids are echoed back in headers and logs, so keep them boring.
	externalID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

// New returns a lexicographically sortable ULID string.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt returns a ULID for the given timestamp.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// FromHeader returns v when it is an acceptable caller supplied id,
// otherwise a fresh one.
func FromHeader(v string) string {
	if externalID.MatchString(v) {
		return v
	}
	return New()
}
