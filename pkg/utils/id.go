package utils

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewUserID returns a random account identifier.
func NewUserID() string {
	return uuid.NewString()
}

// NewPostID returns a lexically time-ordered identifier, so post keys sort newest-last.
func NewPostID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// NewRequestID returns an id for correlating log lines of one request.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// NewTokenID returns a unique JWT id.
func NewTokenID() string {
	return uuid.NewString()
}
