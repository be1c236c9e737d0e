package traveltime

import (
	"context"
	"strings"
	"time"
)

// Status marks whether an entry holds a real duration or records a failure.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Entry is one cached lookup for a normalized address pair.
type Entry struct {
	Minutes    int
	ComputedAt time.Time
	Status     Status
}

// Store persists entries. PutIfNewer must not replace an entry whose
// ComputedAt is later than the incoming one; it reports whether it wrote.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	PutIfNewer(ctx context.Context, key string, e Entry, ttl time.Duration) (bool, error)
}

// Normalize folds case and whitespace so formatting differences share a key.
func Normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Key is the cache key of an origin/destination pair.
func Key(origin, destination string) string {
	return Normalize(origin) + "|" + Normalize(destination)
}
