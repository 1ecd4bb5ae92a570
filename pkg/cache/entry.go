package cache

import (
	"time"
)

// Entry is one cached page payload.
type Entry struct {
	// Payload is the raw page payload, in whatever wire shape the server
	// returned. Normalization happens on read, as it would for a live fetch.
	Payload []byte `json:"payload"`

	// FetchedAt is when the payload was fetched from the server.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration. Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
