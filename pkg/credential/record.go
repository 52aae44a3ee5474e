// Package credential persists the cached bearer token used by the DigiSign client.
//
// A single Record lives at a configured path. Saving replaces it wholesale;
// there is no history and no locking between processes (last write wins).
package credential

import (
	"fmt"
	"time"
)

// StaleMargin is subtracted from the expiry when deciding whether a token
// can still be used.
const StaleMargin = 60 * time.Second

// Record is a bearer token with its issue and expiry times in unix seconds.
type Record struct {
	Token     string `json:"token"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalid)
	}
	if r.Token == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalid)
	}
	if r.ExpiresAt <= r.IssuedAt {
		return fmt.Errorf("%w: exp %d is not after iat %d", ErrInvalid, r.ExpiresAt, r.IssuedAt)
	}
	return nil
}

// Stale reports whether the token is expired or within StaleMargin of expiring.
func (r *Record) Stale(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt-int64(StaleMargin/time.Second)
}

// ExpiresIn returns the time left until expiry, never negative.
func (r *Record) ExpiresIn(now time.Time) time.Duration {
	left := time.Unix(r.ExpiresAt, 0).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IssuedTime returns IssuedAt as a time.Time.
func (r *Record) IssuedTime() time.Time {
	return time.Unix(r.IssuedAt, 0)
}

// ExpiryTime returns ExpiresAt as a time.Time.
func (r *Record) ExpiryTime() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}
