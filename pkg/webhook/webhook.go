// Package webhook verifies signed DigiSign webhook deliveries.
//
// The signature header has the form
//
//	t=<unix seconds>,s=<hex HMAC-SHA256 of "<t>.<body>">
//
// Verification is local; no request is made to the service.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum signature age accepted.
const DefaultTolerance = 300 * time.Second

// Verification failures
var (
	ErrMalformed = errors.New("malformed signature header")
	ErrExpired   = errors.New("signature timestamp too old")
	ErrMismatch  = errors.New("signature mismatch")
)

// Signature is a parsed signature header.
type Signature struct {
	Timestamp int64
	Value     string
}

// ParseHeader splits a signature header into its timestamp and signature.
func ParseHeader(header string) (Signature, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		fields[key] = value
	}

	ts, hasT := fields["t"]
	sig, hasS := fields["s"]
	if !hasT || !hasS {
		return Signature{}, fmt.Errorf("%w: need both t and s", ErrMalformed)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, ts)
	}
	return Signature{Timestamp: unix, Value: sig}, nil
}

// Compute returns the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by secret.
func Compute(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign builds a signature header for body at time t.
func Sign(secret string, body []byte, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,s=%s", ts, Compute(secret, ts, body))
}

// Verify checks header against body using the default tolerance.
// It returns nil for a valid signature, or an error matching ErrMalformed,
// ErrExpired or ErrMismatch.
func Verify(header string, body []byte, secret string, now time.Time) error {
	v := Verifier{Secret: secret, Now: func() time.Time { return now }}
	return v.Verify(header, body)
}

// Verifier holds the secret and clock used for verification.
type Verifier struct {
	Secret string
	// Tolerance defaults to DefaultTolerance when zero.
	Tolerance time.Duration
	Now       func() time.Time
}

// Verify checks header against body.
func (v Verifier) Verify(header string, body []byte) error {
	sig, err := ParseHeader(header)
	if err != nil {
		return err
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	age := now().Unix() - sig.Timestamp
	if age > int64(tolerance/time.Second) {
		return fmt.Errorf("%w: %d seconds", ErrExpired, age)
	}

	expected := Compute(v.Secret, sig.Timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrMismatch
	}
	return nil
}
