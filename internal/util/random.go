// Package util provides utility functions for the intake application.
package util

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// SessionIDRandomRange bounds the random suffix of generated session ids.
const SessionIDRandomRange = 10000

// GenerateSessionID mints a new session id in the format
// "{prefix}-{timestamp}-{random 0..9999}". Session ids are opaque
// correlation strings, not security tokens, so math/rand/v2 is sufficient.
func GenerateSessionID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixMilli(), rand.IntN(SessionIDRandomRange))
}

// GenerateAuthorizationID produces a short human-readable id used to
// correlate a patient's record across forms and follow-ups: a single
// uppercase letter followed by a 5-digit zero-padded number, e.g. "P00427".
func GenerateAuthorizationID(letter string) string {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		letter = "P"
	}
	return fmt.Sprintf("%s%05d", letter, rand.IntN(100000))
}
