// Package identity derives the numeric notification id for a call.
//
// Ids for non-empty call ids are the Java String.hashCode of the call id, so
// a call keeps the same notification slot whichever client rendered it.
// Without a call id the id comes from the clock and is only meant to avoid
// overwriting a notification that was just shown.
package identity

import (
	"time"
	"unicode/utf16"
)

// timeMask keeps the time-based fallback positive.
const timeMask = 0x0FFFFFFF

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Resolver computes notification ids. The zero value uses the system clock.
type Resolver struct {
	clock Clock
}

// NewResolver returns a Resolver using clock, or the system clock when nil.
func NewResolver(clock Clock) *Resolver {
	if clock == nil {
		clock = systemClock{}
	}
	return &Resolver{clock: clock}
}

// ResolveID returns the notification id for callID.
func (r *Resolver) ResolveID(callID string) int32 {
	if callID != "" {
		return HashString(callID)
	}
	clock := r.clock
	if clock == nil {
		clock = systemClock{}
	}
	return int32(clock.Now().UnixMilli() & timeMask)
}

// HashString is Java's String.hashCode: s[0]*31^(n-1) + ... + s[n-1] over
// UTF-16 code units with int32 wraparound.
func HashString(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(c)
	}
	return h
}
