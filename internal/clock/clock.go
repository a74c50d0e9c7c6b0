// Package clock gives the rest of the system an injectable notion of "now",
// adapted from the teacher's go/now clock abstraction, so tests can pin
// time instead of racing the wall clock.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

type real struct{}

func (real) Now() time.Time { return time.Now().UTC() }

// Real is the production clock, backed by time.Now.
var Real Clock = real{}

// Fixed is a test clock that always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
