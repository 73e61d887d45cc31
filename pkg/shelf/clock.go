package shelf

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time for date and timestamp fields.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to [Clock].
type ClockFunc func() time.Time

// Now implements [Clock].
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the local wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// IDFunc generates values for [AutoUUID] fields.
type IDFunc func() (string, error)

// NewUUIDv7 returns a time-ordered UUID string, so records created later
// sort after earlier ones.
func NewUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}
