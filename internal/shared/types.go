package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns prefix followed by 32 lowercase hex characters.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Clock lets stores and services be driven by a fixed time in tests.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
