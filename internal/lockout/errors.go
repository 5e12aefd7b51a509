package lockout

import (
	"fmt"
	"time"
)

type AccountLockedError struct {
	Until time.Time
	Scope string // "principal" or "ip"
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("locked until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountLockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}
