package ratelimit

import (
	"fmt"
	"time"
)

type RateLimitExceededError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Action, e.RetryAfter)
}
