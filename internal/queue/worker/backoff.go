package worker

import (
	"math/rand/v2"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff returns the delay before retry number attempt+1:
// 2s, 4s, 8s ... capped at 5m, plus up to 250ms of jitter.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := backoffCap
	if attempt < 20 {
		delay = min(backoffBase<<attempt, backoffCap)
	}

	return delay + time.Duration(rand.IntN(250))*time.Millisecond
}
