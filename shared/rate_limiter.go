package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SendRateLimiter enforces a minimum delay between outbound email sends so a
// full bulk-notification sweep stays under the provider's rate limits.
type SendRateLimiter struct {
	minimumDelay time.Duration
	lastSendTime time.Time
	mutex        sync.Mutex
	sendCount    int64
}

// NewSendRateLimiter creates a rate limiter with the specified minimum delay
// between sends.
func NewSendRateLimiter(minimumDelay time.Duration) *SendRateLimiter {
	return &SendRateLimiter{
		minimumDelay: minimumDelay,
		lastSendTime: time.Now(),
	}
}

// EnforceRateLimit blocks until the minimum delay has elapsed since the last
// send.
func (limiter *SendRateLimiter) EnforceRateLimit() {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	elapsed := time.Since(limiter.lastSendTime)
	if elapsed < limiter.minimumDelay {
		remaining := limiter.minimumDelay - elapsed

		logrus.WithFields(logrus.Fields{
			"component":       "SendRateLimiter",
			"elapsed_time":    elapsed,
			"remaining_delay": remaining,
			"send_count":      limiter.sendCount + 1,
		}).Debug("Enforcing send delay")

		time.Sleep(remaining)
	}

	limiter.lastSendTime = time.Now()
	limiter.sendCount++
}

// GetSendCount returns the total number of sends processed.
func (limiter *SendRateLimiter) GetSendCount() int64 {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return limiter.sendCount
}
