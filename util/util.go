package util

import (
	"context"
	"time"
)

// SleepCtx waits for the delay unless the context ends first. Returns
// false if it was cut short.
func SleepCtx(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
