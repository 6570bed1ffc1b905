package server

import (
	"context"
	"time"
)

// afterGrace returns a context that keeps parent's values and stays alive
// for delay after parent ends. Calling the returned cancel releases it early.
func afterGrace(parent context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() { time.AfterFunc(delay, cancel) })
	return ctx, func() {
		stop()
		cancel()
	}
}
