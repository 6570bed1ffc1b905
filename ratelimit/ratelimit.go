package ratelimit

import (
	"context"

	"golang.org/x/sync/semaphore"
)

const MaxConcurrentRequests = 8

// Limiter bounds the number of in-flight upstream requests.
type Limiter struct {
	sem *semaphore.Weighted
}

func New(n int64) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a slot is free or ctx ends. The returned release must
// be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); nil != err {
		return nil, ctx.Err()
	}
	return func() { l.sem.Release(1) }, nil
}
