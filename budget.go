// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// itemBudget is the process-wide counter backing maxBufferedItemCount (I3,
// P5): every producer asks for capacity before issuing a fetch and yields
// it back on consumption. It is built on golang.org/x/sync/semaphore, the
// same weighted-semaphore admission control the reference partition lister
// uses to bound concurrent partition fetches.
type itemBudget struct {
	sem       *semaphore.Weighted
	unlimited bool
}

// newItemBudget builds a budget for maxBufferedItemCount. A non-positive
// max means unbounded, per FeedOptions.MaxBufferedItemCount.
func newItemBudget(max int) *itemBudget {
	if max <= 0 {
		return &itemBudget{unlimited: true}
	}
	return &itemBudget{sem: semaphore.NewWeighted(int64(max))}
}

// acquire blocks until n items' worth of capacity is available or ctx is
// done. A producer that can't acquire capacity simply suspends its
// pre-fetch; it does not fail the query.
func (b *itemBudget) acquire(ctx context.Context, n int64) error {
	if b.unlimited || n == 0 {
		return nil
	}
	return b.sem.Acquire(ctx, n)
}

// tryAcquire is the non-blocking form producers use to decide whether to
// trigger a new fetch at all.
func (b *itemBudget) tryAcquire(n int64) bool {
	if b.unlimited || n == 0 {
		return true
	}
	return b.sem.TryAcquire(n)
}

// release returns n items' worth of capacity, called as a consumer drains
// buffered items out of a producer.
func (b *itemBudget) release(n int64) {
	if b.unlimited || n == 0 {
		return
	}
	b.sem.Release(n)
}

// newFetchLimiter builds the semaphore that bounds how many producers may
// have a fetch outstanding at once, sized by resolveParallelism.
func newFetchLimiter(requested, producerCount int) *semaphore.Weighted {
	n := resolveParallelism(requested, producerCount)
	if n <= 0 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}

// resolveParallelism turns FeedOptions.MaxDegreeOfParallelism into a
// concrete cap on concurrently outstanding per-range fetches:
// -1 means min(producerCount, logicalCores*2); 0 or 1 means serial
// round-robin; any other positive value is used as-is, capped at
// producerCount. With no producers the result is 0.
func resolveParallelism(requested, producerCount int) int {
	if producerCount <= 0 {
		return 0
	}
	switch {
	case requested == -1:
		cap := runtime.NumCPU() * 2
		if producerCount < cap {
			return producerCount
		}
		return cap
	case requested == 0 || requested == 1:
		return 1
	case requested > producerCount:
		return producerCount
	default:
		return requested
	}
}
