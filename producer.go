// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// defaultPrefetchDepth is how many pages a DocumentProducer will hold
// buffered ahead of the consumer before suspending its fetch loop.
const defaultPrefetchDepth = 2

// DocumentProducer owns the fetch loop, pre-fetch policy, split detection,
// and page ordering for one PartitionKeyRange. It runs its own
// background goroutine; all cross-goroutine state is behind mu, and no
// lock is ever held while calling out to the executor, the routing
// provider, or the Observer.
type DocumentProducer struct {
	target        PartitionKeyRange
	collectionRID string
	query         string
	maxItemCount  int
	prefetchDepth int

	executor RequestExecutor
	routing  RoutingMapProvider
	budget   *itemBudget
	fetches  *semaphore.Weighted
	observer Observer

	notify chan struct{}
	cancel context.CancelFunc

	mu            sync.Mutex
	buffered      []ProducerPage
	pending       bool
	continuation  string
	isDone        bool
	isSplit       bool
	splitChildren []PartitionKeyRange
	failure       error
	lastActivityID string
	itemIdentities []ItemIdentity
}

// documentProducerConfig groups the construction-time dependencies so the
// pipeline factory can build producers without a long positional argument
// list.
type documentProducerConfig struct {
	CollectionRID string
	Query         string
	MaxItemCount  int
	PrefetchDepth int
	Executor      RequestExecutor
	Routing       RoutingMapProvider
	Budget        *itemBudget
	Fetches       *semaphore.Weighted
	Observer      Observer
}

// newDocumentProducer builds a producer for target, seeded with
// continuation (empty for a fresh range), and starts its fetch loop.
func newDocumentProducer(ctx context.Context, target PartitionKeyRange, continuation string, itemIdentities []ItemIdentity, cfg documentProducerConfig) *DocumentProducer {
	prefetch := cfg.PrefetchDepth
	if prefetch <= 0 {
		prefetch = defaultPrefetchDepth
	}
	runCtx, cancel := context.WithCancel(ctx)
	p := &DocumentProducer{
		target:        target,
		collectionRID: cfg.CollectionRID,
		query:         cfg.Query,
		maxItemCount:  cfg.MaxItemCount,
		prefetchDepth: prefetch,
		executor:      cfg.Executor,
		routing:       cfg.Routing,
		budget:        cfg.Budget,
		fetches:       cfg.Fetches,
		observer:      cfg.Observer,
		notify:        make(chan struct{}, 1),
		cancel:        cancel,
		continuation:  continuation,
		itemIdentities: itemIdentities,
	}
	go p.loop(runCtx)
	return p
}

func (p *DocumentProducer) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// loop is the single background goroutine driving this producer. It
// maintains the invariant that at most one fetch is outstanding at a time.
func (p *DocumentProducer) loop(ctx context.Context) {
	for {
		p.mu.Lock()
		shouldFetch := !p.pending && !p.isDone && !p.isSplit && p.failure == nil && len(p.buffered) < p.prefetchDepth
		// The next fetch resumes after the newest buffered page, not after
		// the last page the consumer took.
		continuation := p.continuation
		if n := len(p.buffered); n > 0 {
			continuation = p.buffered[n-1].ContinuationToken
		}
		if shouldFetch {
			p.pending = true
		}
		p.mu.Unlock()

		if !shouldFetch {
			select {
			case <-ctx.Done():
				return
			case <-p.notify:
				continue
			}
		}

		if err := p.budget.acquire(ctx, int64(p.maxItemCount)); err != nil {
			p.mu.Lock()
			p.pending = false
			p.mu.Unlock()
			return
		}

		if p.fetches != nil {
			if ferr := p.fetches.Acquire(ctx, 1); ferr != nil {
				p.budget.release(int64(p.maxItemCount))
				p.mu.Lock()
				p.pending = false
				p.mu.Unlock()
				return
			}
		}

		if p.observer != nil {
			p.observer.OnFetch(p.target.ID, continuation)
		}

		req := Request{
			CollectionRID:  p.collectionRID,
			Query:          p.query,
			RangeID:        p.target.ID,
			Continuation:   continuation,
			MaxItemCount:   p.maxItemCount,
			ItemIdentities: p.itemIdentities,
		}
		result, err := p.executor.Execute(ctx, req)
		if p.fetches != nil {
			p.fetches.Release(1)
		}
		terminal := p.applyFetchResult(ctx, result, err)
		p.wake()
		if terminal {
			return
		}
	}
}

// applyFetchResult folds one fetch's outcome into producer state. It
// returns true if the producer's loop should stop (split, failure, or
// cancellation).
func (p *DocumentProducer) applyFetchResult(ctx context.Context, result ProducerPage, err error) bool {
	if err != nil && IsCode(err, CodePartitionGone) {
		children, ok, rerr := p.routing.TryResolveChildren(ctx, p.collectionRID, p.target.ID)
		p.budget.release(int64(p.maxItemCount))
		p.mu.Lock()
		p.pending = false
		switch {
		case rerr != nil:
			p.failure = wrapError(CodeInternal, "failed to resolve split children", rerr)
		case !ok:
			p.failure = newError(CodeInternal, "partition reported gone but routing map has no children for it")
		default:
			p.isSplit = true
			p.splitChildren = children
		}
		p.mu.Unlock()
		if p.observer != nil && ok && rerr == nil {
			p.observer.OnSplit(p.target.ID, children)
		}
		return true
	}

	if err != nil {
		p.budget.release(int64(p.maxItemCount))
		p.mu.Lock()
		p.pending = false
		p.failure = err
		p.mu.Unlock()
		if p.observer != nil {
			p.observer.OnError(p.target.ID, err)
		}
		return true
	}

	requested := int64(p.maxItemCount)
	actual := int64(len(result.Items))
	if requested > actual {
		p.budget.release(requested - actual)
	}

	p.mu.Lock()
	p.pending = false
	p.buffered = append(p.buffered, result)
	p.lastActivityID = result.ActivityID
	if result.ContinuationToken == "" {
		p.isDone = true
	}
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.OnPageEmitted(p.target.ID, len(result.Items), result.RequestCharge)
	}
	return false
}

// peek returns the head of the buffered pages without consuming it, or
// ok=false if nothing is buffered yet. It never suspends.
func (p *DocumentProducer) peek() (pg ProducerPage, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffered) == 0 {
		return ProducerPage{}, false
	}
	return p.buffered[0], true
}

// next returns the next buffered page, suspending until one is available,
// the producer is done (ok=false, err=nil), it has split (err has
// CodePartitionGone), it failed (err is the terminal failure), or ctx is
// cancelled.
func (p *DocumentProducer) next(ctx context.Context) (ProducerPage, bool, error) {
	for {
		p.mu.Lock()
		if len(p.buffered) > 0 {
			pg := p.buffered[0]
			p.buffered = p.buffered[1:]
			p.continuation = pg.ContinuationToken
			p.budget.release(int64(len(pg.Items)))
			p.mu.Unlock()
			p.wake()
			return pg, true, nil
		}
		if p.failure != nil {
			err := p.failure
			p.mu.Unlock()
			return ProducerPage{}, false, err
		}
		if p.isSplit {
			p.mu.Unlock()
			return ProducerPage{}, false, newError(CodePartitionGone, "partition key range "+p.target.ID+" has split")
		}
		if p.isDone {
			p.mu.Unlock()
			return ProducerPage{}, false, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ProducerPage{}, false, ctx.Err()
		case <-p.notify:
		}
	}
}

// state reports the producer's condition without suspending: exhausted
// means cleanly done with nothing buffered, split means it has split and
// is waiting to be replaced, and a non-nil err is the terminal failure.
// At most one of (exhausted, split, err!=nil) holds.
func (p *DocumentProducer) state() (exhausted, split bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffered) > 0 {
		return false, false, nil
	}
	if p.failure != nil {
		return false, false, p.failure
	}
	if p.isSplit {
		return false, true, nil
	}
	return p.isDone, false, nil
}

// done reports whether the producer has no more pages to offer: either
// cleanly exhausted with an empty buffer, or terminally failed/split (the
// base context treats those as "stop polling this producer" too, surfacing
// the error/split separately).
func (p *DocumentProducer) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffered) == 0 && (p.isDone || p.isSplit || p.failure != nil)
}

// bufferedItemCount returns the total number of items currently buffered.
// The bases do not call it; the buffering bound is enforced by itemBudget.
func (p *DocumentProducer) bufferedItemCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pg := range p.buffered {
		n += len(pg.Items)
	}
	return n
}

// currentContinuation returns the token to put in a CompositeContinuation
// for this range: the continuation of the last page handed to the
// consumer (or the seed continuation, if nothing has been consumed yet).
func (p *DocumentProducer) currentContinuation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.continuation
}

// onSplit returns replacement producers for this producer's children,
// each seeded with this producer's current continuation, covering the
// same key range this producer owned.
func (p *DocumentProducer) onSplit(ctx context.Context, cfg documentProducerConfig) []*DocumentProducer {
	p.mu.Lock()
	children := p.splitChildren
	seed := p.continuation
	identities := p.itemIdentities
	p.mu.Unlock()

	// A ReadMany producer's identities aren't re-partitioned by key range on
	// split: each child re-evaluates the same full identity list, which is
	// correct but wasteful (mid-ReadMany splits are rare point-read edge
	// cases, not the common path this module optimizes for).
	replacements := make([]*DocumentProducer, 0, len(children))
	for _, child := range children {
		replacements = append(replacements, newDocumentProducer(ctx, child, seed, identities, cfg))
	}
	return replacements
}

// close stops the producer's fetch loop and abandons any in-flight fetch;
// results from an abandoned fetch are discarded. Any buffer budget still
// held by unconsumed pages is released, since nothing will ever call
// next() to reclaim it.
func (p *DocumentProducer) close() {
	p.cancel()
	p.mu.Lock()
	held := int64(0)
	for _, pg := range p.buffered {
		held += int64(len(pg.Items))
	}
	p.buffered = nil
	p.mu.Unlock()
	p.budget.release(held)
}
