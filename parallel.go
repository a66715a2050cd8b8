// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"sort"
)

// parallelBase drains producers with no ordering requirement. It
// round-robins whichever producers currently have a buffered page,
// concatenating whole pages until the requested page size is reached or
// every producer has been polled once.
type parallelBase struct {
	ctx       context.Context
	cfg       documentProducerConfig
	producers []*DocumentProducer
	rrIndex   int
}

// newParallelBase builds a Parallel base context with one producer per
// seed, sorted by rangeMin for deterministic tie-breaking.
func newParallelBase(ctx context.Context, seeds []producerSeed, cfg documentProducerConfig) *parallelBase {
	b := &parallelBase{ctx: ctx, cfg: cfg}
	for _, s := range seeds {
		b.producers = append(b.producers, newDocumentProducer(ctx, s.Range, s.Continuation, s.ItemIdentities, cfg))
	}
	b.sortProducers()
	return b
}

func (b *parallelBase) sortProducers() {
	sort.Slice(b.producers, func(i, j int) bool {
		return b.producers[i].target.MinInclusive < b.producers[j].target.MinInclusive
	})
}

func (b *parallelBase) prune() {
	live := b.producers[:0]
	for _, pr := range b.producers {
		exhausted, split, err := pr.state()
		if err == nil && split == false && exhausted {
			continue // fully drained, drop it
		}
		live = append(live, pr)
	}
	b.producers = live
}

func (b *parallelBase) replaceSplit(ctx context.Context, idx int) error {
	pr := b.producers[idx]
	replacements := pr.onSplit(ctx, b.cfg)
	if len(replacements) == 0 {
		return newError(CodeInternal, "split producer produced no replacements")
	}
	pr.close()
	rest := append([]*DocumentProducer{}, b.producers[:idx]...)
	rest = append(rest, replacements...)
	rest = append(rest, b.producers[idx+1:]...)
	b.producers = rest
	b.sortProducers()
	return nil
}

func (b *parallelBase) closeAll() {
	for _, pr := range b.producers {
		pr.close()
	}
}

func (b *parallelBase) drain(ctx context.Context, maxPageSize int) (*page, error) {
	out := newPage()
	for {
		b.prune()
		if len(b.producers) == 0 {
			if len(out.items) == 0 {
				return nil, nil
			}
			return out, nil
		}

		progressed := false
		n := len(b.producers)
		for i := 0; i < n; i++ {
			idx := (b.rrIndex + i) % n
			pr := b.producers[idx]

			exhausted, split, err := pr.state()
			if err != nil {
				b.closeAll()
				return nil, err
			}
			if split {
				if rerr := b.replaceSplit(ctx, idx); rerr != nil {
					b.closeAll()
					return nil, rerr
				}
				progressed = true
				break
			}
			if exhausted {
				continue
			}
			if _, ok := pr.peek(); !ok {
				continue // nothing ready yet; don't block this pass
			}
			pg, ok, nerr := pr.next(ctx)
			if nerr != nil {
				if IsCode(nerr, CodePartitionGone) {
					if rerr := b.replaceSplit(ctx, idx); rerr != nil {
						b.closeAll()
						return nil, rerr
					}
					progressed = true
					break
				}
				b.closeAll()
				return nil, nerr
			}
			if !ok {
				continue
			}
			out.absorb(pg)
			progressed = true
			if len(out.items) >= maxPageSize {
				b.rrIndex = (idx + 1) % n
				return out, nil
			}
		}

		if progressed {
			b.rrIndex = 0
			if len(out.items) > 0 {
				return out, nil
			}
			continue
		}

		// Nobody had data ready and nobody finished/split/failed: every
		// remaining producer is still fetching. Block on one to make
		// forward progress instead of busy-spinning.
		idx := b.rrIndex % len(b.producers)
		pr := b.producers[idx]
		pg, ok, nerr := pr.next(ctx)
		if nerr != nil {
			if IsCode(nerr, CodePartitionGone) {
				if rerr := b.replaceSplit(ctx, idx); rerr != nil {
					b.closeAll()
					return nil, rerr
				}
				continue
			}
			b.closeAll()
			return nil, nerr
		}
		if ok {
			out.absorb(pg)
			if len(out.items) > 0 {
				b.rrIndex = (idx + 1) % len(b.producers)
				return out, nil
			}
		}
	}
}

func (b *parallelBase) rangeContinuations() []rangeContinuation {
	rcs := make([]rangeContinuation, 0, len(b.producers))
	for _, pr := range b.producers {
		rcs = append(rcs, rangeContinuation{
			Min:   pr.target.MinInclusive,
			Max:   pr.target.MaxExclusive,
			Token: pr.currentContinuation(),
		})
	}
	return rcs
}

func (b *parallelBase) close() {
	b.closeAll()
}
