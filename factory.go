// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "context"

// Pipeline is a fully wired, single-query execution pipeline: the
// composition BuildPipeline built for one PartitionedQueryExecutionInfo,
// ready to be drained page by page.
type Pipeline struct {
	outer         component
	base          base
	top           *topComponent
	skip          *skipComponent
	distinct      *distinctComponent
	collectionRID string
}

// BuildPipeline wires components outer-to-inner in the fixed order
// Top -> Skip -> Distinct -> Aggregate -> Base, building each only when the
// plan demands it. candidateRanges is the routing map's current view
// of every range in the collection; when resuming from a continuation,
// candidateRanges is reconciled against the token's persisted ranges
// instead of being used directly.
func BuildPipeline(
	ctx context.Context,
	info PartitionedQueryExecutionInfo,
	collectionRID string,
	opts FeedOptions,
	candidateRanges []PartitionKeyRange,
	routing RoutingMapProvider,
	executor RequestExecutor,
	observer Observer,
) (*Pipeline, error) {
	opts = NewFeedOptions(opts)

	if len(candidateRanges) > 1 && !opts.EnableCrossPartitionQuery && info.RequiresCrossPartition {
		return nil, newError(CodePlanRejected, "query requires cross-partition execution but EnableCrossPartitionQuery is false")
	}
	if info.DistinctType == DistinctUnordered && len(info.OrderBy) > 0 {
		return nil, newError(CodePlanRejected, "hash DISTINCT cannot be combined with ORDER BY; use ordered DISTINCT collapse instead")
	}

	cc, err := DecodeContinuation(opts.RequestContinuation)
	if err != nil {
		return nil, err
	}
	if cc.CollectionRID != "" && cc.CollectionRID != collectionRID {
		return nil, newError(CodeInvalidContinuation, "continuation token is for a different collection")
	}

	var seeds []producerSeed
	if len(cc.Ranges) > 0 {
		seeds, err = reconcileContinuation(cc, candidateRanges)
		if err != nil {
			return nil, err
		}
	} else {
		for _, r := range candidateRanges {
			seeds = append(seeds, producerSeed{Range: r})
		}
	}
	if len(seeds) == 0 {
		return nil, newError(CodeInternal, "no target partition key ranges resolved for query")
	}

	cfg := documentProducerConfig{
		CollectionRID: collectionRID,
		Query:         info.RewrittenQuery,
		MaxItemCount:  opts.MaxItemCount,
		Executor:      executor,
		Routing:       routing,
		Budget:        newItemBudget(opts.MaxBufferedItemCount),
		Fetches:       newFetchLimiter(opts.MaxDegreeOfParallelism, len(seeds)),
		Observer:      observer,
	}

	var b base
	if len(info.OrderBy) > 0 {
		directions := make([]SortDirection, len(info.OrderBy))
		for i, c := range info.OrderBy {
			directions[i] = c.Direction
		}
		ob, err := newOrderByBase(ctx, seeds, directions, cfg)
		if err != nil {
			return nil, err
		}
		b = ob
	} else {
		b = newParallelBase(ctx, seeds, cfg)
	}

	p := &Pipeline{base: b, collectionRID: collectionRID}
	var comp component = b

	if info.Aggregate != AggregateNone {
		comp = newAggregateComponent(comp, info.Aggregate)
	}

	if info.DistinctType == DistinctUnordered {
		var seedDigest []byte
		if cc.Outer != nil {
			seedDigest = cc.Outer.DistinctDigest
		}
		dc, err := newDistinctComponent(comp, seedDigest)
		if err != nil {
			b.close()
			return nil, err
		}
		comp = dc
		p.distinct = dc
	}

	if info.Offset != nil && *info.Offset > 0 {
		k := *info.Offset
		if cc.Outer != nil && cc.Outer.SkipRemaining != nil {
			k = *cc.Outer.SkipRemaining
		}
		p.skip = newSkipComponent(comp, k)
		comp = p.skip
	}

	topN := info.Top
	if topN == nil {
		topN = info.Limit
	}
	if topN != nil {
		n := *topN
		if cc.Outer != nil && cc.Outer.TopRemaining != nil {
			n = *cc.Outer.TopRemaining
		}
		p.top = newTopComponent(comp, n)
		comp = p.top
	}

	p.outer = comp
	return p, nil
}

// Close abandons all in-flight producer fetches and releases their
// resources. It must be called once the caller is done draining, including
// on early abort.
func (p *Pipeline) Close() {
	p.base.close()
}

// drainPage pulls the next page and, unless it's end of stream, the
// CompositeContinuation token that would resume immediately after it.
func (p *Pipeline) drainPage(ctx context.Context, maxPageSize int) (*page, string, error) {
	pg, err := p.outer.drain(ctx, maxPageSize)
	if err != nil {
		return nil, "", err
	}
	if pg == nil {
		return nil, "", nil
	}

	cc := CompositeContinuation{
		Version:       continuationVersion,
		CollectionRID: p.collectionRID,
		Ranges:        p.base.rangeContinuations(),
	}
	p.setOuterState(&cc)
	if allRangesExhausted(cc.Ranges) && cc.Outer == nil {
		return pg, "", nil
	}

	token, err := cc.Encode()
	if err != nil {
		return nil, "", err
	}
	return pg, token, nil
}

// setOuterState folds Top/Skip/Distinct's resume state into cc.Outer, the
// portion of CompositeContinuation no single producer owns.
func (p *Pipeline) setOuterState(cc *CompositeContinuation) {
	var os outerState
	set := false
	if p.top != nil {
		remaining := p.top.remaining
		if p.top.done {
			remaining = 0
		}
		os.TopRemaining = &remaining
		set = true
	}
	if p.skip != nil {
		r := p.skip.remaining
		os.SkipRemaining = &r
		set = true
	}
	if p.distinct != nil {
		os.DistinctDigest = p.distinct.digest()
		set = true
	}
	if set {
		cc.Outer = &os
	}
}

// allRangesExhausted reports whether every range continuation carries an
// empty token, meaning nothing is left to resume — in that case the
// pipeline emits the final page with no continuation at all rather than a
// token that would immediately decode to zero seeds.
func allRangesExhausted(rcs []rangeContinuation) bool {
	for _, rc := range rcs {
		if rc.Token != "" {
			return false
		}
	}
	return true
}
