// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// ReadManyPipeline is the point-read fan-out pipeline: one Parallel base
// with a producer per implicated partition key range, each producer
// fetching by item identity instead of by query predicate. It carries no
// ordering or aggregation, since ReadMany has neither ORDER BY nor
// aggregate clauses.
type ReadManyPipeline struct {
	base base
}

// drain pulls the next page across all item groups; ReadMany has no
// continuation concept beyond "are any producers still fetching", since
// every producer's result set is the fixed set of ids it was seeded with.
func (rm *ReadManyPipeline) drain(ctx context.Context, maxPageSize int) (*page, error) {
	return rm.base.drain(ctx, maxPageSize)
}

// Close releases every producer's goroutine.
func (rm *ReadManyPipeline) Close() {
	rm.base.close()
}

// ReadManyResponse is one page of a ReadMany fan-out's typed result
// stream, mirroring FeedResponse but without a continuation token: every
// producer's result set is the fixed set of ids it was seeded with, so
// there is nothing to resume.
type ReadManyResponse[T any] struct {
	Items         []T
	RequestCharge float64
	ActivityID    string
	Metrics       map[string]PartitionMetrics
}

// ReadManyIterator is the public, pull-based handle to a running ReadMany
// fan-out, the ReadMany counterpart to QueryIterator[T].
type ReadManyIterator[T any] struct {
	pipeline *ReadManyPipeline
}

// BuildReadManyPipeline groups items by the range that owns each item's
// partition key, builds one DocumentProducer per group, and returns a
// typed iterator over the resulting pages.
func BuildReadManyPipeline[T any](
	ctx context.Context,
	collectionRID string,
	items []ItemIdentity,
	opts FeedOptions,
	resolver PartitionKeyResolver,
	routing RoutingMapProvider,
	executor RequestExecutor,
	observer Observer,
) (*ReadManyIterator[T], error) {
	if len(items) == 0 {
		return nil, newError(CodeInvalidArgument, "ReadMany requires at least one item identity")
	}
	opts = NewFeedOptions(opts)

	grouped := make(map[string][]ItemIdentity)
	ranges := make(map[string]PartitionKeyRange)
	for _, it := range items {
		r, err := resolver.ResolveRangeForKey(ctx, collectionRID, it.PartitionKey)
		if err != nil {
			return nil, err
		}
		grouped[r.ID] = append(grouped[r.ID], it)
		ranges[r.ID] = r
	}

	seeds := make([]producerSeed, 0, len(grouped))
	for rangeID, group := range grouped {
		seeds = append(seeds, producerSeed{Range: ranges[rangeID], ItemIdentities: group})
	}

	cfg := documentProducerConfig{
		CollectionRID: collectionRID,
		MaxItemCount:  opts.MaxItemCount,
		Executor:      executor,
		Routing:       routing,
		Budget:        newItemBudget(opts.MaxBufferedItemCount),
		Fetches:       newFetchLimiter(opts.MaxDegreeOfParallelism, len(seeds)),
		Observer:      observer,
	}

	pipeline := &ReadManyPipeline{base: newParallelBase(ctx, seeds, cfg)}
	return &ReadManyIterator[T]{pipeline: pipeline}, nil
}

// Next pulls and decodes the next page, or returns (nil, false, nil) at
// end of stream.
func (it *ReadManyIterator[T]) Next(ctx context.Context, maxPageSize int) (*ReadManyResponse[T], bool, error) {
	pg, err := it.pipeline.drain(ctx, maxPageSize)
	if err != nil {
		return nil, false, err
	}
	if pg == nil {
		return nil, false, nil
	}

	items := make([]T, len(pg.items))
	for i, raw := range pg.items {
		var v T
		if err := json.Unmarshal(raw.data, &v); err != nil {
			return nil, false, wrapError(CodeInternal, "failed to decode item into result type", err)
		}
		items[i] = v
	}

	activityID := pg.activityID
	if activityID == "" {
		activityID = uuid.NewString()
	}

	return &ReadManyResponse[T]{
		Items:         items,
		RequestCharge: pg.charge,
		ActivityID:    activityID,
		Metrics:       pg.metrics,
	}, true, nil
}

// Close releases every producer's goroutine.
func (it *ReadManyIterator[T]) Close() {
	it.pipeline.Close()
}
