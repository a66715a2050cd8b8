// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// FeedResponse is one page of a query's public result stream: T decoded
// items plus everything a caller needs to report back to its own telemetry
// or resume the query later.
type FeedResponse[T any] struct {
	Items               []T
	RequestCharge       float64
	ActivityID          string
	ContinuationToken   string
	Metrics             map[string]PartitionMetrics
}

// QueryIterator is the public, pull-based handle to a running cross-
// partition query.
type QueryIterator[T any] struct {
	pipeline *Pipeline
}

// ExecuteQuery builds a pipeline for query against collectionRID and
// returns an iterator over it. targetRanges is the routing map's current
// view of the collection; a non-empty feedOptions.RequestContinuation
// resumes a prior query instead of starting fresh.
func ExecuteQuery[T any](
	ctx context.Context,
	planner QueryPlanner,
	collectionRID, query string,
	targetRanges []PartitionKeyRange,
	routing RoutingMapProvider,
	executor RequestExecutor,
	observer Observer,
	opts FeedOptions,
) (*QueryIterator[T], error) {
	info, err := planner.Plan(ctx, collectionRID, query, supportedFeatures)
	if err != nil {
		return nil, err
	}

	candidates := targetRanges
	if info.RequiresCrossPartition && len(info.QueryRanges) > 0 {
		resolved, rerr := resolveQueryRanges(ctx, routing, collectionRID, info.QueryRanges, targetRanges)
		if rerr != nil {
			return nil, rerr
		}
		candidates = resolved
	}

	p, err := BuildPipeline(ctx, info, collectionRID, opts, candidates, routing, executor, observer)
	if err != nil {
		return nil, err
	}
	return &QueryIterator[T]{pipeline: p}, nil
}

// resolveQueryRanges narrows candidateRanges down to those overlapping the
// plan's queryRanges, or falls back to asking the routing provider directly
// when the plan's spans don't line up with any candidate (e.g. the
// candidate set predates a recent split).
func resolveQueryRanges(ctx context.Context, routing RoutingMapProvider, collectionRID string, spans []KeyRange, candidateRanges []PartitionKeyRange) ([]PartitionKeyRange, error) {
	var out []PartitionKeyRange
	seen := make(map[string]bool)
	for _, span := range spans {
		matched := false
		for _, r := range candidateRanges {
			if r.MinInclusive < span.Max && span.Min < r.MaxExclusive {
				if !seen[r.ID] {
					seen[r.ID] = true
					out = append(out, r)
				}
				matched = true
			}
		}
		if matched {
			continue
		}
		resolved, err := routing.ResolveRanges(ctx, collectionRID, span.Min, span.Max)
		if err != nil {
			return nil, err
		}
		for _, r := range resolved {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		return candidateRanges, nil
	}
	return out, nil
}

// supportedFeatures is the capability string this engine advertises to the
// planner: every feature the pipeline actually implements, so the planner
// never hands back a plan this engine can't run.
const supportedFeatures = "OrderBy, Top, Aggregate, CompositeAggregate, Distinct, OffsetAndLimit"

// SupportedFeatures returns the capability string a caller should forward
// alongside its plan request, so the gateway tailors the plan it returns
// to what this pipeline can actually execute.
func SupportedFeatures() string {
	return supportedFeatures
}

// Next pulls and decodes the next page, or returns (nil, false, nil) at end
// of stream.
func (it *QueryIterator[T]) Next(ctx context.Context, maxPageSize int) (*FeedResponse[T], bool, error) {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	pg, token, err := it.pipeline.drainPage(ctx, maxPageSize)
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

	return &FeedResponse[T]{
		Items:             items,
		RequestCharge:     pg.charge,
		ActivityID:        activityID,
		ContinuationToken: token,
		Metrics:           pg.metrics,
	}, true, nil
}

// Close releases the pipeline's producers. Safe to call after Next has
// already returned end of stream; required before that if the caller
// abandons the iterator early.
func (it *QueryIterator[T]) Close() {
	it.pipeline.Close()
}
