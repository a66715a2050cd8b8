// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "encoding/json"

// PartitionKeyRange is a half-open key interval [MinInclusive, MaxExclusive)
// owned by one physical partition, as reported by the routing map. Ranges
// are treated as immutable snapshots; a split or merge produces new ranges
// rather than mutating an existing one.
type PartitionKeyRange struct {
	ID           string
	MinInclusive string
	MaxExclusive string
	// Parents holds the IDs of the ranges this range was split from, if any.
	Parents []string
}

// Covers reports whether r fully covers other's key space. Nothing in the
// pipeline calls it; childrenOf (continuation.go) applies the same
// containment test inline.
func (r PartitionKeyRange) Covers(other PartitionKeyRange) bool {
	return r.MinInclusive <= other.MinInclusive && r.MaxExclusive >= other.MaxExclusive
}

// AggregateOperator identifies a supported single-valued cross-partition
// aggregate.
type AggregateOperator int

const (
	AggregateNone AggregateOperator = iota
	AggregateSum
	AggregateMin
	AggregateMax
	AggregateCount
	AggregateAverage
)

func (a AggregateOperator) String() string {
	switch a {
	case AggregateSum:
		return "SUM"
	case AggregateMin:
		return "MIN"
	case AggregateMax:
		return "MAX"
	case AggregateCount:
		return "COUNT"
	case AggregateAverage:
		return "AVERAGE"
	default:
		return "NONE"
	}
}

// SortDirection is the direction of one ORDER BY column.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// DistinctType describes how DISTINCT is enforced across partitions.
type DistinctType int

const (
	DistinctNone DistinctType = iota
	// DistinctUnordered is hash-based DISTINCT; the only kind the pipeline
	// evaluates itself. For DistinctOrdered no component is built and the
	// OrderBy base does not collapse equal adjacent items.
	DistinctUnordered
	DistinctOrdered
)

// FeedOptions carries the user-supplied, per-query request options. It is
// immutable once NewFeedOptions has applied defaults.
type FeedOptions struct {
	// MaxItemCount is the page size each per-range request asks the backend
	// for (and the buffer budget a producer reserves per fetch). The size
	// of the pages the pipeline emits is the maxPageSize passed to Next.
	// A value <= 0 means "server default" (100).
	MaxItemCount int
	// RequestContinuation is the opaque composite continuation token the
	// caller is resuming from, or "" for a fresh query.
	RequestContinuation string
	// MaxDegreeOfParallelism bounds concurrently outstanding per-range
	// fetches. -1 requests the auto policy (see resolveParallelism).
	MaxDegreeOfParallelism int
	// MaxBufferedItemCount caps the aggregate number of buffered items
	// across all producers for this query. <= 0 means unbounded.
	MaxBufferedItemCount int
	// EnableCrossPartitionQuery must be true for any plan that targets more
	// than one partition key range.
	EnableCrossPartitionQuery bool
}

// NewFeedOptions returns opts with zero-valued fields replaced by the
// engine's defaults.
func NewFeedOptions(opts FeedOptions) FeedOptions {
	if opts.MaxItemCount <= 0 {
		opts.MaxItemCount = 100
	}
	if opts.MaxDegreeOfParallelism == 0 {
		opts.MaxDegreeOfParallelism = -1
	}
	return opts
}

// ItemIdentity names one document for a ReadMany fan-out:
// its partition key (used to resolve the owning range) and its id.
type ItemIdentity struct {
	PartitionKey string
	ID           string
}

// rawItem is a single document flowing through the pipeline, still encoded
// as the raw JSON bytes the backend returned. orderByKeys and rid are only
// populated for plans with an ORDER BY clause.
type rawItem struct {
	data          json.RawMessage
	orderByKeys   []any
	rid           string
	sourceRangeID string
}

// ProducerPage is the unit of data a DocumentProducer hands to its base
// context: a batch of items plus the bookkeeping needed to resume or report
// on that range.
type ProducerPage struct {
	Items            []rawItem
	ContinuationToken string
	RequestCharge    float64
	ActivityID       string
	Metrics          PartitionMetrics
	SourceRangeID    string
}

// PartitionMetrics is the per-range slice of x-ms-documentdb-query-metrics:
// free-form counters the backend reports per page, merged additively across
// pages and across ranges by the base context.
type PartitionMetrics struct {
	RetrievedDocumentCount int64
	RetrievedDocumentSize  int64
	OutputDocumentCount    int64
	OutputDocumentSize     int64
	IndexHitDocumentCount  int64
	TotalQueryExecutionMS  float64
}

func (m PartitionMetrics) add(o PartitionMetrics) PartitionMetrics {
	return PartitionMetrics{
		RetrievedDocumentCount: m.RetrievedDocumentCount + o.RetrievedDocumentCount,
		RetrievedDocumentSize:  m.RetrievedDocumentSize + o.RetrievedDocumentSize,
		OutputDocumentCount:    m.OutputDocumentCount + o.OutputDocumentCount,
		OutputDocumentSize:     m.OutputDocumentSize + o.OutputDocumentSize,
		IndexHitDocumentCount:  m.IndexHitDocumentCount + o.IndexHitDocumentCount,
		TotalQueryExecutionMS:  m.TotalQueryExecutionMS + o.TotalQueryExecutionMS,
	}
}

// page is the internal unit components pull from one another. It is
// deliberately distinct from the public FeedResponse[T]: it holds raw items
// and their accounting, while the state for the next CompositeContinuation
// is read from the base and the outer components by Pipeline.drainPage.
type page struct {
	items      []rawItem
	charge     float64
	activityID string
	metrics    map[string]PartitionMetrics // keyed by range id
	// ranges is not populated by any component; per-producer continuation
	// state is read through base.rangeContinuations instead.
	ranges []rangeContinuation
}

func newPage() *page {
	return &page{metrics: make(map[string]PartitionMetrics)}
}

func (p *page) mergeMetrics(rangeID string, m PartitionMetrics) {
	p.metrics[rangeID] = p.metrics[rangeID].add(m)
}

// absorb folds one producer's page into an in-progress aggregated page, the
// way the Parallel base combines whichever producers it polled in a round.
func (p *page) absorb(pg ProducerPage) {
	p.items = append(p.items, pg.Items...)
	p.charge += pg.RequestCharge
	p.mergeMetrics(pg.SourceRangeID, pg.Metrics)
	if pg.ActivityID != "" {
		p.activityID = pg.ActivityID
	}
}
