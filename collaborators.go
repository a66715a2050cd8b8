// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "context"

// RoutingMapProvider resolves partition key ranges from the collection's
// routing map. Implementations own refreshing their cache on a
// CodePartitionGone signal; the pipeline only ever reads a snapshot.
type RoutingMapProvider interface {
	// ResolveRanges returns the ranges covering targetMin/targetMax
	// (inclusive/exclusive) for the given collection, as of the provider's
	// current snapshot.
	ResolveRanges(ctx context.Context, collectionRID, targetMin, targetMax string) ([]PartitionKeyRange, error)
	// TryResolveChildren returns the child ranges a split range was
	// replaced by, or ok=false if rangeID is not known to have split.
	TryResolveChildren(ctx context.Context, collectionRID, rangeID string) (children []PartitionKeyRange, ok bool, err error)
}

// Request is the single-page fetch request a DocumentProducer issues for
// its target range.
type Request struct {
	CollectionRID   string
	Query           string
	QueryParameters map[string]any
	RangeID         string
	Continuation    string
	MaxItemCount    int
	// ItemIdentities is set only for a ReadMany producer:
	// the point-read identities this producer's range owns, fetched by key
	// instead of by query predicate.
	ItemIdentities []ItemIdentity
}

// PartitionKeyResolver maps a single partition key value to the range that
// currently owns it, the collaborator a ReadMany pipeline uses to group
// item identities by target range before building producers.
type PartitionKeyResolver interface {
	ResolveRangeForKey(ctx context.Context, collectionRID, partitionKey string) (PartitionKeyRange, error)
}

// RequestExecutor performs one single-page RPC for a Request and applies
// whatever retry policy the caller's RetryPolicyFactory builds for it. The
// pipeline never retries on its own; it only reacts to the terminal error
// or success RequestExecutor returns.
type RequestExecutor interface {
	Execute(ctx context.Context, req Request) (ProducerPage, error)
}

// RetryPolicyFactory produces a fresh retry policy per logical request. It
// is the collaborator RequestExecutor implementations consult. The
// pipeline neither calls it nor takes it as a parameter: BuildPipeline
// accepts only a RequestExecutor, and the package ships no default
// RequestExecutor.
type RetryPolicyFactory interface {
	NewRetryPolicy() RetryPolicy
}

// RetryPolicy decides whether a failed request should be retried and, if
// so, after how long. ShouldRetry is called once per failure; returning
// retry=false means the error is terminal and should surface to the caller.
type RetryPolicy interface {
	ShouldRetry(ctx context.Context, err error) (retry bool, backoff int64)
}

// Observer receives best-effort notifications about pipeline activity. It
// exists so embedders can hook up their own structured logger (the core
// itself takes no logging dependency — see Non-goals); a nil Observer is
// valid and every call site nil-checks before invoking it.
type Observer interface {
	OnFetch(rangeID string, continuation string)
	OnSplit(parentRangeID string, children []PartitionKeyRange)
	OnPageEmitted(rangeID string, itemCount int, requestCharge float64)
	OnError(rangeID string, err error)
}
