// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"encoding/json"
)

// continuationVersion is the current wire version of CompositeContinuation.
// A token from version V must be accepted by any version >= V; bumping
// this requires adding a migration path in DecodeContinuation, not just
// rejecting older tokens.
const continuationVersion = 1

// orderByState is the per-range resume marker for an ORDER BY query: the
// last emitted item's key tuple plus its rid. It is written into and read
// back from the token only; it is not passed on in Request, and no
// key or rid filter is built from it for the next per-range request.
type orderByState struct {
	Keys []any  `json:"keys"`
	RID  string `json:"rid"`
}

// rangeContinuation is one entry of CompositeContinuation.Ranges: the
// resume state for a single target partition key range.
type rangeContinuation struct {
	Min   string        `json:"min"`
	Max   string        `json:"max"`
	Token string        `json:"token"`
	Order *orderByState `json:"order,omitempty"`
}

// outerState carries the remaining state of the outer pipeline components
// (Top/Skip/Distinct) that isn't owned by any one producer.
type outerState struct {
	TopRemaining     *int    `json:"top_remaining,omitempty"`
	SkipRemaining    *int    `json:"skip_remaining,omitempty"`
	DistinctDigest   []byte  `json:"distinct_state,omitempty"`
}

// CompositeContinuation is the resumable cursor across partitions.
// Consumers must treat it as opaque; it is exposed as a struct only so the
// pipeline can build and consume it without round-tripping through a
// string at every layer.
type CompositeContinuation struct {
	Version        int                 `json:"v"`
	CollectionRID  string              `json:"rid"`
	Ranges         []rangeContinuation `json:"ranges,omitempty"`
	Outer          *outerState         `json:"outer,omitempty"`
}

// Encode serializes the continuation to its wire form. encoding/json is
// used here, rather than the gjson parsing plan.go uses for gateway
// payloads, because this is a format we fully own: a fixed Go struct with a
// version field, not a third-party schema we must tolerate variation in.
func (c CompositeContinuation) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", wrapError(CodeInternal, "failed to encode continuation token", err)
	}
	return string(b), nil
}

// DecodeContinuation parses a token previously returned by Encode. An empty
// token decodes to a zero CompositeContinuation with no error: that is the
// "fresh query" case.
func DecodeContinuation(token string) (CompositeContinuation, error) {
	if token == "" {
		return CompositeContinuation{}, nil
	}
	var c CompositeContinuation
	if err := json.Unmarshal([]byte(token), &c); err != nil {
		return CompositeContinuation{}, wrapError(CodeInvalidContinuation, "malformed continuation token", err)
	}
	if c.Version > continuationVersion {
		return CompositeContinuation{}, newError(CodeInvalidContinuation, "continuation token is from a newer, unsupported version")
	}
	return c, nil
}

// producerSeed is one (range, resume-token) pair to construct a
// DocumentProducer from, produced by reconciling a decoded continuation
// against the current routing map.
type producerSeed struct {
	Range        PartitionKeyRange
	Continuation string
	Order        *orderByState
	// ItemIdentities is only set for a ReadMany seed; a
	// SQL-query seed leaves it nil.
	ItemIdentities []ItemIdentity
}

// reconcileContinuation matches a decoded continuation's persisted ranges
// against the current routing snapshot:
//   - exact match seeds one producer with its token;
//   - a persisted range that has since split seeds one producer per child,
//     each starting from the persisted token (the child is a subset of the
//     same key space, so replaying from the parent's token is safe — this
//     is the same seeding DocumentProducer.onSplit performs mid-query);
//   - a persisted range that was merged away is rejected, because the
//     merged range's continuation token is not meaningful for the new,
//     wider range.
func reconcileContinuation(c CompositeContinuation, current []PartitionKeyRange) ([]producerSeed, error) {
	byMinMax := make(map[[2]string]PartitionKeyRange, len(current))
	for _, r := range current {
		byMinMax[[2]string{r.MinInclusive, r.MaxExclusive}] = r
	}

	var seeds []producerSeed
	for _, rc := range c.Ranges {
		if exact, ok := byMinMax[[2]string{rc.Min, rc.Max}]; ok {
			seeds = append(seeds, producerSeed{Range: exact, Continuation: rc.Token, Order: rc.Order})
			continue
		}

		children := childrenOf(rc.Min, rc.Max, current)
		if len(children) == 0 {
			return nil, newError(CodeInvalidContinuation, "continuation references a partition key range that no longer exists (merged)")
		}
		for _, child := range children {
			seeds = append(seeds, producerSeed{Range: child, Continuation: rc.Token, Order: rc.Order})
		}
	}
	return seeds, nil
}

// childrenOf returns the ranges in current whose key space is fully
// contained within [min, max); it approximates the routing-map's split
// relationship when the caller has no better signal than key boundaries.
func childrenOf(min, max string, current []PartitionKeyRange) []PartitionKeyRange {
	var children []PartitionKeyRange
	for _, r := range current {
		if r.MinInclusive >= min && r.MaxExclusive <= max && (r.MinInclusive != min || r.MaxExclusive != max) {
			children = append(children, r)
		}
	}
	return children
}
