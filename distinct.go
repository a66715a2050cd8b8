// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sort"
)

// distinctComponent implements hash-based, unordered DISTINCT across
// partitions — the only DISTINCT strategy the pipeline evaluates itself.
// BuildPipeline never builds one for DistinctOrdered plans, and the OrderBy
// base does not collapse equal adjacent items either, so such plans get no
// client-side duplicate removal.
type distinctComponent struct {
	inner component
	seen  map[uint64]struct{}
}

// newDistinctComponent builds a distinct filter, optionally resuming from
// a previously-persisted digest (the continuation's outer.distinct_state).
func newDistinctComponent(inner component, seedDigest []byte) (*distinctComponent, error) {
	d := &distinctComponent{inner: inner, seen: make(map[uint64]struct{})}
	if len(seedDigest) == 0 {
		return d, nil
	}
	var hashes []uint64
	if err := json.Unmarshal(seedDigest, &hashes); err != nil {
		return nil, wrapError(CodeInvalidContinuation, "malformed distinct state", err)
	}
	for _, h := range hashes {
		d.seen[h] = struct{}{}
	}
	return d, nil
}

func fingerprint(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

func (d *distinctComponent) drain(ctx context.Context, maxPageSize int) (*page, error) {
	acc := newPage()
	for len(acc.items) < maxPageSize {
		pg, err := d.inner.drain(ctx, maxPageSize-len(acc.items))
		if err != nil {
			return nil, err
		}
		if pg == nil {
			break
		}
		mergeCharge(acc, pg)
		for _, it := range pg.items {
			fp := fingerprint(it.data)
			if _, dup := d.seen[fp]; dup {
				continue
			}
			d.seen[fp] = struct{}{}
			acc.items = append(acc.items, it)
		}
	}
	if len(acc.items) == 0 && acc.charge == 0 {
		return nil, nil
	}
	return acc, nil
}

// digest serializes the seen-fingerprint set for the continuation token.
// A full set, rather than a bloom filter, is the implementation choice
// this module makes.
func (d *distinctComponent) digest() []byte {
	hashes := make([]uint64, 0, len(d.seen))
	for h := range d.seen {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	b, _ := json.Marshal(hashes)
	return b
}
