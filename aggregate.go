// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// aggregateComponent applies a single cross-partition aggregator.
// Per-range results already carry the server's partial aggregate for that
// range (a partition-local SUM/COUNT/MIN/MAX, or a (sum,count) pair for
// AVERAGE) — the rewritten query the planner hands back is what makes the
// backend compute those partials; this component only reduces them, which
// is why aggregation here is cheap even though it is not streamable across
// partitions without that per-partition pre-reduction (see design notes).
type aggregateComponent struct {
	inner    component
	op       AggregateOperator
	emitted  bool
}

func newAggregateComponent(inner component, op AggregateOperator) *aggregateComponent {
	return &aggregateComponent{inner: inner, op: op}
}

// parseAggregateValue extracts a single numeric partial from a per-range
// aggregate document. gjson is used because the document's shape is
// dictated by the backend's rewritten query, not by this module.
func parseAggregateValue(data []byte) (float64, bool) {
	if !gjson.ValidBytes(data) {
		return 0, false
	}
	r := gjson.ParseBytes(data)
	if v := r.Get("item"); v.Exists() {
		return v.Float(), true
	}
	if r.IsArray() {
		arr := r.Array()
		if len(arr) == 0 {
			return 0, false
		}
		return arr[0].Float(), true
	}
	if r.Type == gjson.Null {
		return 0, false
	}
	return r.Float(), true
}

func parseAveragePartial(data []byte) (sum, count float64, ok bool) {
	if !gjson.ValidBytes(data) {
		return 0, 0, false
	}
	r := gjson.ParseBytes(data)
	s, c := r.Get("sum"), r.Get("count")
	if !s.Exists() || !c.Exists() {
		return 0, 0, false
	}
	return s.Float(), c.Float(), true
}

func (a *aggregateComponent) drain(ctx context.Context, maxPageSize int) (*page, error) {
	if a.emitted {
		return nil, nil
	}
	a.emitted = true

	acc := newPage()
	var sum, count, lo, hi float64
	haveExtreme := false

	for {
		pg, err := a.inner.drain(ctx, maxPageSize)
		if err != nil {
			return nil, err
		}
		if pg == nil {
			break
		}
		mergeCharge(acc, pg)
		for _, it := range pg.items {
			switch a.op {
			case AggregateAverage:
				if s, c, ok := parseAveragePartial(it.data); ok {
					sum += s
					count += c
				}
			case AggregateCount:
				if v, ok := parseAggregateValue(it.data); ok {
					count += v
				}
			case AggregateSum:
				if v, ok := parseAggregateValue(it.data); ok {
					sum += v
				}
			case AggregateMin:
				if v, ok := parseAggregateValue(it.data); ok {
					if !haveExtreme || v < lo {
						lo = v
					}
					haveExtreme = true
				}
			case AggregateMax:
				if v, ok := parseAggregateValue(it.data); ok {
					if !haveExtreme || v > hi {
						hi = v
					}
					haveExtreme = true
				}
			}
		}
	}

	var result *float64
	switch a.op {
	case AggregateSum:
		result = &sum
	case AggregateCount:
		result = &count
	case AggregateMin:
		if haveExtreme {
			result = &lo
		}
	case AggregateMax:
		if haveExtreme {
			result = &hi
		}
	case AggregateAverage:
		if count > 0 {
			avg := sum / count
			result = &avg
		}
	}

	if result == nil {
		// AVERAGE over an empty set (or MIN/MAX with nothing to compare)
		// emits Undefined: no result document, but charge already spent
		// fetching the (empty) partials still needs to surface.
		if len(acc.items) == 0 && acc.charge == 0 {
			return nil, nil
		}
		return acc, nil
	}

	data, err := json.Marshal(map[string]float64{"aggregate": *result})
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to encode aggregate result", err)
	}
	acc.items = []rawItem{{data: data}}
	return acc, nil
}
