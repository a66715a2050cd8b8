// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"container/heap"
	"context"
)

// obCursor walks one producer's pages item by item, pulling a new page only
// when the current one is exhausted. This is the granularity OrderBy needs
// that Parallel does not: a k-way merge compares individual items, not
// whole pages.
type obCursor struct {
	producer *DocumentProducer
	rangeID  string
	pg       ProducerPage
	idx      int
}

// nextItem returns the next item from this cursor, suspending on the
// underlying producer as needed and silently skipping over any empty
// intermediate pages. accumulated carries the folded charge/metrics/
// activityId of every page (including empty ones) pulled along the way, so
// the caller never drops accounting for a page that happened to have zero
// items in it.
func (c *obCursor) nextItem(ctx context.Context) (it rawItem, ok bool, accumulated *ProducerPage, err error) {
	var acc ProducerPage
	accSeen := false
	for {
		if c.idx < len(c.pg.Items) {
			it = c.pg.Items[c.idx]
			c.idx++
			if accSeen {
				return it, true, &acc, nil
			}
			return it, true, nil, nil
		}
		pg, has, nerr := c.producer.next(ctx)
		if nerr != nil {
			return rawItem{}, false, nil, nerr
		}
		if !has {
			if accSeen {
				return rawItem{}, false, &acc, nil
			}
			return rawItem{}, false, nil, nil
		}
		c.pg = pg
		c.idx = 0
		c.rangeID = pg.SourceRangeID
		acc.RequestCharge += pg.RequestCharge
		acc.Metrics = acc.Metrics.add(pg.Metrics)
		acc.SourceRangeID = pg.SourceRangeID
		if pg.ActivityID != "" {
			acc.ActivityID = pg.ActivityID
		}
		accSeen = true
	}
}

// obEntry is one item waiting in the merge heap, tagged with which cursor
// it came from so it can be refilled from the same producer after it's
// popped.
type obEntry struct {
	item      rawItem
	rangeID   string
	cursorKey string
}

type obHeap struct {
	entries    []obEntry
	directions []SortDirection
}

func (h *obHeap) Len() int { return len(h.entries) }
func (h *obHeap) Less(i, j int) bool {
	c := compareOrderByKeys(h.entries[i].item.orderByKeys, h.entries[j].item.orderByKeys, h.directions)
	if c != 0 {
		return c < 0
	}
	return h.entries[i].rangeID < h.entries[j].rangeID
}
func (h *obHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *obHeap) Push(x any)    { h.entries = append(h.entries, x.(obEntry)) }
func (h *obHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// compareOrderByKeys compares two key tuples column by column, applying
// each column's direction, the way a composite ORDER BY clause would.
func compareOrderByKeys(a, b []any, dirs []SortDirection) int {
	for i := 0; i < len(a) && i < len(b) && i < len(dirs); i++ {
		c := compareOrderByValue(a[i], b[i])
		if dirs[i] == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareOrderByValue(x, y any) int {
	switch xv := x.(type) {
	case float64:
		yv, _ := y.(float64)
		switch {
		case xv < yv:
			return -1
		case xv > yv:
			return 1
		default:
			return 0
		}
	case string:
		yv, _ := y.(string)
		switch {
		case xv < yv:
			return -1
		case xv > yv:
			return 1
		default:
			return 0
		}
	case bool:
		yv, _ := y.(bool)
		if xv == yv {
			return 0
		}
		if !xv {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// orderByBase is the cross-partition merge base for ORDER BY queries: a
// k-way merge over each producer's (already per-range sorted) stream,
// using a min-heap ordered by the plan's compound key.
type orderByBase struct {
	ctx        context.Context
	cfg        documentProducerConfig
	directions []SortDirection

	producers []*DocumentProducer
	cursors   map[string]*obCursor // keyed by producer target range ID
	h         *obHeap

	lastEmitted map[string]orderByState // keyed by range ID, for continuation

	pendingCharge     float64
	pendingMetrics    map[string]PartitionMetrics
	pendingActivityID string
}

func newOrderByBase(ctx context.Context, seeds []producerSeed, directions []SortDirection, cfg documentProducerConfig) (*orderByBase, error) {
	b := &orderByBase{
		ctx:            ctx,
		cfg:            cfg,
		directions:     directions,
		cursors:        make(map[string]*obCursor),
		lastEmitted:    make(map[string]orderByState),
		pendingMetrics: make(map[string]PartitionMetrics),
		h:              &obHeap{directions: directions},
	}
	for _, s := range seeds {
		pr := newDocumentProducer(ctx, s.Range, s.Continuation, s.ItemIdentities, cfg)
		b.producers = append(b.producers, pr)
		b.cursors[s.Range.ID] = &obCursor{producer: pr, rangeID: s.Range.ID}
		if s.Order != nil {
			b.lastEmitted[s.Range.ID] = *s.Order
		}
	}
	for rangeID := range b.cursors {
		if err := b.prime(ctx, rangeID); err != nil {
			b.closeAll()
			return nil, err
		}
	}
	return b, nil
}

// prime pulls (and, if needed, re-pulls past empty intermediate pages) the
// next item for one cursor and, if it got one, pushes it into the heap.
// A cursor that is exhausted is simply left out of the heap.
func (b *orderByBase) prime(ctx context.Context, cursorKey string) error {
	c := b.cursors[cursorKey]
	item, ok, accumulated, err := c.nextItem(ctx)
	if accumulated != nil {
		b.pendingCharge += accumulated.RequestCharge
		b.pendingMetrics[accumulated.SourceRangeID] = b.pendingMetrics[accumulated.SourceRangeID].add(accumulated.Metrics)
		if accumulated.ActivityID != "" {
			b.pendingActivityID = accumulated.ActivityID
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil // cursor exhausted, nothing to push
	}
	heap.Push(b.h, obEntry{item: item, rangeID: c.rangeID, cursorKey: cursorKey})
	return nil
}

func (b *orderByBase) closeAll() {
	for _, pr := range b.producers {
		pr.close()
	}
}

func (b *orderByBase) drain(ctx context.Context, maxPageSize int) (*page, error) {
	out := newPage()
	for b.h.Len() > 0 && len(out.items) < maxPageSize {
		entry := heap.Pop(b.h).(obEntry)
		out.items = append(out.items, entry.item)
		b.lastEmitted[entry.rangeID] = orderByState{Keys: entry.item.orderByKeys, RID: entry.item.rid}

		if err := b.prime(ctx, entry.cursorKey); err != nil {
			b.closeAll()
			return nil, err
		}
	}

	out.charge += b.pendingCharge
	for k, v := range b.pendingMetrics {
		out.mergeMetrics(k, v)
	}
	if b.pendingActivityID != "" {
		out.activityID = b.pendingActivityID
	}
	b.pendingCharge = 0
	b.pendingMetrics = make(map[string]PartitionMetrics)
	b.pendingActivityID = ""

	if len(out.items) == 0 {
		return nil, nil
	}
	return out, nil
}

func (b *orderByBase) rangeContinuations() []rangeContinuation {
	rcs := make([]rangeContinuation, 0, len(b.producers))
	for _, pr := range b.producers {
		rc := rangeContinuation{
			Min:   pr.target.MinInclusive,
			Max:   pr.target.MaxExclusive,
			Token: pr.currentContinuation(),
		}
		if ob, ok := b.lastEmitted[pr.target.ID]; ok {
			rc.Order = &ob
		}
		rcs = append(rcs, rc)
	}
	return rcs
}

func (b *orderByBase) close() {
	b.closeAll()
}
