// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "context"

// skipComponent discards the first K items across all pages. The
// first page it emits may be the merged tail of several source pages if
// the skip count spans more than one inner page.
type skipComponent struct {
	inner     component
	remaining int
}

func newSkipComponent(inner component, k int) *skipComponent {
	return &skipComponent{inner: inner, remaining: k}
}

func (s *skipComponent) drain(ctx context.Context, maxPageSize int) (*page, error) {
	acc := newPage()
	haveAcc := false
	for {
		pg, err := s.inner.drain(ctx, maxPageSize)
		if err != nil {
			return nil, err
		}
		if pg == nil {
			if haveAcc {
				return acc, nil
			}
			return nil, nil
		}
		if s.remaining == 0 {
			if haveAcc {
				acc.items = append(acc.items, pg.items...)
				mergeCharge(acc, pg)
				return acc, nil
			}
			return pg, nil
		}
		if len(pg.items) <= s.remaining {
			// Whole page skipped; its charge/metrics still count, so fold
			// them in and pull again rather than returning an empty page.
			s.remaining -= len(pg.items)
			mergeCharge(acc, pg)
			haveAcc = true
			continue
		}
		pg.items = pg.items[s.remaining:]
		s.remaining = 0
		if haveAcc {
			acc.items = append(acc.items, pg.items...)
			mergeCharge(acc, pg)
			return acc, nil
		}
		return pg, nil
	}
}

// mergeCharge folds src's charge/metrics/activityId into dst without
// touching dst.items; used when a page's items were dropped (Skip) or
// consumed internally (Aggregate) but its accounting must still surface.
func mergeCharge(dst, src *page) {
	dst.charge += src.charge
	for k, v := range src.metrics {
		dst.mergeMetrics(k, v)
	}
	if src.activityID != "" {
		dst.activityID = src.activityID
	}
}

func (s *skipComponent) outerState() *int {
	return &s.remaining
}
