// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubComponent struct {
	pages []*page
	idx   int
}

func (s *stubComponent) drain(ctx context.Context, maxPageSize int) (*page, error) {
	if s.idx >= len(s.pages) {
		return nil, nil
	}
	pg := s.pages[s.idx]
	s.idx++
	return pg, nil
}

func pageOf(charge float64, ids ...string) *page {
	p := newPage()
	p.charge = charge
	for _, id := range ids {
		p.items = append(p.items, rawItem{data: []byte(itemDoc(id, 1))})
	}
	return p
}

func TestTopComponent_CapsAtN(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b", "c"), pageOf(1, "d", "e")}}
	top := newTopComponent(inner, 4)

	var total int
	for {
		pg, err := top.drain(context.Background(), 100)
		require.NoError(t, err)
		if pg == nil {
			break
		}
		total += len(pg.items)
	}
	assert.Equal(t, 4, total)
}

func TestTopComponent_StopsPullingOnceSatisfied(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b"), pageOf(1, "c", "d")}}
	top := newTopComponent(inner, 2)

	pg, err := top.drain(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, pg.items, 2)

	pg2, err := top.drain(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, pg2)
	assert.Equal(t, 1, inner.idx, "top should never have pulled the second page")
}

func TestTopComponent_OuterStateReflectsRemaining(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a")}}
	top := newTopComponent(inner, 5)
	_, _ = top.drain(context.Background(), 100)
	assert.Equal(t, 4, *top.outerState())
}
