// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipComponent_SkipsWithinOnePage(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b", "c", "d")}}
	skip := newSkipComponent(inner, 2)

	pg, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	assert.Len(t, pg.items, 2)
}

func TestSkipComponent_SkipsAcrossMultiplePagesPreservingCharge(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(2, "a", "b"), pageOf(3, "c")}}
	skip := newSkipComponent(inner, 3)

	pg, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	assert.Empty(t, pg.items)
	assert.Equal(t, float64(5), pg.charge)
}

func TestSkipComponent_PartialPageSkip(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b", "c")}}
	skip := newSkipComponent(inner, 1)

	pg, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	assert.Len(t, pg.items, 2)
}

func TestSkipComponent_ZeroSkipPassesThrough(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a")}}
	skip := newSkipComponent(inner, 0)

	pg, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	assert.Len(t, pg.items, 1)
}

func TestSkipComponent_EndOfStreamWhileSkipping(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a")}}
	skip := newSkipComponent(inner, 5)

	pg, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	assert.Empty(t, pg.items)
	assert.Equal(t, float64(1), pg.charge)

	pg2, err := skip.drain(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, pg2)
}
