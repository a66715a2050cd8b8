// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderByBase_MergesAscendingAcrossRanges(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{
		items:       []string{itemDoc("a", 1), itemDoc("c", 5)},
		orderByKeys: [][]any{{float64(1)}, {float64(5)}},
		rids:        []string{"r1-0", "r1-1"},
	})
	exec.seed("r2", fakePage{
		items:       []string{itemDoc("b", 3), itemDoc("d", 8)},
		orderByKeys: [][]any{{float64(3)}, {float64(8)}},
		rids:        []string{"r2-0", "r2-1"},
	})

	seeds := []producerSeed{
		{Range: rng("r1", "", "80")},
		{Range: rng("r2", "80", "FF")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := newOrderByBase(ctx, seeds, []SortDirection{Ascending}, newTestProducerConfig(exec, newFakeRouting()))
	require.NoError(t, err)
	defer b.close()

	var keys []float64
	for {
		pg, err := b.drain(ctx, 100)
		require.NoError(t, err)
		if pg == nil {
			break
		}
		for _, it := range pg.items {
			keys = append(keys, it.orderByKeys[0].(float64))
		}
	}
	assert.Equal(t, []float64{1, 3, 5, 8}, keys)
}

func TestOrderByBase_DescendingDirection(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{
		items:       []string{itemDoc("b", 9), itemDoc("a", 1)},
		orderByKeys: [][]any{{float64(9)}, {float64(1)}},
		rids:        []string{"r1-0", "r1-1"},
	})

	seeds := []producerSeed{{Range: rng("r1", "", "FF")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := newOrderByBase(ctx, seeds, []SortDirection{Descending}, newTestProducerConfig(exec, newFakeRouting()))
	require.NoError(t, err)
	defer b.close()

	pg, err := b.drain(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pg.items, 2)
	assert.Equal(t, float64(9), pg.items[0].orderByKeys[0])
	assert.Equal(t, float64(1), pg.items[1].orderByKeys[0])
}

func TestOrderByBase_TieBreaksByRangeID(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("rA", fakePage{
		items:       []string{itemDoc("a", 1)},
		orderByKeys: [][]any{{float64(5)}},
		rids:        []string{"rA-0"},
	})
	exec.seed("rB", fakePage{
		items:       []string{itemDoc("b", 2)},
		orderByKeys: [][]any{{float64(5)}},
		rids:        []string{"rB-0"},
	})

	seeds := []producerSeed{
		{Range: rng("rB", "80", "FF")},
		{Range: rng("rA", "", "80")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := newOrderByBase(ctx, seeds, []SortDirection{Ascending}, newTestProducerConfig(exec, newFakeRouting()))
	require.NoError(t, err)
	defer b.close()

	pg, err := b.drain(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pg.items, 2)
	assert.Equal(t, "rA-0", pg.items[0].rid)
	assert.Equal(t, "rB-0", pg.items[1].rid)
}

func TestOrderByBase_EmptyIntermediatePagesPreserveCharge(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1",
		fakePage{items: nil, continuation: "cont-1", charge: 3},
		fakePage{items: []string{itemDoc("a", 1)}, orderByKeys: [][]any{{float64(1)}}, rids: []string{"r1-0"}, charge: 1},
	)

	seeds := []producerSeed{{Range: rng("r1", "", "FF")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := newOrderByBase(ctx, seeds, []SortDirection{Ascending}, newTestProducerConfig(exec, newFakeRouting()))
	require.NoError(t, err)
	defer b.close()

	pg, err := b.drain(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, pg)
	require.Len(t, pg.items, 1)
	assert.Equal(t, float64(4), pg.charge)
}

func TestOrderByBase_RangeContinuationsCarryLastEmittedKey(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{
		items:       []string{itemDoc("a", 1)},
		orderByKeys: [][]any{{float64(1)}},
		rids:        []string{"r1-0"},
		continuation: "tok-1",
	})

	seeds := []producerSeed{{Range: rng("r1", "", "FF")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := newOrderByBase(ctx, seeds, []SortDirection{Ascending}, newTestProducerConfig(exec, newFakeRouting()))
	require.NoError(t, err)
	defer b.close()

	_, err = b.drain(ctx, 100)
	require.NoError(t, err)

	rcs := b.rangeContinuations()
	require.Len(t, rcs, 1)
	require.NotNil(t, rcs[0].Order)
	assert.Equal(t, "r1-0", rcs[0].Order.RID)
}
