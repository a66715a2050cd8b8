// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainAll(t *testing.T, p *Pipeline) ([]rawItem, string) {
	t.Helper()
	var items []rawItem
	var lastToken string
	for {
		pg, token, err := p.drainPage(context.Background(), 100)
		require.NoError(t, err)
		if pg == nil {
			break
		}
		items = append(items, pg.items...)
		lastToken = token
	}
	return items, lastToken
}

func TestBuildPipeline_UnorderedCrossPartitionSelect(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{items: []string{itemDoc("a", 1)}})
	exec.seed("r2", fakePage{items: []string{itemDoc("b", 2)}})
	exec.seed("r3", fakePage{items: []string{itemDoc("c", 3)}})

	info := PartitionedQueryExecutionInfo{RewrittenQuery: "SELECT * FROM c", RequiresCrossPartition: true}
	ranges := []PartitionKeyRange{rng("r1", "", "40"), rng("r2", "40", "80"), rng("r3", "80", "FF")}
	opts := FeedOptions{EnableCrossPartitionQuery: true}

	p, err := BuildPipeline(context.Background(), info, "coll", opts, ranges, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	defer p.Close()

	items, _ := drainAll(t, p)
	assert.Len(t, items, 3)
}

func TestBuildPipeline_RejectsCrossPartitionWithoutOptIn(t *testing.T) {
	info := PartitionedQueryExecutionInfo{RequiresCrossPartition: true}
	ranges := []PartitionKeyRange{rng("r1", "", "80"), rng("r2", "80", "FF")}

	_, err := BuildPipeline(context.Background(), info, "coll", FeedOptions{}, ranges, newFakeRouting(), newFakeExecutor(), nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodePlanRejected))
}

func TestBuildPipeline_AggregateSum(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{items: []string{`{"item":4}`}})
	exec.seed("r2", fakePage{items: []string{`{"item":6}`}})

	info := PartitionedQueryExecutionInfo{
		RewrittenQuery:         "SELECT VALUE SUM(c.n) FROM c",
		Aggregate:              AggregateSum,
		RequiresCrossPartition: true,
	}
	ranges := []PartitionKeyRange{rng("r1", "", "80"), rng("r2", "80", "FF")}
	opts := FeedOptions{EnableCrossPartitionQuery: true}

	p, err := BuildPipeline(context.Background(), info, "coll", opts, ranges, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	defer p.Close()

	items, _ := drainAll(t, p)
	require.Len(t, items, 1)
	assert.Equal(t, decodeAggregate(t, &page{items: items}), float64(10))
}

func TestBuildPipeline_TopWithOrderByDescending(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{
		items:       []string{itemDoc("b", 9), itemDoc("a", 1)},
		orderByKeys: [][]any{{float64(9)}, {float64(1)}},
		rids:        []string{"r1-0", "r1-1"},
	})
	exec.seed("r2", fakePage{
		items:       []string{itemDoc("c", 5)},
		orderByKeys: [][]any{{float64(5)}},
		rids:        []string{"r2-0"},
	})

	n := 2
	info := PartitionedQueryExecutionInfo{
		RewrittenQuery:         "SELECT * FROM c ORDER BY c.n DESC",
		OrderBy:                []OrderByColumn{{Expression: "c.n", Direction: Descending}},
		Top:                    &n,
		RequiresCrossPartition: true,
	}
	ranges := []PartitionKeyRange{rng("r1", "", "80"), rng("r2", "80", "FF")}
	opts := FeedOptions{EnableCrossPartitionQuery: true}

	p, err := BuildPipeline(context.Background(), info, "coll", opts, ranges, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	defer p.Close()

	items, _ := drainAll(t, p)
	require.Len(t, items, 2)
	assert.Equal(t, float64(9), items[0].orderByKeys[0])
	assert.Equal(t, float64(5), items[1].orderByKeys[0])
}

func TestBuildPipeline_ResumeFromContinuation(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1",
		fakePage{items: []string{itemDoc("a", 1)}, continuation: "tok-a"},
		fakePage{items: []string{itemDoc("b", 2)}, continuation: ""},
	)

	info := PartitionedQueryExecutionInfo{RewrittenQuery: "SELECT * FROM c"}
	ranges := []PartitionKeyRange{rng("r1", "", "FF")}

	p1, err := BuildPipeline(context.Background(), info, "coll", FeedOptions{MaxItemCount: 1}, ranges, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	pg1, token, err := p1.drainPage(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, pg1)
	require.Len(t, pg1.items, 1)
	require.NotEmpty(t, token)
	p1.Close()

	resumeOpts := FeedOptions{MaxItemCount: 1, RequestContinuation: token}
	p2, err := BuildPipeline(context.Background(), info, "coll", resumeOpts, ranges, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	defer p2.Close()

	items, _ := drainAll(t, p2)
	require.Len(t, items, 1)
}

func TestBuildPipeline_RejectsDistinctUnorderedWithOrderBy(t *testing.T) {
	info := PartitionedQueryExecutionInfo{
		DistinctType: DistinctUnordered,
		OrderBy:      []OrderByColumn{{Expression: "c.n"}},
	}
	ranges := []PartitionKeyRange{rng("r1", "", "FF")}

	_, err := BuildPipeline(context.Background(), info, "coll", FeedOptions{}, ranges, newFakeRouting(), newFakeExecutor(), nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodePlanRejected))
}
