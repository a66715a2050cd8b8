// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	byKey map[string]PartitionKeyRange
}

func (r *staticResolver) ResolveRangeForKey(ctx context.Context, collectionRID, partitionKey string) (PartitionKeyRange, error) {
	rg, ok := r.byKey[partitionKey]
	if !ok {
		return PartitionKeyRange{}, newError(CodeInvalidArgument, "unknown partition key "+partitionKey)
	}
	return rg, nil
}

func TestBuildReadManyPipeline_GroupsByRange(t *testing.T) {
	exec := newFakeExecutor()
	exec.seed("r1", fakePage{items: []string{itemDoc("a", 1), itemDoc("b", 2)}})
	exec.seed("r2", fakePage{items: []string{itemDoc("c", 3)}})

	resolver := &staticResolver{byKey: map[string]PartitionKeyRange{
		"pk-1": rng("r1", "", "80"),
		"pk-2": rng("r1", "", "80"),
		"pk-3": rng("r2", "80", "FF"),
	}}

	items := []ItemIdentity{
		{PartitionKey: "pk-1", ID: "a"},
		{PartitionKey: "pk-2", ID: "b"},
		{PartitionKey: "pk-3", ID: "c"},
	}

	it, err := BuildReadManyPipeline[testDoc](context.Background(), "coll", items, FeedOptions{}, resolver, newFakeRouting(), exec, nil)
	require.NoError(t, err)
	defer it.Close()

	total := 0
	for {
		resp, ok, err := it.Next(context.Background(), 100)
		require.NoError(t, err)
		if !ok {
			break
		}
		total += len(resp.Items)
		assert.NotEmpty(t, resp.ActivityID)
	}
	assert.Equal(t, 3, total)
}

func TestBuildReadManyPipeline_RequiresAtLeastOneItem(t *testing.T) {
	_, err := BuildReadManyPipeline[testDoc](context.Background(), "coll", nil, FeedOptions{}, &staticResolver{}, newFakeRouting(), newFakeExecutor(), nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidArgument))
}

func TestBuildReadManyPipeline_UnresolvableKeyPropagatesError(t *testing.T) {
	resolver := &staticResolver{byKey: map[string]PartitionKeyRange{}}
	items := []ItemIdentity{{PartitionKey: "unknown", ID: "x"}}

	_, err := BuildReadManyPipeline[testDoc](context.Background(), "coll", items, FeedOptions{}, resolver, newFakeRouting(), newFakeExecutor(), nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidArgument))
}
