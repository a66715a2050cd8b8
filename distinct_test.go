// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistinctComponent_FiltersDuplicatesAcrossPages(t *testing.T) {
	inner := &stubComponent{pages: []*page{
		pageOf(1, "a", "b", "a"),
		pageOf(1, "b", "c"),
	}}
	d, err := newDistinctComponent(inner, nil)
	require.NoError(t, err)

	var ids []string
	for {
		pg, err := d.drain(context.Background(), 100)
		require.NoError(t, err)
		if pg == nil {
			break
		}
		for _, it := range pg.items {
			var doc struct {
				ID string `json:"id"`
			}
			require.NoError(t, json.Unmarshal(it.data, &doc))
			ids = append(ids, doc.ID)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestDistinctComponent_ResumesFromSeedDigest(t *testing.T) {
	seed := &distinctComponent{seen: map[uint64]struct{}{}}
	existingFP := fingerprint([]byte(itemDoc("a", 1)))
	seed.seen[existingFP] = struct{}{}
	digest := seed.digest()

	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b")}}
	d, err := newDistinctComponent(inner, digest)
	require.NoError(t, err)

	pg, err := d.drain(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, pg.items, 1)
}

func TestDistinctComponent_MalformedSeedDigestErrors(t *testing.T) {
	inner := &stubComponent{}
	_, err := newDistinctComponent(inner, []byte("not json"))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidContinuation))
}

func TestDistinctComponent_DigestIsDeterministic(t *testing.T) {
	inner := &stubComponent{pages: []*page{pageOf(1, "a", "b")}}
	d, err := newDistinctComponent(inner, nil)
	require.NoError(t, err)
	_, err = d.drain(context.Background(), 100)
	require.NoError(t, err)

	d1 := d.digest()
	d2 := d.digest()
	assert.Equal(t, d1, d2)
}
