// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "context"

// component is the single operation every pipeline stage exposes:
// pull up to maxPageSize items from upstream and return one page. Returning
// (nil, nil) signals a clean end of stream; any non-nil error is terminal
// for the whole query.
type component interface {
	drain(ctx context.Context, maxPageSize int) (*page, error)
}

// base is the innermost component kind: it owns the
// DocumentProducers directly and additionally exposes their current
// continuation state so the pipeline can build a CompositeContinuation.
type base interface {
	component
	rangeContinuations() []rangeContinuation
	close()
}
