// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package queryengine implements the cross-partition query execution
// pipeline for a partitioned, geo-replicated document database: it turns a
// single SQL-like query against a horizontally-partitioned collection into
// a set of per-partition producers, merges and aggregates their output, and
// paginates the result back to the caller as a resumable feed.
//
// Everything outside the pipeline itself — transport, authentication,
// retries, session tokens, and change-feed lease orchestration — is
// consumed through the collaborator interfaces in collaborators.go and is
// not implemented here.
package queryengine
