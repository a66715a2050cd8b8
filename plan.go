// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// OrderByColumn is one column of a query's ORDER BY clause.
type OrderByColumn struct {
	Expression string
	Direction  SortDirection
}

// KeyRange is a half-open [Min, Max) span of the hashed key space, used to
// describe the span a plan's queryRanges cover before they are resolved
// against the routing map into concrete PartitionKeyRanges.
type KeyRange struct {
	Min string
	Max string
}

// PartitionedQueryExecutionInfo is the output contract of the query
// planner: the rewritten query text plus everything the pipeline factory
// needs to decide which components to build.
type PartitionedQueryExecutionInfo struct {
	RewrittenQuery        string
	OrderBy               []OrderByColumn
	Aggregate             AggregateOperator
	Top                   *int
	Offset                *int
	Limit                 *int
	HasSelectValue        bool
	DistinctType          DistinctType
	RequiresCrossPartition bool
	QueryRanges           []KeyRange
}

// DegeneratesToPassThrough reports whether this plan needs nothing beyond a
// single pass-through DocumentProducer: single partition, or no
// cross-partition requirement and no aggregate/orderBy/top/offset.
func (p PartitionedQueryExecutionInfo) DegeneratesToPassThrough(targetRangeCount int) bool {
	if targetRangeCount <= 1 {
		return true
	}
	if p.RequiresCrossPartition {
		return false
	}
	return p.Aggregate == AggregateNone &&
		len(p.OrderBy) == 0 &&
		p.Top == nil &&
		p.Offset == nil
}

// QueryPlanner is the collaborator that turns a SQL-like query into a
// PartitionedQueryExecutionInfo. It is external to the core; the
// pipeline only consumes its output contract.
type QueryPlanner interface {
	Plan(ctx context.Context, collectionRID, query string, supportedFeatures string) (PartitionedQueryExecutionInfo, error)
}

// ParsePartitionedQueryExecutionInfo parses the gateway's JSON plan
// response. It uses gjson rather than encoding/json because gateway plan
// payloads vary across server versions (optional queryInfo sub-objects,
// renamed fields on older API versions) and the strict unmarshal-into-
// struct approach used for our own continuation tokens (continuation.go)
// is the wrong tool for a schema we don't control.
func ParsePartitionedQueryExecutionInfo(data []byte) (PartitionedQueryExecutionInfo, error) {
	if !gjson.ValidBytes(data) {
		return PartitionedQueryExecutionInfo{}, newError(CodeInvalidArgument, "query plan is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if v := root.Get("partitionedQueryExecutionInfoVersion"); !v.Exists() {
		return PartitionedQueryExecutionInfo{}, newError(CodePlanRejected, "missing partitionedQueryExecutionInfoVersion")
	}

	info := PartitionedQueryExecutionInfo{}
	qi := root.Get("queryInfo")
	info.RewrittenQuery = qi.Get("rewrittenQuery").String()
	info.HasSelectValue = qi.Get("hasSelectValue").Bool()

	for i, ob := range qi.Get("orderBy").Array() {
		expr := qi.Get(fmt.Sprintf("orderByExpressions.%d", i)).String()
		dir := Ascending
		if ob.String() == "Descending" {
			dir = Descending
		}
		info.OrderBy = append(info.OrderBy, OrderByColumn{Expression: expr, Direction: dir})
	}

	if agg := qi.Get("aggregates.0"); agg.Exists() {
		switch agg.String() {
		case "Sum":
			info.Aggregate = AggregateSum
		case "Min":
			info.Aggregate = AggregateMin
		case "Max":
			info.Aggregate = AggregateMax
		case "Count":
			info.Aggregate = AggregateCount
		case "Average":
			info.Aggregate = AggregateAverage
		default:
			return PartitionedQueryExecutionInfo{}, newError(CodePlanRejected, "unsupported aggregate "+agg.String())
		}
	}

	if t := qi.Get("top"); t.Exists() {
		v := int(t.Int())
		info.Top = &v
	}
	if o := qi.Get("offset"); o.Exists() {
		v := int(o.Int())
		info.Offset = &v
	}
	if l := qi.Get("limit"); l.Exists() {
		v := int(l.Int())
		info.Limit = &v
	}

	if dt := qi.Get("distinctType"); dt.Exists() {
		switch dt.String() {
		case "Ordered":
			info.DistinctType = DistinctOrdered
		case "Unordered":
			info.DistinctType = DistinctUnordered
		}
	}

	for _, qr := range root.Get("queryRanges").Array() {
		info.QueryRanges = append(info.QueryRanges, KeyRange{
			Min: qr.Get("min").String(),
			Max: qr.Get("max").String(),
		})
	}

	info.RequiresCrossPartition = root.Get("queryRanges.#").Int() > 1 ||
		info.Aggregate != AggregateNone || len(info.OrderBy) > 0 || info.Top != nil || info.Offset != nil

	if info.DistinctType == DistinctOrdered && len(info.OrderBy) == 0 {
		return PartitionedQueryExecutionInfo{}, newError(CodePlanRejected, "ordered DISTINCT requires an ORDER BY clause")
	}

	return info, nil
}
