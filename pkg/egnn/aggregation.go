// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// SegmentReduce aggregates the per-edge values into numSegments per-node values, where each edge
// contributes to the node given by segmentIDs.
//
// Args:
//   - values: shaped `[numEdges, dim]`.
//   - segmentIDs: integer indices shaped `[numEdges]` or `[numEdges, 1]`, with values in `[0, numSegments)`.
//   - numSegments: number of output nodes.
//   - aggregation: AggregateSum divides the sum by normalizationFactor (which must be > 0), AggregateMean divides
//     it by the number of contributing edges, with a floor of 1.
//
// It returns a tensor shaped `[numSegments, dim]`. Nodes without incoming edges are zero.
// Half precision values are accumulated in float32.
func SegmentReduce(values, segmentIDs *Node, numSegments int, aggregation Aggregation, normalizationFactor float64) *Node {
	if values.Rank() != 2 {
		Panicf("SegmentReduce(): values must be shaped [numEdges, dim], got %s", values.Shape())
	}
	numEdges := values.Shape().Dimensions[0]
	segmentIDs = edgeIndices(segmentIDs, numEdges, "SegmentReduce(): segmentIDs")
	if numSegments <= 0 {
		Panicf("SegmentReduce(): numSegments must be > 0, got %d", numSegments)
	}
	if aggregation == AggregateSum && normalizationFactor <= 0 {
		Panicf("SegmentReduce(): normalizationFactor must be > 0, got %g", normalizationFactor)
	}

	g := values.Graph()
	dtype := values.DType()
	dtypeReduce := dtype
	if dtype.IsFloat16() {
		dtypeReduce = dtypes.Float32
		values = ConvertDType(values, dtypeReduce)
	}
	dim := values.Shape().Dimensions[1]
	reduced := ScatterSum(Zeros(g, shapes.Make(dtypeReduce, numSegments, dim)), segmentIDs, values, false, false)

	switch aggregation {
	case AggregateSum:
		if normalizationFactor != 1 {
			reduced = DivScalar(reduced, normalizationFactor)
		}
	case AggregateMean:
		ones := Ones(g, shapes.Make(dtypeReduce, numEdges, 1))
		count := ScatterSum(Zeros(g, shapes.Make(dtypeReduce, numSegments, 1)), segmentIDs, ones, false, false)
		count = MaxScalar(count, 1) // Nodes without edges: 0/1 = 0.
		reduced = Div(reduced, count)
	default:
		Panicf("SegmentReduce(): unknown aggregation %s, valid values are %q", aggregation, AggregationStrings())
	}
	if dtypeReduce != dtype {
		reduced = ConvertDType(reduced, dtype)
	}
	return reduced
}

// edgeIndices checks that indices is an integer tensor shaped `[numEdges]` or `[numEdges, 1]`, and returns it
// shaped `[numEdges, 1]` as expected by Gather and ScatterSum.
func edgeIndices(indices *Node, numEdges int, name string) *Node {
	if !indices.DType().IsInt() {
		Panicf("%s must be an integer tensor, got %s", name, indices.Shape())
	}
	if indices.Rank() == 1 {
		indices = InsertAxes(indices, -1)
	}
	if indices.Rank() != 2 || indices.Shape().Dimensions[1] != 1 || indices.Shape().Dimensions[0] != numEdges {
		Panicf("%s must be shaped [numEdges=%d] or [numEdges=%d, 1], got %s", name, numEdges, numEdges, indices.Shape())
	}
	return indices
}
