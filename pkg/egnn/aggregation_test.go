// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// Three nodes graph: node 0 receives edges 0 and 1, node 1 receives edge 2 and node 2 receives nothing.
var (
	threeNodesMessages  = [][]float32{{1, 2}, {3, 4}, {5, 6}}
	threeNodesReceivers = []int32{0, 0, 1}
)

func TestSegmentReduce(t *testing.T) {
	reduceFn := func(aggregation Aggregation, normalizationFactor float64) graphtest.TestGraphFn {
		return func(g *Graph) (inputs, outputs []*Node) {
			values := Const(g, threeNodesMessages)
			receivers := Const(g, threeNodesReceivers)
			inputs = []*Node{values, receivers}
			outputs = []*Node{SegmentReduce(values, receivers, 3, aggregation, normalizationFactor)}
			return
		}
	}
	graphtest.RunTestGraphFn(t, "sum", reduceFn(AggregateSum, 1),
		[]any{[][]float32{{4, 6}, {5, 6}, {0, 0}}}, 1e-6)
	graphtest.RunTestGraphFn(t, "sum-normalized", reduceFn(AggregateSum, 100),
		[]any{[][]float32{{0.04, 0.06}, {0.05, 0.06}, {0, 0}}}, 1e-6)
	graphtest.RunTestGraphFn(t, "mean", reduceFn(AggregateMean, 1),
		[]any{[][]float32{{2, 3}, {5, 6}, {0, 0}}}, 1e-6)

	// Normalization factor is ignored by the mean.
	graphtest.RunTestGraphFn(t, "mean-ignores-normalization", reduceFn(AggregateMean, 100),
		[]any{[][]float32{{2, 3}, {5, 6}, {0, 0}}}, 1e-6)

	// Segment ids shaped [numEdges, 1].
	graphtest.RunTestGraphFn(t, "indices-with-trailing-axis", func(g *Graph) (inputs, outputs []*Node) {
		values := Const(g, threeNodesMessages)
		receivers := InsertAxes(Const(g, threeNodesReceivers), -1)
		inputs = []*Node{values, receivers}
		outputs = []*Node{SegmentReduce(values, receivers, 3, AggregateSum, 1)}
		return
	}, []any{[][]float32{{4, 6}, {5, 6}, {0, 0}}}, 1e-6)

	// Half precision is accumulated in float32 and converted back.
	graphtest.RunTestGraphFn(t, "float16", func(g *Graph) (inputs, outputs []*Node) {
		values := ConvertDType(Const(g, threeNodesMessages), dtypes.Float16)
		receivers := Const(g, threeNodesReceivers)
		inputs = []*Node{values, receivers}
		outputs = []*Node{ConvertDType(SegmentReduce(values, receivers, 3, AggregateMean, 1), dtypes.Float32)}
		return
	}, []any{[][]float32{{2, 3}, {5, 6}, {0, 0}}}, 1e-3)
}

func TestSegmentReduceErrors(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, "TestSegmentReduceErrors")
	values := Const(g, threeNodesMessages)
	receivers := Const(g, threeNodesReceivers)

	require.Panics(t, func() { SegmentReduce(values, receivers, 3, AggregateSum, 0) }, "normalization factor 0")
	require.Panics(t, func() { SegmentReduce(values, receivers, 3, Aggregation(7), 1) }, "invalid aggregation")
	require.Panics(t, func() { SegmentReduce(values, Const(g, []int32{0, 1}), 3, AggregateSum, 1) }, "edges mismatch")
	require.Panics(t, func() { SegmentReduce(values, Const(g, []float32{0, 1, 2}), 3, AggregateSum, 1) }, "float ids")
	require.Panics(t, func() { SegmentReduce(Const(g, []float32{1, 2, 3}), receivers, 3, AggregateSum, 1) }, "rank 1")
	require.Panics(t, func() { SegmentReduce(values, receivers, 0, AggregateSum, 1) }, "no segments")
	require.NotPanics(t, func() {
		out := SegmentReduce(values, receivers, 5, AggregateMean, 1)
		require.NoError(t, out.Shape().Check(dtypes.Float32, 5, 2))
	})
}

func TestParseEnums(t *testing.T) {
	agg, err := ParseAggregation("mean")
	require.NoError(t, err)
	require.Equal(t, AggregateMean, agg)
	_, err = ParseAggregation("max")
	require.Error(t, err)

	topology, err := ParseTopology("fusion")
	require.NoError(t, err)
	require.Equal(t, TopologyFusion, topology)
	_, err = ParseTopology("bipartite")
	require.Error(t, err)

	recompute, err := ParseRecompute("sqrt")
	require.NoError(t, err)
	require.Equal(t, RecomputeSqrt, recompute)
	_, err = ParseRecompute("some")
	require.Error(t, err)
}

func TestRecomputeBlocks(t *testing.T) {
	require.Equal(t, []bool{false, false, false}, RecomputeNone.Blocks(3))
	require.Equal(t, []bool{true, true, true}, RecomputeAll.Blocks(3))
	require.Equal(t, []bool{false}, RecomputeSqrt.Blocks(1))
	// int(sqrt(9)) = 3: blocks 2, 5 and 8.
	require.Equal(t, []bool{false, false, true, false, false, true, false, false, true}, RecomputeSqrt.Blocks(9))
	// int(sqrt(3)) = 1: all blocks.
	require.Equal(t, []bool{true, true, true}, RecomputeSqrt.Blocks(3))
}
