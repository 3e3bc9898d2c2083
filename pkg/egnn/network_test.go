// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"fmt"
	"math/rand/v2"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// testBuilder returns a small network builder with coordinate updates large enough to be measured.
func testBuilder(ctx *context.Context, topology Topology) *Builder {
	return New(ctx.In("egnn"), topology).
		NumBlocks(2).
		InnerLayers(2).
		HiddenDim(16).
		Tanh(true, 6).
		CoordsOutputGain(1).
		Aggregation(AggregateSum, 1)
}

// TestSelfEquivariance checks that rotating and translating the input coordinates rotates and translates the
// output coordinates, and leaves the output features unchanged.
func TestSelfEquivariance(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, sinusoidal := range []bool{false, true} {
		for _, aggregation := range []Aggregation{AggregateSum, AggregateMean} {
			name := fmt.Sprintf("sinusoidal=%v-aggregation=%s", sinusoidal, aggregation)
			t.Run(name, func(t *testing.T) {
				rng := rand.New(rand.NewPCG(42, 0))
				features := randomValues3D(rng, 2, 4, 5, 1)
				positions := randomValues3D(rng, 2, 4, 3, 2)
				mask := [][]float64{{1, 1, 1, 0}, {1, 1, 0, 0}}
				rotation := randomRotation(rng)
				translation := []float64{3, -1, 0.5}

				ctx := context.New()
				outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
					ctx = ctx.Checked(false)
					network := testBuilder(ctx, TopologySelf).
						SinusoidalEmbedding(sinusoidal).
						Aggregation(aggregation, 1).
						Done()
					nodeMask := Const(g, mask)
					flatMask := FlattenNodeMask(nodeMask)
					edges := CompleteGraphEdges(nodeMask)
					h := ApplyNodeMask(FlattenNodes(Const(g, features)), flatMask)
					x := ApplyNodeMask(FlattenNodes(Const(g, positions)), flatMask)

					h1, x1 := network.Self(h, x, flatMask, edges)
					xT := ApplyNodeMask(rigidTransform(x, rotation, translation), flatMask)
					h2, x2 := network.Self(h, xT, flatMask, edges)
					x1T := ApplyNodeMask(rigidTransform(x1, rotation, translation), flatMask)
					return []*Node{
						maxAbsDiff(h1, h2),
						maxAbsDiff(x1T, x2),
						maxAbsDiff(x1, x),
					}
				})
				featuresDiff := tensors.ToScalar[float64](outputs[0])
				coordsDiff := tensors.ToScalar[float64](outputs[1])
				update := tensors.ToScalar[float64](outputs[2])
				fmt.Printf("\t%s: features diff=%g, coords diff=%g, coords update=%g\n",
					name, featuresDiff, coordsDiff, update)
				require.Less(t, featuresDiff, 1e-8)
				require.Less(t, coordsDiff, 1e-8)
				require.Greater(t, update, 1e-3)
			})
		}
	}
}

// TestSelfMasking checks that padded nodes are zeroed, that their content doesn't affect the real nodes and
// that permuting the real nodes permutes the outputs.
func TestSelfMasking(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	rng := rand.New(rand.NewPCG(7, 0))
	features := randomValues2D(rng, 4, 3, 1)
	positions := randomValues2D(rng, 4, 3, 1)
	garbageFeatures := randomValues2D(rng, 4, 3, 100)
	garbagePositions := randomValues2D(rng, 4, 3, 100)
	mask := [][]float64{{1, 1, 1, 0}}
	permutation := [][]int32{{2}, {0}, {1}, {3}}

	ctx := context.New()
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		ctx = ctx.Checked(false)
		network := testBuilder(ctx, TopologySelf).Done()
		nodeMask := Const(g, mask)
		flatMask := FlattenNodeMask(nodeMask)
		edges := CompleteGraphEdges(nodeMask)
		h, x := Const(g, features), Const(g, positions)
		h1, x1 := network.Self(h, x, flatMask, edges)

		// Replace the padded node by garbage.
		isReal := ConvertDType(flatMask, h.DType())
		isPad := OneMinus(isReal)
		hGarbage := Add(Mul(h, isReal), Mul(Const(g, garbageFeatures), isPad))
		xGarbage := Add(Mul(x, isReal), Mul(Const(g, garbagePositions), isPad))
		h2, x2 := network.Self(hGarbage, xGarbage, flatMask, edges)

		// Permute the real nodes.
		perm := Const(g, permutation)
		h3, x3 := network.Self(Gather(h, perm), Gather(x, perm), flatMask, edges)

		padRow := func(v *Node) *Node { return ReduceAllMax(Abs(SliceAxis(v, 0, AxisElem(3)))) }
		return []*Node{
			padRow(h1), padRow(x1),
			maxAbsDiff(h1, h2), maxAbsDiff(x1, x2),
			maxAbsDiff(Gather(h1, perm), h3), maxAbsDiff(Gather(x1, perm), x3),
		}
	})
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[0]), "padded features must be zero")
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[1]), "padded coordinates must be zero")
	require.Less(t, tensors.ToScalar[float64](outputs[2]), 1e-10, "padded features leaked")
	require.Less(t, tensors.ToScalar[float64](outputs[3]), 1e-10, "padded coordinates leaked")
	require.Less(t, tensors.ToScalar[float64](outputs[4]), 1e-10, "features not permutation equivariant")
	require.Less(t, tensors.ToScalar[float64](outputs[5]), 1e-10, "coordinates not permutation equivariant")
}

// TestSelfPaddedSlot runs a molecule of 2 atoms padded to 3 slots, where the padded slot coincides with the first
// atom.
func TestSelfPaddedSlot(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := CreateDefaultContext()
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		nodeMask := Const(g, [][]float32{{1, 1, 0}})
		flatMask := FlattenNodeMask(nodeMask)
		edges := CompleteGraphEdges(nodeMask)
		x := Const(g, [][]float32{{0, 0, 0}, {1, 0, 0}, {0, 0, 0}})
		h := Const(g, [][]float32{{1, 0}, {0, 1}, {1, 1}})
		radial, _ := Geometry(x, x, edges, 1)
		network := New(ctx.In("egnn"), TopologySelf).NumBlocks(1).HiddenDim(8).Done()
		hOut, xOut := network.Self(h, x, flatMask, edges)
		return []*Node{radial, hOut, xOut}
	})
	radial := tensors.MustCopyFlatData[float32](outputs[0])
	require.InDelta(t, 1.0, radial[1], 1e-6, "radial(0, 1)")
	require.InDelta(t, 1.0, radial[3], 1e-6, "radial(1, 0)")
	require.Equal(t, float32(0), radial[0], "radial(0, 0)")

	h := tensors.MustCopyFlatData[float32](outputs[1])
	require.Equal(t, []float32{0, 0}, h[4:6])
	x := tensors.MustCopyFlatData[float32](outputs[2])
	require.Equal(t, []float32{0, 0, 0}, x[6:9])
}

// TestThreeNodesAggregation checks the aggregation on a hand-built graph: with the attention off, the sum of the
// messages of node 0 (2 edges) is twice the message of node 1 (1 edge) when all messages are equal.
func TestThreeNodesAggregation(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		cfg := testBuilder(ctx, TopologySelf).Attention(false).Done().Config()
		// All features and attributes equal, so all messages are equal.
		h := Ones(g, shapesF32(3, 4))
		edges := NewEdges(Const(g, []int32{0, 0, 1}), Const(g, []int32{1, 2, 0}), nil, 3, 3)
		edgeAttr := Ones(g, shapesF32(3, 2))
		messages, _ := EdgeMessages(ctx.In("edge"), &cfg, Gather(h, edges.Receivers), Gather(h, edges.Senders),
			edgeAttr, nil)
		sum := SegmentReduce(messages, edges.Receivers, 3, AggregateSum, 1)
		mean := SegmentReduce(messages, edges.Receivers, 3, AggregateMean, 1)
		row := func(v *Node, i int) *Node { return SliceAxis(v, 0, AxisElem(i)) }
		return []*Node{
			maxAbsDiff(row(sum, 0), MulScalar(row(sum, 1), 2)),
			maxAbsDiff(row(mean, 0), row(mean, 1)),
			ReduceAllMax(Abs(row(sum, 2))),
			ReduceAllMax(Abs(row(sum, 1))),
		}
	})
	require.Less(t, tensors.ToScalar[float32](outputs[0]), float32(1e-5))
	require.Less(t, tensors.ToScalar[float32](outputs[1]), float32(1e-5))
	require.Equal(t, float32(0), tensors.ToScalar[float32](outputs[2]), "node without incoming edges")
	require.Greater(t, tensors.ToScalar[float32](outputs[3]), float32(0))
}

// TestFusionAsymmetry checks that only the first node set is updated, and that the second is passed through.
func TestFusionAsymmetry(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	rng := rand.New(rand.NewPCG(3, 0))
	pocketFeatures := randomValues3D(rng, 1, 2, 4, 1)
	pocketPositions := randomValues3D(rng, 1, 2, 3, 1)
	ligandFeatures := randomValues3D(rng, 1, 3, 4, 1)
	ligandPositions := randomValues3D(rng, 1, 3, 3, 1)
	rotation := randomRotation(rng)
	translation := []float64{-2, 1, 4}

	ctx := context.New()
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		ctx = ctx.Checked(false)
		network := testBuilder(ctx, TopologyFusion).Done()
		pocketMask := Const(g, [][]float64{{1, 1}})
		ligandMask := Const(g, [][]float64{{1, 1, 0}})
		edges := BipartiteEdges(pocketMask, ligandMask)
		flatPocketMask := FlattenNodeMask(pocketMask)
		h1, x1 := FlattenNodes(Const(g, pocketFeatures)), FlattenNodes(Const(g, pocketPositions))
		h2, x2 := FlattenNodes(Const(g, ligandFeatures)), FlattenNodes(Const(g, ligandPositions))

		h1Out, x1Out, h2Out, x2Out := network.Fusion(h1, x1, h2, x2, flatPocketMask, edges)
		require.Same(t, h2, h2Out)
		require.Same(t, x2, x2Out)

		// Moving the padded ligand atom changes nothing.
		ligandMove := Const(g, [][]float64{{0, 0, 0}, {0, 0, 0}, {100, -50, 20}})
		h1Pad, x1Pad, _, _ := network.Fusion(h1, x1, h2, Add(x2, ligandMove), flatPocketMask, edges)

		// Moving a real ligand atom changes the pocket.
		realMove := Const(g, [][]float64{{0.5, 0.5, 0}, {0, 0, 0}, {0, 0, 0}})
		h1Real, _, _, _ := network.Fusion(h1, x1, h2, Add(x2, realMove), flatPocketMask, edges)

		// Rigid transformation of both sets.
		h1Rot, x1Rot, _, _ := network.Fusion(h1, rigidTransform(x1, rotation, translation),
			h2, rigidTransform(x2, rotation, translation), flatPocketMask, edges)

		return []*Node{
			maxAbsDiff(h2Out, h2), maxAbsDiff(x2Out, x2),
			maxAbsDiff(h1Out, h1Pad), maxAbsDiff(x1Out, x1Pad),
			maxAbsDiff(h1Out, h1Real),
			maxAbsDiff(h1Out, h1Rot), maxAbsDiff(rigidTransform(x1Out, rotation, translation), x1Rot),
			maxAbsDiff(x1Out, x1),
		}
	})
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[0]), "ligand features changed")
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[1]), "ligand coordinates changed")
	require.Less(t, tensors.ToScalar[float64](outputs[2]), 1e-10, "padded ligand atom leaked into features")
	require.Less(t, tensors.ToScalar[float64](outputs[3]), 1e-10, "padded ligand atom leaked into coordinates")
	require.Greater(t, tensors.ToScalar[float64](outputs[4]), 1e-6, "ligand not used as context")
	require.Less(t, tensors.ToScalar[float64](outputs[5]), 1e-8, "features not invariant")
	require.Less(t, tensors.ToScalar[float64](outputs[6]), 1e-8, "coordinates not equivariant")
	require.Greater(t, tensors.ToScalar[float64](outputs[7]), 1e-3, "pocket coordinates not updated")
}

func TestFusionOutputs(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	var hookCalls []int
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		hookCalls = hookCalls[:0]
		network := testBuilder(ctx, TopologyFusion).
			NumBlocks(3).
			ConditioningProjection(true).
			BlockHook(func(blockIdx int, h, x *Node) { hookCalls = append(hookCalls, blockIdx) }).
			Done()
		pocketMask := Const(g, [][]float32{{1, 1, 0}})
		ligandMask := Const(g, [][]float32{{1, 1}})
		edges := BipartiteEdges(pocketMask, ligandMask)
		h1 := Ones(g, shapesF32(3, 4))
		x1 := IotaFull(g, shapesF32(3, 3))
		h2 := Ones(g, shapesF32(2, 6))
		x2 := Neg(IotaFull(g, shapesF32(2, 3)))
		blocks := network.FusionOutputs(h1, x1, h2, x2, FlattenNodeMask(pocketMask), edges)
		require.Len(t, blocks, 3)
		var results []*Node
		for _, block := range blocks {
			require.NoError(t, block.Conditioning.Shape().CheckDims(3, 4))
			results = append(results, ReduceAllMax(Abs(block.Conditioning)))
		}
		// Padded receiver (row 2) after each block.
		for _, block := range blocks {
			results = append(results,
				ReduceAllMax(Abs(Slice(block.H, AxisRange(2, 3)))),
				ReduceAllMax(Abs(Slice(block.X, AxisRange(2, 3)))))
		}
		return results
	})
	require.Equal(t, []int{0, 1, 2}, hookCalls)
	for i, output := range outputs[:3] {
		require.Equalf(t, float32(0), tensors.ToScalar[float32](output), "block %d conditioning not zero", i)
	}
	for i, output := range outputs[3:] {
		require.Equalf(t, float32(0), tensors.ToScalar[float32](output), "block %d padded receiver not zero", i/2)
	}
}

func TestBuilder(t *testing.T) {
	ctx := CreateDefaultContext()
	network, err := New(ctx, TopologySelf).NumBlocks(4).Recompute(RecomputeSqrt).TryDone()
	require.NoError(t, err)
	require.Len(t, network.Blocks(), 4)
	var recompute []bool
	for i, block := range network.Blocks() {
		require.Equal(t, i, block.Index())
		require.Contains(t, block.Scope(), fmt.Sprintf("block_%03d", i))
		require.InDelta(t, 15.0/4, block.CoordsRange(), 1e-9)
		recompute = append(recompute, block.Recompute())
	}
	require.Equal(t, []bool{false, true, false, true}, recompute)
	cfg := network.Config()
	require.Equal(t, 64, cfg.HiddenDim)
	require.Equal(t, AggregateSum, cfg.CoordsAggregation)
	require.Equal(t, 100.0, cfg.CoordsNormalizationFactor)
	require.Equal(t, 2, cfg.EdgeAttributesDim())
	require.Nil(t, network.NanLogger())

	// Hyperparameters from the context.
	ctx.SetParams(map[string]any{
		ParamAggregation:         "mean",
		ParamCoordsAggregation:   "sum",
		ParamSinusoidalEmbedding: true,
		ParamNanLogger:           true,
	})
	network, err = New(ctx, TopologyFusion).TryDone()
	require.NoError(t, err)
	cfg = network.Config()
	require.Equal(t, AggregateMean, cfg.Aggregation)
	require.Equal(t, AggregateSum, cfg.CoordsAggregation)
	require.Equal(t, 2*SinusoidsDim(), cfg.EdgeAttributesDim())
	require.NotNil(t, network.NanLogger())
	for _, block := range network.Blocks() {
		require.InDelta(t, 15.0, block.CoordsRange(), 1e-9, "fusion blocks use the whole coordinates range")
	}

	// Invalid configurations.
	for name, builder := range map[string]*Builder{
		"no blocks":          New(context.New(), TopologySelf).NumBlocks(0),
		"negative layers":    New(context.New(), TopologySelf).InnerLayers(-1),
		"no hidden dim":      New(context.New(), TopologySelf).HiddenDim(0),
		"zero normalization": New(context.New(), TopologySelf).Aggregation(AggregateSum, 0),
		"zero coords range":  New(context.New(), TopologySelf).Tanh(true, 0),
		"invalid topology":   New(context.New(), Topology(5)),
		"invalid recompute":  New(context.New(), TopologySelf).Recompute(Recompute(9)),
	} {
		_, err := builder.TryDone()
		require.Errorf(t, err, "configuration %q should fail", name)
	}
	badCtx := context.New()
	badCtx.SetParam(ParamAggregation, "max")
	require.Panics(t, func() { New(badCtx, TopologySelf) })
}

func TestWrongTopology(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, "TestWrongTopology")
	ctx := context.New()
	nodeMask := Const(g, [][]float32{{1, 1}})
	edges := CompleteGraphEdges(nodeMask)
	h, x := Ones(g, shapesF32(2, 4)), Ones(g, shapesF32(2, 3))
	fusion := New(ctx.In("fusion"), TopologyFusion).Done()
	require.Panics(t, func() { fusion.Self(h, x, FlattenNodeMask(nodeMask), edges) })
	self := New(ctx.In("self"), TopologySelf).Done()
	require.Panics(t, func() { self.Fusion(h, x, h, x, FlattenNodeMask(nodeMask), edges) })
	require.Panics(t, func() { self.Self(h, Ones(g, shapesF32(2, 2)), FlattenNodeMask(nodeMask), edges) })
}
