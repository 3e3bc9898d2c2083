// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math/rand/v2"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

func TestModelSelf(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	rng := rand.New(rand.NewPCG(11, 0))
	features := randomValues3D(rng, 2, 5, 6, 1)
	positions := randomValues3D(rng, 2, 5, 3, 1)
	rotation := randomRotation(rng)
	translation := []float64{1, 2, 3}
	mask := [][]float64{{1, 1, 1, 1, 0}, {1, 1, 1, 0, 0}}

	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamNumBlocks:           2,
		ParamHiddenDim:           16,
		ParamOutputDim:           4,
		ParamCoordsOutputGain:    1.0,
		ParamTanh:                true,
		ParamNormalizationFactor: 1.0,
	})
	var model *Model
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		ctx = ctx.Checked(false)
		model = NewModel(ctx, TopologySelf)
		nodeMask := Const(g, mask)
		f, x := Const(g, features), Const(g, positions)
		h1, x1 := model.Self(f, x, nodeMask)
		require.NoError(t, h1.Shape().CheckDims(2, 5, 4))
		require.NoError(t, x1.Shape().CheckDims(2, 5, 3))
		h2, x2 := model.Self(f, rigidTransform(x, rotation, translation), nodeMask)
		x1T := Mul(rigidTransform(x1, rotation, translation), InsertAxes(nodeMask, -1))
		padded := func(v *Node) *Node {
			return ReduceAllMax(Abs(Mul(v, InsertAxes(OneMinus(nodeMask), -1))))
		}
		return []*Node{maxAbsDiff(h1, h2), maxAbsDiff(x1T, x2), padded(h1), padded(x1)}
	})
	require.Less(t, tensors.ToScalar[float64](outputs[0]), 1e-8, "features not invariant")
	require.Less(t, tensors.ToScalar[float64](outputs[1]), 1e-8, "coordinates not equivariant")
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[2]), "padded features")
	require.Equal(t, 0.0, tensors.ToScalar[float64](outputs[3]), "padded coordinates")
	require.Len(t, model.Network().Blocks(), 2)
	require.Greater(t, ctx.NumParameters(), 0)
}

func TestModelFusion(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	rng := rand.New(rand.NewPCG(13, 0))
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamNumBlocks:              2,
		ParamHiddenDim:              8,
		ParamConditioningProjection: true,
	})
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		model := NewModel(ctx, TopologyFusion)
		pocketMask := Const(g, [][]float32{{1, 1}})
		ligandMask := Const(g, [][]float32{{1, 1, 0}})
		pocketFeatures := ConvertDType(Const(g, randomValues3D(rng, 1, 2, 5, 1)), pocketMask.DType())
		pocketPositions := ConvertDType(Const(g, randomValues3D(rng, 1, 2, 3, 1)), pocketMask.DType())
		ligandFeatures := ConvertDType(Const(g, randomValues3D(rng, 1, 3, 7, 1)), pocketMask.DType())
		ligandPositions := ConvertDType(Const(g, randomValues3D(rng, 1, 3, 3, 1)), pocketMask.DType())
		h, x, blocks := model.Fusion(pocketFeatures, pocketPositions, pocketMask, ligandFeatures, ligandPositions, ligandMask)
		require.NoError(t, h.Shape().CheckDims(1, 2, 5))
		require.NoError(t, x.Shape().CheckDims(1, 2, 3))
		require.Len(t, blocks, 2)
		return []*Node{ReduceAllMax(Abs(blocks[0].Conditioning)), ReduceAllMax(Abs(blocks[1].Conditioning))}
	})
	for _, output := range outputs {
		require.Equal(t, float32(0), tensors.ToScalar[float32](output))
	}
	require.Greater(t, ctx.NumParameters(), 0)
}

func TestModelDynamics(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	rng := rand.New(rand.NewPCG(17, 0))
	features := randomValues3D(rng, 2, 4, 3, 1)
	conditioning := randomValues3D(rng, 2, 4, 2, 1)
	positions := randomValues3D(rng, 2, 4, 3, 1)
	mask := [][]float64{{1, 1, 1, 0}, {1, 1, 0, 0}}

	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{ParamNumBlocks: 1, ParamHiddenDim: 8, ParamCoordsOutputGain: 1.0})
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		model := NewModel(ctx, TopologySelf)
		nodeMask := Const(g, mask)
		h, velocity := model.Dynamics(Const(g, features), Const(g, positions), nodeMask, Const(g, conditioning))
		require.NoError(t, h.Shape().CheckDims(2, 4, 3))
		require.NoError(t, velocity.Shape().CheckDims(2, 4, 3))
		return []*Node{velocity}
	})
	velocity := outputs[0].Value().([][][]float64)
	for b, molecule := range velocity {
		var sum [3]float64
		for i, v := range molecule {
			if mask[b][i] == 0 {
				require.Equal(t, []float64{0, 0, 0}, v, "padded velocity")
				continue
			}
			for axis := range sum {
				sum[axis] += v[axis]
			}
		}
		for axis := range sum {
			require.InDelta(t, 0.0, sum[axis], 1e-9, "velocity center of mass of molecule %d", b)
		}
	}
}

func TestRemoveMeanWithMask(t *testing.T) {
	graphtest.RunTestGraphFn(t, "RemoveMeanWithMask", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, [][][]float32{
			{{1, 0, 0}, {3, 2, 0}, {100, 100, 100}},
			{{5, 5, 5}, {0, 0, 0}, {0, 0, 0}},
		})
		mask := Const(g, [][]float32{{1, 1, 0}, {1, 0, 0}})
		inputs = []*Node{x, mask}
		outputs = []*Node{RemoveMeanWithMask(x, mask)}
		return
	}, []any{
		[][][]float32{
			{{-1, -1, 0}, {1, 1, 0}, {0, 0, 0}},
			{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}},
		},
	}, 1e-6)
}
