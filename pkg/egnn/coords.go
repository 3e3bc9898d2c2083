// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// CoordinateUpdate is the equivariant residual update of the receiver coordinates x1.
//
// For each edge a scalar is computed from `[h_receiver, h_sender, edgeAttr]` by three dense layers. The last one
// has a single output and no bias, and it is initialized with Xavier uniform with gain cfg.CoordsOutputGain.
// If cfg.Tanh is set the scalar is bounded to `tanh(scalar) * coordsRange`.
// The scalar multiplies the edge direction (see Geometry), the result is masked with the edge mask and aggregated
// per receiver with cfg.CoordsAggregation and cfg.CoordsNormalizationFactor, and added to x1.
// Padded receivers are zeroed with nodeMask.
//
// Since the only vector quantity is the direction, the output rotates and translates with the input coordinates.
func CoordinateUpdate(ctx *context.Context, cfg *Config, h1, h2, x1, direction, edgeAttr *Node, edges *Edges,
	nodeMask *Node, coordsRange float64) *Node {
	checkCoords(x1, edges.NumReceivers, "CoordinateUpdate(): x1")
	numEdges := edges.NumEdges()
	if direction.Rank() != 2 || direction.Shape().Dimensions[0] != numEdges || direction.Shape().Dimensions[1] != 3 {
		Panicf("CoordinateUpdate(): direction must be shaped [numEdges=%d, 3], got %s", numEdges, direction.Shape())
	}
	parts := []*Node{Gather(h1, edges.Receivers), Gather(h2, edges.Senders)}
	if edgeAttr != nil {
		parts = append(parts, edgeAttr)
	}
	x := Concatenate(parts, -1)
	x = denseActivation(ctx.In("dense_0"), cfg, x, cfg.HiddenDim)
	x = denseActivation(ctx.In("dense_1"), cfg, x, cfg.HiddenDim)
	outputCtx := ctx.In("output").WithInitializer(xavierUniform(ctx, cfg.CoordsOutputGain))
	scalar := layers.Dense(outputCtx, x, false, 1)
	if cfg.Tanh {
		scalar = MulScalar(Tanh(scalar), coordsRange)
	}
	translation := Mul(direction, scalar)
	translation = ApplyEdgeMask(translation, edges.Mask)
	aggregated := SegmentReduce(translation, edges.Receivers, edges.NumReceivers,
		cfg.CoordsAggregation, cfg.CoordsNormalizationFactor)
	return ApplyNodeMask(Add(x1, aggregated), nodeMask)
}

// xavierUniform returns an initializer sampling uniformly from `[-limit, limit]` with
// `limit = gain * sqrt(6 / (fanIn + fanOut))`, where fanOut is the last dimension of the variable.
func xavierUniform(ctx *context.Context, gain float64) func(g *Graph, shape shapes.Shape) *Node {
	return func(g *Graph, shape shapes.Shape) *Node {
		if shape.Rank() < 2 {
			Panicf("xavierUniform initializer requires a variable of rank >= 2, got %s", shape)
		}
		fanOut := shape.Dimensions[shape.Rank()-1]
		fanIn := shape.Size() / fanOut
		limit := gain * math.Sqrt(6.0/float64(fanIn+fanOut))
		uniform := ctx.RandomUniform(g, shape)
		return MulScalar(AddScalar(MulScalar(uniform, 2), -1), limit)
	}
}
