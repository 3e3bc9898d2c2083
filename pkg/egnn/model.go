// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// ParamOutputDim is the dimension of the output features of the models. If 0 it is the same as the input
// features dimension.
// Default is 0.
const ParamOutputDim = "egnn_output_dim"

// Model is an EGNN with input and output embeddings of the node features, used as encoder, decoder or
// denoiser backbone of generative models.
//
// Inputs are batched and padded: features `[batchSize, numNodes, featureDim]`, positions
// `[batchSize, numNodes, 3]` and node masks `[batchSize, numNodes]`.
type Model struct {
	ctx   *context.Context
	network *Network
}

// NewModel creates a Model using the configuration in the context (see Param* constants) under the "egnn"
// scope. Extra hooks are passed to the Network.
func NewModel(ctx *context.Context, topology Topology, hooks ...BlockHook) *Model {
	builder := New(ctx.In("egnn"), topology)
	for _, hook := range hooks {
		builder.BlockHook(hook)
	}
	return &Model{ctx: ctx, network: builder.Done()}
}

// NewModelFromNetwork creates a Model around a Network already configured, for instance with a NanLogger
// created ahead of the executor. The embeddings are created in ctx, as in NewModel.
func NewModelFromNetwork(ctx *context.Context, network *Network) *Model {
	return &Model{ctx: ctx, network: network}
}

// Network used by the model.
func (m *Model) Network() *Network { return m.network }

func (m *Model) embed(scope string, features *Node) *Node {
	return layers.Dense(m.ctx.In(scope), FlattenNodes(features), true, m.network.config.HiddenDim)
}

func (m *Model) outputDim(features *Node) int {
	dim := context.GetParamOr(m.ctx, ParamOutputDim, 0)
	if dim <= 0 {
		dim = features.Shape().Dimensions[2]
	}
	return dim
}

// Self runs a TopologySelf model over a complete graph of each batch element.
//
// It returns the output features `[batchSize, numNodes, outputDim]` and the coordinates `[batchSize, numNodes, 3]`,
// with padded nodes zeroed.
func (m *Model) Self(features, positions, nodeMask *Node) (*Node, *Node) {
	batchSize, numNodes := maskDims(nodeMask, "Model.Self(): nodeMask")
	checkBatched(features, batchSize, numNodes, "Model.Self(): features")
	checkBatched(positions, batchSize, numNodes, "Model.Self(): positions")
	flatMask := FlattenNodeMask(nodeMask)
	edges := CompleteGraphEdges(nodeMask)
	h := ApplyNodeMask(m.embed("embedding", features), flatMask)
	h, x := m.network.Self(h, FlattenNodes(positions), flatMask, edges)
	h = layers.Dense(m.ctx.In("embedding_out"), h, true, m.outputDim(features))
	h = ApplyNodeMask(h, flatMask)
	return UnflattenNodes(h, batchSize), UnflattenNodes(x, batchSize)
}

// Fusion runs a TopologyFusion model, updating the first point set using the second one as context.
// The features of both sets are embedded with separate layers.
//
// It returns the output features and coordinates of the first set, and the per-block outputs of the Network
// (flattened, as returned by Network.FusionOutputs).
func (m *Model) Fusion(features1, positions1, nodeMask1, features2, positions2, nodeMask2 *Node) (h1, x1 *Node, blocks []BlockOutput) {
	batchSize, n1 := maskDims(nodeMask1, "Model.Fusion(): nodeMask1")
	_, n2 := maskDims(nodeMask2, "Model.Fusion(): nodeMask2")
	checkBatched(features1, batchSize, n1, "Model.Fusion(): features1")
	checkBatched(positions1, batchSize, n1, "Model.Fusion(): positions1")
	checkBatched(features2, batchSize, n2, "Model.Fusion(): features2")
	checkBatched(positions2, batchSize, n2, "Model.Fusion(): positions2")
	flatMask1 := FlattenNodeMask(nodeMask1)
	flatMask2 := FlattenNodeMask(nodeMask2)
	edges := BipartiteEdges(nodeMask1, nodeMask2)
	h1 = ApplyNodeMask(m.embed("embedding", features1), flatMask1)
	h2 := ApplyNodeMask(m.embed("embedding_context", features2), flatMask2)
	blocks = m.network.FusionOutputs(h1, FlattenNodes(positions1), h2, FlattenNodes(positions2), flatMask1, edges)
	last := blocks[len(blocks)-1]
	h1 = layers.Dense(m.ctx.In("embedding_out"), last.H, true, m.outputDim(features1))
	h1 = ApplyNodeMask(h1, flatMask1)
	return UnflattenNodes(h1, batchSize), UnflattenNodes(last.X, batchSize), blocks
}

// Dynamics runs a TopologySelf model as a denoiser: it returns the output features and the velocity, that is,
// the coordinates displacement `x_out - x_in` with its center of mass removed (using the node mask), so it is
// translation invariant.
//
// conditioning, if not nil, is shaped `[batchSize, numNodes, conditioningDim]` and is concatenated to the features.
func (m *Model) Dynamics(features, positions, nodeMask, conditioning *Node) (h, velocity *Node) {
	inputFeatures := features
	if conditioning != nil {
		inputFeatures = Concatenate([]*Node{features, conditioning}, -1)
	}
	h, x := m.Self(inputFeatures, positions, nodeMask)
	if conditioning != nil && context.GetParamOr(m.ctx, ParamOutputDim, 0) <= 0 {
		// Drop the outputs corresponding to the conditioning.
		h = SliceAxis(h, 2, AxisRange(0, features.Shape().Dimensions[2]))
	}
	return h, RemoveMeanWithMask(Sub(x, positions), nodeMask)
}

// RemoveMeanWithMask subtracts from x, shaped `[batchSize, numNodes, 3]`, its mean over the real nodes of each
// batch element (given by nodeMask shaped `[batchSize, numNodes]`). Padded nodes are left at zero.
func RemoveMeanWithMask(x, nodeMask *Node) *Node {
	batchSize, numNodes := maskDims(nodeMask, "RemoveMeanWithMask(): nodeMask")
	checkBatched(x, batchSize, numNodes, "RemoveMeanWithMask(): x")
	mask := InsertAxes(ConvertDType(nodeMask, x.DType()), -1) // [batchSize, numNodes, 1]
	x = Mul(x, mask)
	count := MaxScalar(ReduceAndKeep(mask, ReduceSum, 1), 1) // [batchSize, 1, 1]
	mean := Div(ReduceAndKeep(x, ReduceSum, 1), count)       // [batchSize, 1, dim]
	return Mul(Sub(x, mean), mask)
}

func checkBatched(x *Node, batchSize, numNodes int, name string) {
	if x.Rank() != 3 || x.Shape().Dimensions[0] != batchSize || x.Shape().Dimensions[1] != numNodes {
		Panicf("%s must be shaped [batchSize=%d, numNodes=%d, dim], got %s", name, batchSize, numNodes, x.Shape())
	}
}
