// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package egnn implements E(3)-equivariant graph neural network (EGNN) layers for batched, padded point sets,
// such as molecules represented by atom features and 3D coordinates.
//
// The building blocks, leaf first:
//
//   - SegmentReduce: aggregates per-edge messages into per-node values (sum or mean).
//   - Geometry: squared distances and normalized displacement directions per edge.
//   - EdgeMessages / NodeUpdate / GCL: invariant feature updates, with an optional sigmoid attention gate.
//   - CoordinateUpdate: equivariant residual update of the coordinates.
//   - Block and Network: the repeating unit and the ordered collection of blocks.
//
// Two topologies are supported: TopologySelf, where one point set interacts with itself over a complete graph
// (self-loops masked out), and TopologyFusion, where a point set is updated using a second, read-only, point set
// through a complete bipartite graph and a joint edge mask.
//
// Node-level tensors are flattened over the batch: features are shaped `[batchSize*numNodes, featureDim]`,
// coordinates `[batchSize*numNodes, 3]` and node masks `[batchSize*numNodes, 1]`. Edge indices address these
// flattened arrays, see Edges.
//
// The model is configured with hyperparameters in the context (see the Param* constants), or with the
// options of the Builder returned by New.
package egnn

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

const (
	// ParamNumBlocks is the number of equivariant blocks in a Network.
	// Default is 3.
	ParamNumBlocks = "egnn_num_blocks"

	// ParamInnerLayers is the number of GCL (graph convolution layers) run in each block, before the coordinates
	// are updated.
	// Default is 2.
	ParamInnerLayers = "egnn_inner_layers"

	// ParamHiddenDim is the dimension of the node features and of the messages.
	// Default is 64.
	ParamHiddenDim = "egnn_hidden_dim"

	// ParamAttention enables the per-edge sigmoid attention gate on the messages.
	// Default is true.
	ParamAttention = "egnn_attention"

	// ParamTanh bounds the coordinate update scalar with `tanh(x) * coordsRange`.
	// Default is false.
	ParamTanh = "egnn_tanh"

	// ParamCoordsRange is the coordinates range used when ParamTanh is set. Each block of a self network
	// uses `coordsRange / numBlocks`, each block of a fusion network uses the whole `coordsRange`.
	// Default is 15.
	ParamCoordsRange = "egnn_coords_range"

	// ParamCoordsOutputGain is the gain of the Xavier uniform initialization of the last layer of the
	// coordinate update. Small values make the initial coordinate updates close to zero.
	// Default is 0.001.
	ParamCoordsOutputGain = "egnn_coords_output_gain"

	// ParamNormConstant is added to the norm of the displacement before normalizing it.
	// Default is 1.
	ParamNormConstant = "egnn_norm_constant"

	// ParamAggregation is how messages are aggregated per node: "sum" or "mean".
	// Default is "sum".
	ParamAggregation = "egnn_aggregation"

	// ParamNormalizationFactor divides the aggregated messages when ParamAggregation is "sum".
	// Default is 100.
	ParamNormalizationFactor = "egnn_normalization_factor"

	// ParamCoordsAggregation is the aggregation used by the coordinate update. If empty it uses ParamAggregation.
	// Default is "".
	ParamCoordsAggregation = "egnn_coords_aggregation"

	// ParamCoordsNormalizationFactor is the normalization factor of the coordinate update. If 0 it uses
	// ParamNormalizationFactor.
	// Default is 0.
	ParamCoordsNormalizationFactor = "egnn_coords_normalization_factor"

	// ParamSinusoidalEmbedding replaces the raw squared distances on the edges by a sinusoidal embedding of
	// the distances.
	// Default is false.
	ParamSinusoidalEmbedding = "egnn_sin_embedding"

	// ParamRecompute selects which blocks are marked for recomputation on the backward pass:
	// "none", "all" or "sqrt".
	// Default is "none".
	ParamRecompute = "egnn_recompute"

	// ParamConditioningProjection adds a zero-initialized projection to the per-block outputs of a fusion Network.
	// Default is false.
	ParamConditioningProjection = "egnn_conditioning_projection"

	// ParamNanLogger enables tracing of the first NaN in the intermediary values of the Network.
	// Default is false.
	ParamNanLogger = "egnn_nan_logger"
)

// CreateDefaultContext returns a context with all the EGNN hyperparameters set to their defaults.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamNumBlocks:                 3,
		ParamInnerLayers:               2,
		ParamHiddenDim:                 64,
		ParamAttention:                 true,
		ParamTanh:                      false,
		ParamCoordsRange:               15.0,
		ParamCoordsOutputGain:          0.001,
		ParamNormConstant:              1.0,
		ParamAggregation:               AggregateSum.String(),
		ParamNormalizationFactor:       100.0,
		ParamCoordsAggregation:         "",
		ParamCoordsNormalizationFactor: 0.0,
		ParamSinusoidalEmbedding:       false,
		ParamRecompute:                 RecomputeNone.String(),
		ParamConditioningProjection:    false,
		ParamNanLogger:                 false,
		activations.ParamActivation:    "swish",

		// Model (input/output embeddings) parameters.
		ParamOutputDim: 0,
	})
	return ctx
}
