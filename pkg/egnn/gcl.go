// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// denseActivation is a dense layer with bias followed by the configured activation.
func denseActivation(ctx *context.Context, cfg *Config, x *Node, dim int) *Node {
	return activations.Apply(cfg.Activation, layers.Dense(ctx, x, true, dim))
}

// EdgeMessages computes the message sent over each edge from the concatenation of the receiver features,
// the sender features and the edge attributes, using two dense layers (each followed by the activation).
//
// If cfg.Attention is set, the message is scaled by a per-edge gate `sigmoid(Dense(message))`, independently
// for each edge (it is not normalized over the neighborhood).
// Finally, messages are multiplied by the edgeMask (if not nil), so masked edges contribute exactly zero.
//
// It returns the masked messages shaped `[numEdges, cfg.HiddenDim]`, and the raw messages (before attention and
// masking).
func EdgeMessages(ctx *context.Context, cfg *Config, hReceivers, hSenders, edgeAttr, edgeMask *Node) (messages, raw *Node) {
	parts := []*Node{hReceivers, hSenders}
	if edgeAttr != nil {
		parts = append(parts, edgeAttr)
	}
	input := Concatenate(parts, -1)
	raw = denseActivation(ctx.In("dense_0"), cfg, input, cfg.HiddenDim)
	raw = denseActivation(ctx.In("dense_1"), cfg, raw, cfg.HiddenDim)
	messages = raw
	if cfg.Attention {
		attention := Sigmoid(layers.Dense(ctx.In("attention"), raw, true, 1))
		messages = Mul(messages, attention)
	}
	messages = ApplyEdgeMask(messages, edgeMask)
	return
}

// NodeUpdate is the residual update of the node features h, shaped `[numNodes, dim]`, given the aggregated
// incoming messages: `h + Dense(activation(Dense([h, aggregated])))`.
func NodeUpdate(ctx *context.Context, cfg *Config, h, aggregated *Node) *Node {
	dim := h.Shape().Dimensions[h.Rank()-1]
	delta := denseActivation(ctx.In("dense_0"), cfg, Concatenate([]*Node{h, aggregated}, -1), cfg.HiddenDim)
	delta = layers.Dense(ctx.In("dense_1"), delta, true, dim)
	return Add(h, delta)
}

// GCL is one graph convolution layer: it computes the EdgeMessages, aggregates them per receiver node with
// SegmentReduce, and updates the receiver features with NodeUpdate. Padded receivers are zeroed with nodeMask.
//
// Args:
//   - h1: features of the receiver nodes, shaped `[edges.NumReceivers, dim]`.
//   - h2: features of the sender nodes, shaped `[edges.NumSenders, dim2]`. For TopologySelf it is h1.
//   - edgeAttr: invariant edge attributes shaped `[numEdges, edgeDim]`, or nil.
//   - nodeMask: mask of the receiver nodes, shaped `[edges.NumReceivers, 1]`, or nil.
//
// It only consumes invariant quantities, so its output is invariant to rotations and translations.
func GCL(ctx *context.Context, cfg *Config, h1, h2, edgeAttr *Node, edges *Edges, nodeMask *Node) *Node {
	checkFeatures(h1, edges.NumReceivers, "GCL(): h1")
	checkFeatures(h2, edges.NumSenders, "GCL(): h2")
	hReceivers := Gather(h1, edges.Receivers)
	hSenders := Gather(h2, edges.Senders)
	messages, _ := EdgeMessages(ctx.In("edge"), cfg, hReceivers, hSenders, edgeAttr, edges.Mask)
	aggregated := SegmentReduce(messages, edges.Receivers, edges.NumReceivers, cfg.Aggregation, cfg.NormalizationFactor)
	h1 = NodeUpdate(ctx.In("node"), cfg, h1, aggregated)
	return ApplyNodeMask(h1, nodeMask)
}

func checkFeatures(h *Node, numNodes int, name string) {
	if h.Rank() != 2 || h.Shape().Dimensions[0] != numNodes {
		Panicf("%s must be shaped [%d, featureDim], got %s", name, numNodes, h.Shape())
	}
}
