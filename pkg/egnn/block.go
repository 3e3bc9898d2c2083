// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Block is the repeating unit of a Network: it computes the edge geometry from the current coordinates, runs
// Config.InnerLayers GCLs to update the features, and then one CoordinateUpdate.
//
// Each block owns its variables, under its own context scope.
type Block struct {
	ctx         *context.Context
	config      *Config
	index       int
	recompute   bool
	coordsRange float64
}

// Index of the block in the Network.
func (b *Block) Index() int { return b.index }

// Scope of the block variables in the context.
func (b *Block) Scope() string { return b.ctx.Scope() }

// Recompute returns whether the block is marked for recomputation on the backward pass.
func (b *Block) Recompute() bool { return b.recompute }

// CoordsRange is the range of the coordinates update of this block, used when Config.Tanh is set.
func (b *Block) CoordsRange() float64 { return b.coordsRange }

// Call runs the block, updating the features h1 and coordinates x1 of the receiver nodes.
//
// For TopologyFusion, h2 and x2 are the read-only sender nodes. For TopologySelf they are ignored (may be nil)
// and the senders are the receivers themselves.
// initialDistances, if not nil, are the squared distances shaped `[numEdges, 1]` computed at the entry of the
// Network, used as an extra edge attribute.
func (b *Block) Call(h1, x1, h2, x2, nodeMask1 *Node, edges *Edges, initialDistances *Node) (*Node, *Node) {
	self := b.config.Topology == TopologySelf
	if self {
		x2 = x1
	}
	radial, direction := Geometry(x1, x2, edges, b.config.NormConstant)
	edgeAttr := b.config.edgeAttributes(radial, initialDistances)
	for i := range b.config.InnerLayers {
		if self {
			h2 = h1
		}
		h1 = GCL(b.ctx.Inf("gcl_%03d", i), b.config, h1, h2, edgeAttr, edges, nodeMask1)
	}
	if self {
		h2 = h1
	}
	x1 = CoordinateUpdate(b.ctx.In("coords"), b.config, h1, h2, x1, direction, edgeAttr, edges, nodeMask1, b.coordsRange)
	h1 = ApplyNodeMask(h1, nodeMask1)
	return h1, x1
}

// edgeAttributes concatenates the current and the initial distances (if given), optionally embedded
// with SinusoidalDistanceEmbedding.
func (c *Config) edgeAttributes(radial, initialDistances *Node) *Node {
	parts := []*Node{radial}
	if initialDistances != nil {
		parts = append(parts, initialDistances)
	}
	if c.SinusoidalEmbedding {
		for i, part := range parts {
			parts[i] = SinusoidalDistanceEmbedding(part)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return Concatenate(parts, -1)
}
