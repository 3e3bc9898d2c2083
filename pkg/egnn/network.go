// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/nanlogger"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
	"k8s.io/klog/v2"
)

// Config of a Network. It is created from the context hyperparameters by New, changed with the Builder options,
// and fixed once Builder.Done is called.
type Config struct {
	Topology    Topology
	NumBlocks   int
	InnerLayers int
	HiddenDim   int
	Activation  activations.Type

	// Attention enables the sigmoid gate on each edge message.
	Attention bool

	// Tanh bounds the coordinate update scalars to `tanh(x) * CoordsRange`, with CoordsRange divided by
	// NumBlocks for TopologySelf.
	Tanh        bool
	CoordsRange float64

	// CoordsOutputGain is the initialization gain of the last layer of the coordinate updates.
	CoordsOutputGain float64

	NormConstant        float64
	Aggregation         Aggregation
	NormalizationFactor float64

	// CoordsAggregation and CoordsNormalizationFactor are used to aggregate the coordinate updates.
	CoordsAggregation         Aggregation
	CoordsNormalizationFactor float64

	SinusoidalEmbedding bool
	Recompute           Recompute

	// ConditioningProjection adds a zero-initialized dense projection of the features output by
	// each block of a fusion Network, see Network.FusionOutputs.
	ConditioningProjection bool
}

// EdgeAttributesDim is the dimension of the edge attributes used by the blocks.
func (c *Config) EdgeAttributesDim() int {
	if c.SinusoidalEmbedding {
		return 2 * SinusoidsDim()
	}
	return 2
}

// blockCoordsRange is the coordinates range of each block.
func (c *Config) blockCoordsRange() float64 {
	if c.Topology == TopologyFusion {
		return c.CoordsRange
	}
	return c.CoordsRange / float64(c.NumBlocks)
}

// BlockHook is called after each block of a Network with the updated features and coordinates of the receiver
// nodes. It must not change the graph outputs: it is meant for instrumentation.
type BlockHook func(blockIdx int, h, x *Node)

// Builder of a Network, see New.
type Builder struct {
	ctx       *context.Context
	config    Config
	hooks     []BlockHook
	nanLogger *nanlogger.NanLogger
}

// New creates a Builder for a Network of equivariant blocks with the given topology.
//
// The configuration is read from the context hyperparameters (see Param* constants), and can be changed with
// the Builder options. Variables are created under ctx, one sub-scope per block ("block_000", "block_001", ...).
//
// Example:
//
//	network := egnn.New(ctx.In("egnn"), egnn.TopologySelf).NumBlocks(4).Attention(true).Done()
//	edges := egnn.CompleteGraphEdges(nodeMask)
//	h, x = network.Self(h, x, egnn.FlattenNodeMask(nodeMask), edges)
func New(ctx *context.Context, topology Topology) *Builder {
	b := &Builder{ctx: ctx}
	c := &b.config
	c.Topology = topology
	c.NumBlocks = context.GetParamOr(ctx, ParamNumBlocks, 3)
	c.InnerLayers = context.GetParamOr(ctx, ParamInnerLayers, 2)
	c.HiddenDim = context.GetParamOr(ctx, ParamHiddenDim, 64)
	c.Activation = activations.FromName(context.GetParamOr(ctx, activations.ParamActivation, "swish"))
	c.Attention = context.GetParamOr(ctx, ParamAttention, true)
	c.Tanh = context.GetParamOr(ctx, ParamTanh, false)
	c.CoordsRange = context.GetParamOr(ctx, ParamCoordsRange, 15.0)
	c.CoordsOutputGain = context.GetParamOr(ctx, ParamCoordsOutputGain, 0.001)
	c.NormConstant = context.GetParamOr(ctx, ParamNormConstant, 1.0)
	c.NormalizationFactor = context.GetParamOr(ctx, ParamNormalizationFactor, 100.0)
	c.SinusoidalEmbedding = context.GetParamOr(ctx, ParamSinusoidalEmbedding, false)
	c.ConditioningProjection = context.GetParamOr(ctx, ParamConditioningProjection, false)

	var err error
	aggregationName := context.GetParamOr(ctx, ParamAggregation, AggregateSum.String())
	c.Aggregation, err = ParseAggregation(aggregationName)
	if err != nil {
		Panicf("egnn.New(): hyperparameter %q: %v", ParamAggregation, err)
	}
	c.CoordsAggregation = c.Aggregation
	if name := context.GetParamOr(ctx, ParamCoordsAggregation, ""); name != "" {
		c.CoordsAggregation, err = ParseAggregation(name)
		if err != nil {
			Panicf("egnn.New(): hyperparameter %q: %v", ParamCoordsAggregation, err)
		}
	}
	c.CoordsNormalizationFactor = c.NormalizationFactor
	if factor := context.GetParamOr(ctx, ParamCoordsNormalizationFactor, 0.0); factor != 0 {
		c.CoordsNormalizationFactor = factor
	}
	c.Recompute, err = ParseRecompute(context.GetParamOr(ctx, ParamRecompute, RecomputeNone.String()))
	if err != nil {
		Panicf("egnn.New(): hyperparameter %q: %v", ParamRecompute, err)
	}
	if context.GetParamOr(ctx, ParamNanLogger, false) {
		b.nanLogger = nanlogger.New()
	}
	return b
}

// NumBlocks sets the number of equivariant blocks. Default is given by ParamNumBlocks.
func (b *Builder) NumBlocks(n int) *Builder {
	b.config.NumBlocks = n
	return b
}

// InnerLayers sets the number of GCLs per block. Default is given by ParamInnerLayers.
func (b *Builder) InnerLayers(n int) *Builder {
	b.config.InnerLayers = n
	return b
}

// HiddenDim sets the dimension of the messages and hidden layers. Default is given by ParamHiddenDim.
func (b *Builder) HiddenDim(dim int) *Builder {
	b.config.HiddenDim = dim
	return b
}

// Activation sets the activation used after the hidden dense layers. Default is given by
// activations.ParamActivation, or swish if not set.
func (b *Builder) Activation(activation activations.Type) *Builder {
	b.config.Activation = activation
	return b
}

// Attention enables or disables the per-edge attention gate. Default is given by ParamAttention.
func (b *Builder) Attention(enabled bool) *Builder {
	b.config.Attention = enabled
	return b
}

// Tanh bounds the coordinate updates. For TopologySelf the total range coordsRange is split evenly among the
// blocks, for TopologyFusion each block uses the whole coordsRange.
// Defaults are given by ParamTanh and ParamCoordsRange.
func (b *Builder) Tanh(enabled bool, coordsRange float64) *Builder {
	b.config.Tanh = enabled
	b.config.CoordsRange = coordsRange
	return b
}

// CoordsOutputGain sets the initialization gain of the last layer of the coordinate updates.
// Default is given by ParamCoordsOutputGain.
func (b *Builder) CoordsOutputGain(gain float64) *Builder {
	b.config.CoordsOutputGain = gain
	return b
}

// NormConstant sets the constant added to the displacement norm before normalizing the direction.
// Default is given by ParamNormConstant.
func (b *Builder) NormConstant(value float64) *Builder {
	b.config.NormConstant = value
	return b
}

// Aggregation sets how messages are aggregated, and the normalization factor used by AggregateSum.
// It also sets the aggregation of the coordinate updates, unless CoordsAggregation is called afterwards.
func (b *Builder) Aggregation(aggregation Aggregation, normalizationFactor float64) *Builder {
	b.config.Aggregation = aggregation
	b.config.NormalizationFactor = normalizationFactor
	b.config.CoordsAggregation = aggregation
	b.config.CoordsNormalizationFactor = normalizationFactor
	return b
}

// CoordsAggregation sets the aggregation of the coordinate updates, independently of the messages aggregation.
func (b *Builder) CoordsAggregation(aggregation Aggregation, normalizationFactor float64) *Builder {
	b.config.CoordsAggregation = aggregation
	b.config.CoordsNormalizationFactor = normalizationFactor
	return b
}

// SinusoidalEmbedding enables the sinusoidal embedding of the distances used as edge attributes.
func (b *Builder) SinusoidalEmbedding(enabled bool) *Builder {
	b.config.SinusoidalEmbedding = enabled
	return b
}

// Recompute selects which blocks are marked for recomputation on the backward pass.
func (b *Builder) Recompute(strategy Recompute) *Builder {
	b.config.Recompute = strategy
	return b
}

// ConditioningProjection enables the zero-initialized projection of the per-block features returned by
// Network.FusionOutputs.
func (b *Builder) ConditioningProjection(enabled bool) *Builder {
	b.config.ConditioningProjection = enabled
	return b
}

// BlockHook adds a hook called after each block with its outputs. It can be called more than once.
func (b *Builder) BlockHook(hook BlockHook) *Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

// NanLogger sets a logger that traces the first NaN among the outputs of each block.
// If ParamNanLogger is set, one is created by default.
func (b *Builder) NanLogger(l *nanlogger.NanLogger) *Builder {
	b.nanLogger = l
	return b
}

// Done validates the configuration and creates the Network with its blocks.
// It panics on invalid configurations, see TryDone for a version that returns an error.
func (b *Builder) Done() *Network {
	c := b.config
	if !c.Topology.IsATopology() {
		Panicf("egnn: invalid topology %s", c.Topology)
	}
	if c.NumBlocks < 1 {
		Panicf("egnn: number of blocks must be >= 1, got %d", c.NumBlocks)
	}
	if c.InnerLayers < 0 {
		Panicf("egnn: number of inner layers must be >= 0, got %d", c.InnerLayers)
	}
	if c.HiddenDim < 1 {
		Panicf("egnn: hidden dimension must be >= 1, got %d", c.HiddenDim)
	}
	for _, agg := range []struct {
		aggregation Aggregation
		factor      float64
	}{{c.Aggregation, c.NormalizationFactor}, {c.CoordsAggregation, c.CoordsNormalizationFactor}} {
		if !agg.aggregation.IsAAggregation() {
			Panicf("egnn: invalid aggregation %s, valid values are %q", agg.aggregation, AggregationStrings())
		}
		if agg.aggregation == AggregateSum && agg.factor <= 0 {
			Panicf("egnn: normalization factor must be > 0 for %q aggregation, got %g", agg.aggregation, agg.factor)
		}
	}
	if !c.Recompute.IsARecompute() {
		Panicf("egnn: invalid recompute strategy %s", c.Recompute)
	}
	if c.Tanh && c.CoordsRange <= 0 {
		Panicf("egnn: coordinates range must be > 0 when tanh is enabled, got %g", c.CoordsRange)
	}

	net := &Network{
		ctx:       b.ctx,
		config:    c,
		hooks:     b.hooks,
		nanLogger: b.nanLogger,
	}
	coordsRange := c.blockCoordsRange()
	for i, recompute := range c.Recompute.Blocks(c.NumBlocks) {
		net.blocks = append(net.blocks, &Block{
			ctx:         b.ctx.Inf("block_%03d", i),
			config:      &net.config,
			index:       i,
			recompute:   recompute,
			coordsRange: coordsRange,
		})
	}
	if klog.V(1).Enabled() {
		for _, block := range net.blocks {
			klog.Infof("egnn: %s (%s) recompute=%v coordsRange=%g", block.Scope(), c.Topology, block.recompute, block.coordsRange)
		}
	}
	return net
}

// TryDone is like Done, but returns an error instead of panicking.
func (b *Builder) TryDone() (network *Network, err error) {
	err = exceptions.TryCatch[error](func() { network = b.Done() })
	return
}

// Network is an explicit ordered list of equivariant blocks, see New.
type Network struct {
	ctx       *context.Context
	config    Config
	blocks    []*Block
	hooks     []BlockHook
	nanLogger *nanlogger.NanLogger
}

// BlockOutput holds the outputs of one block of a fusion Network.
type BlockOutput struct {
	// H and X are the features and coordinates of the updated nodes, after the block.
	H, X *Node

	// Conditioning is the zero-initialized projection of H, if Config.ConditioningProjection is set.
	Conditioning *Node
}

// Config returns a copy of the network configuration.
func (net *Network) Config() Config { return net.config }

// Blocks returns the ordered blocks of the network.
func (net *Network) Blocks() []*Block { return net.blocks }

// NanLogger used by the network, or nil. Attach it to the executor to enable it.
func (net *Network) NanLogger() *nanlogger.NanLogger { return net.nanLogger }

// Self runs all blocks of a TopologySelf network.
//
// Args:
//   - h: node features shaped `[batchSize*numNodes, featureDim]`.
//   - x: node coordinates shaped `[batchSize*numNodes, 3]`.
//   - nodeMask: shaped `[batchSize*numNodes, 1]`, see FlattenNodeMask.
//   - edges: usually CompleteGraphEdges.
//
// It returns the updated features and coordinates, with padded nodes zeroed.
func (net *Network) Self(h, x, nodeMask *Node, edges *Edges) (*Node, *Node) {
	if net.config.Topology != TopologySelf {
		Panicf("egnn: Network.Self() called on a network with topology %s", net.config.Topology)
	}
	if edges.NumReceivers != edges.NumSenders {
		Panicf("egnn: Network.Self() requires edges between the same node set, got %d receivers and %d senders",
			edges.NumReceivers, edges.NumSenders)
	}
	checkFeatures(h, edges.NumReceivers, "Network.Self(): h")
	checkCoords(x, edges.NumReceivers, "Network.Self(): x")
	initialDistances, _ := Geometry(x, x, edges, net.config.NormConstant)
	for _, block := range net.blocks {
		h, x = block.Call(h, x, nil, nil, nodeMask, edges, initialDistances)
		net.afterBlock(block, h, x)
	}
	return h, x
}

// Fusion runs all blocks of a TopologyFusion network: the receiver nodes (h1, x1) are updated using the sender
// nodes (h2, x2) as context.
//
// Args:
//   - h1, x1: features `[edges.NumReceivers, featureDim]` and coordinates `[edges.NumReceivers, 3]` updated.
//   - h2, x2: features `[edges.NumSenders, featureDim2]` and coordinates `[edges.NumSenders, 3]`, read-only.
//   - nodeMask1: mask of the receiver nodes, shaped `[edges.NumReceivers, 1]`.
//   - edges: usually BipartiteEdges.
//
// It returns the updated (h1, x1) and the unchanged (h2, x2): the very same nodes given as input.
func (net *Network) Fusion(h1, x1, h2, x2, nodeMask1 *Node, edges *Edges) (h1Out, x1Out, h2Out, x2Out *Node) {
	outputs := net.FusionOutputs(h1, x1, h2, x2, nodeMask1, edges)
	last := outputs[len(outputs)-1]
	return last.H, last.X, h2, x2
}

// FusionOutputs runs all blocks of a TopologyFusion network, like Fusion, and returns the outputs of each
// block, in order. These can be consumed as per-block conditioning by another model.
func (net *Network) FusionOutputs(h1, x1, h2, x2, nodeMask1 *Node, edges *Edges) []BlockOutput {
	if net.config.Topology != TopologyFusion {
		Panicf("egnn: Network.Fusion() called on a network with topology %s", net.config.Topology)
	}
	checkFeatures(h1, edges.NumReceivers, "Network.Fusion(): h1")
	checkCoords(x1, edges.NumReceivers, "Network.Fusion(): x1")
	checkFeatures(h2, edges.NumSenders, "Network.Fusion(): h2")
	checkCoords(x2, edges.NumSenders, "Network.Fusion(): x2")
	initialDistances, _ := Geometry(x1, x2, edges, net.config.NormConstant)
	outputs := make([]BlockOutput, 0, len(net.blocks))
	for _, block := range net.blocks {
		h1, x1 = block.Call(h1, x1, h2, x2, nodeMask1, edges, initialDistances)
		net.afterBlock(block, h1, x1)
		output := BlockOutput{H: h1, X: x1}
		if net.config.ConditioningProjection {
			output.Conditioning = zeroProjection(block.ctx.In("conditioning"), h1)
		}
		outputs = append(outputs, output)
	}
	return outputs
}

func (net *Network) afterBlock(block *Block, h, x *Node) {
	if net.nanLogger != nil {
		scope := fmt.Sprintf("egnn/block_%03d", block.index)
		net.nanLogger.TraceFirstNaN(h, scope, "h")
		net.nanLogger.TraceFirstNaN(x, scope, "x")
	}
	for _, hook := range net.hooks {
		hook(block.index, h, x)
	}
}

// zeroProjection is a dense layer initialized with zeros, so its output starts at zero and the
// conditioning it feeds is initially a no-op.
func zeroProjection(ctx *context.Context, h *Node) *Node {
	dim := h.Shape().Dimensions[h.Rank()-1]
	return layers.Dense(ctx.WithInitializer(initializers.Zero), h, true, dim)
}
