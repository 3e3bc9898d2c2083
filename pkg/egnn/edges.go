// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// Edges of a batch of graphs.
//
// Indices address the batch-flattened node arrays: receivers index the nodes being updated (shaped
// `[batchSize*numReceiverNodes, ...]`) and senders index the nodes sending the messages.
// For TopologySelf both refer to the same node set.
type Edges struct {
	// Receivers holds the index of the node updated by each edge, shaped `[numEdges, 1]`.
	Receivers *Node

	// Senders holds the index of the node sending each message, shaped `[numEdges, 1]`.
	Senders *Node

	// Mask is shaped `[numEdges, 1]` and multiplies every edge level quantity before aggregation.
	// If nil, all edges are valid.
	Mask *Node

	// NumReceivers and NumSenders are the sizes of the batch-flattened node arrays.
	NumReceivers, NumSenders int
}

// NewEdges creates Edges from precomputed indices, typically from a data collator.
//
// The receivers and senders must be integer tensors shaped `[numEdges]` or `[numEdges, 1]`, and mask (optional)
// must be shaped `[numEdges]` or `[numEdges, 1]`. It panics if the shapes are inconsistent.
func NewEdges(receivers, senders, mask *Node, numReceivers, numSenders int) *Edges {
	if receivers.Rank() == 0 {
		Panicf("NewEdges(): receivers must be shaped [numEdges] or [numEdges, 1], got a scalar")
	}
	numEdges := receivers.Shape().Dimensions[0]
	e := &Edges{
		Receivers:    edgeIndices(receivers, numEdges, "NewEdges(): receivers"),
		Senders:      edgeIndices(senders, numEdges, "NewEdges(): senders"),
		NumReceivers: numReceivers,
		NumSenders:   numSenders,
	}
	if numReceivers <= 0 || numSenders <= 0 {
		Panicf("NewEdges(): numReceivers (%d) and numSenders (%d) must be > 0", numReceivers, numSenders)
	}
	if mask != nil {
		if mask.Rank() == 1 {
			mask = InsertAxes(mask, -1)
		}
		if mask.Rank() != 2 || mask.Shape().Dimensions[0] != numEdges || mask.Shape().Dimensions[1] != 1 {
			Panicf("NewEdges(): mask must be shaped [numEdges=%d, 1], got %s", numEdges, mask.Shape())
		}
		e.Mask = mask
	}
	return e
}

// NumEdges returns the total number of edges, over the whole batch.
func (e *Edges) NumEdges() int {
	return e.Receivers.Shape().Dimensions[0]
}

// BipartiteIndices returns the edges of batchSize complete bipartite graphs, connecting every one of numReceivers
// nodes to every one of numSenders nodes.
//
// Edges are ordered by batch element, then receiver, then sender: edge `(b*numReceivers + i)*numSenders + j`
// connects receiver `i + b*numReceivers` to sender `j + b*numSenders`.
func BipartiteIndices(batchSize, numReceivers, numSenders int) (receivers, senders []int32) {
	numEdges := batchSize * numReceivers * numSenders
	receivers = make([]int32, 0, numEdges)
	senders = make([]int32, 0, numEdges)
	for b := range batchSize {
		for i := range numReceivers {
			for j := range numSenders {
				receivers = append(receivers, int32(i+b*numReceivers))
				senders = append(senders, int32(j+b*numSenders))
			}
		}
	}
	return
}

// CompleteGraphIndices returns the edges of batchSize complete graphs of numNodes nodes each, self-loops included.
// The order is the same as BipartiteIndices.
func CompleteGraphIndices(batchSize, numNodes int) (receivers, senders []int32) {
	return BipartiteIndices(batchSize, numNodes, numNodes)
}

// CompleteGraphEdges returns the Edges for TopologySelf given the node mask shaped `[batchSize, numNodes]`.
// The edge mask excludes padded nodes and self-loops, see SelfEdgeMask.
func CompleteGraphEdges(nodeMask *Node) *Edges {
	batchSize, numNodes := maskDims(nodeMask, "CompleteGraphEdges()")
	g := nodeMask.Graph()
	receivers, senders := CompleteGraphIndices(batchSize, numNodes)
	return &Edges{
		Receivers:    InsertAxes(Const(g, receivers), -1),
		Senders:      InsertAxes(Const(g, senders), -1),
		Mask:         SelfEdgeMask(nodeMask),
		NumReceivers: batchSize * numNodes,
		NumSenders:   batchSize * numNodes,
	}
}

// BipartiteEdges returns the Edges for TopologyFusion, given the masks of the updated nodes (nodeMask1, shaped
// `[batchSize, n1]`) and of the context nodes (nodeMask2, shaped `[batchSize, n2]`).
// The edge mask is the JointEdgeMask.
func BipartiteEdges(nodeMask1, nodeMask2 *Node) *Edges {
	batchSize, n1 := maskDims(nodeMask1, "BipartiteEdges(): nodeMask1")
	batchSize2, n2 := maskDims(nodeMask2, "BipartiteEdges(): nodeMask2")
	if batchSize != batchSize2 {
		Panicf("BipartiteEdges(): masks have different batch sizes: %s and %s", nodeMask1.Shape(), nodeMask2.Shape())
	}
	g := nodeMask1.Graph()
	receivers, senders := BipartiteIndices(batchSize, n1, n2)
	return &Edges{
		Receivers:    InsertAxes(Const(g, receivers), -1),
		Senders:      InsertAxes(Const(g, senders), -1),
		Mask:         JointEdgeMask(nodeMask1, nodeMask2),
		NumReceivers: batchSize * n1,
		NumSenders:   batchSize * n2,
	}
}

// SelfEdgeMask returns `mask[i]*mask[j]` for every pair of nodes of each batch element, with the diagonal
// (self-loops) set to 0.
//
// The nodeMask is shaped `[batchSize, numNodes]`, and the output is flattened to `[batchSize*numNodes*numNodes, 1]`,
// in the order of CompleteGraphIndices.
func SelfEdgeMask(nodeMask *Node) *Node {
	batchSize, numNodes := maskDims(nodeMask, "SelfEdgeMask()")
	g := nodeMask.Graph()
	mask := pairMask(nodeMask, nodeMask)
	iotaShape := shapes.Make(dtypes.Int32, numNodes, numNodes)
	offDiagonal := ConvertDType(NotEqual(Iota(g, iotaShape, 0), Iota(g, iotaShape, 1)), mask.DType())
	offDiagonal = BroadcastToDims(InsertAxes(offDiagonal, 0), batchSize, numNodes, numNodes)
	mask = Mul(mask, offDiagonal)
	return Reshape(mask, batchSize*numNodes*numNodes, 1)
}

// JointEdgeMask returns `mask1[i]*mask2[j]` for every pair of a node of the first set with a node of the second
// set, for each batch element.
//
// The masks are shaped `[batchSize, n1]` and `[batchSize, n2]`, and the output is flattened to
// `[batchSize*n1*n2, 1]`, in the order of BipartiteIndices (first set outer).
func JointEdgeMask(nodeMask1, nodeMask2 *Node) *Node {
	batchSize, n1 := maskDims(nodeMask1, "JointEdgeMask(): nodeMask1")
	_, n2 := maskDims(nodeMask2, "JointEdgeMask(): nodeMask2")
	return Reshape(pairMask(nodeMask1, nodeMask2), batchSize*n1*n2, 1)
}

// pairMask returns the `[batchSize, n1, n2]` products of the masks.
func pairMask(mask1, mask2 *Node) *Node {
	batchSize, n1 := mask1.Shape().Dimensions[0], mask1.Shape().Dimensions[1]
	n2 := mask2.Shape().Dimensions[1]
	if mask2.DType() != mask1.DType() {
		mask2 = ConvertDType(mask2, mask1.DType())
	}
	m1 := BroadcastToDims(InsertAxes(mask1, -1), batchSize, n1, n2)
	m2 := BroadcastToDims(InsertAxes(mask2, 1), batchSize, n1, n2)
	return Mul(m1, m2)
}

// FlattenNodeMask converts a node mask shaped `[batchSize, numNodes]` to the `[batchSize*numNodes, 1]` shape used
// by the layers.
func FlattenNodeMask(nodeMask *Node) *Node {
	batchSize, numNodes := maskDims(nodeMask, "FlattenNodeMask()")
	return Reshape(nodeMask, batchSize*numNodes, 1)
}

// FlattenNodes converts a node tensor shaped `[batchSize, numNodes, dim]` to `[batchSize*numNodes, dim]`.
func FlattenNodes(x *Node) *Node {
	if x.Rank() != 3 {
		Panicf("FlattenNodes(): expected x shaped [batchSize, numNodes, dim], got %s", x.Shape())
	}
	dims := x.Shape().Dimensions
	return Reshape(x, dims[0]*dims[1], dims[2])
}

// UnflattenNodes is the inverse of FlattenNodes.
func UnflattenNodes(x *Node, batchSize int) *Node {
	if x.Rank() != 2 || x.Shape().Dimensions[0]%batchSize != 0 {
		Panicf("UnflattenNodes(): expected x shaped [batchSize*numNodes, dim] with batchSize=%d, got %s", batchSize, x.Shape())
	}
	dims := x.Shape().Dimensions
	return Reshape(x, batchSize, dims[0]/batchSize, dims[1])
}

func maskDims(mask *Node, name string) (batchSize, numNodes int) {
	if mask.Rank() != 2 || !mask.DType().IsFloat() {
		Panicf("%s: node mask must be a float tensor shaped [batchSize, numNodes], got %s", name, mask.Shape())
	}
	batchSize, numNodes = mask.Shape().Dimensions[0], mask.Shape().Dimensions[1]
	if batchSize <= 0 || numNodes <= 0 {
		Panicf("%s: node mask has an empty dimension: %s", name, mask.Shape())
	}
	return
}
