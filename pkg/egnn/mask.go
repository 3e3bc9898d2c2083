// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// ApplyNodeMask multiplies each row of x, shaped `[numNodes, dim]`, by the node mask, shaped `[numNodes, 1]` or
// `[numNodes]`, so padded nodes are zeroed.
//
// If mask is nil, x is returned unchanged. Applying it twice with a {0, 1} mask gives the same result as once.
func ApplyNodeMask(x, mask *Node) *Node {
	return applyRowMask(x, mask, "ApplyNodeMask()")
}

// ApplyEdgeMask multiplies each row of x, shaped `[numEdges, dim]`, by the edge mask, shaped `[numEdges, 1]` or
// `[numEdges]`.
//
// If mask is nil, x is returned unchanged.
func ApplyEdgeMask(x, mask *Node) *Node {
	return applyRowMask(x, mask, "ApplyEdgeMask()")
}

func applyRowMask(x, mask *Node, name string) *Node {
	if mask == nil {
		return x
	}
	if x.Rank() != 2 {
		Panicf("%s: x must be shaped [numRows, dim], got %s", name, x.Shape())
	}
	if mask.Rank() == 1 {
		mask = InsertAxes(mask, -1)
	}
	if mask.Rank() != 2 || mask.Shape().Dimensions[1] != 1 || mask.Shape().Dimensions[0] != x.Shape().Dimensions[0] {
		Panicf("%s: mask must be shaped [%d, 1] to match x (shaped %s), got %s",
			name, x.Shape().Dimensions[0], x.Shape(), mask.Shape())
	}
	if mask.DType() != x.DType() {
		mask = ConvertDType(mask, x.DType())
	}
	return Mul(x, mask)
}
