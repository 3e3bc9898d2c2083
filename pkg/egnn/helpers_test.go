// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"gonum.org/v1/gonum/mat"
)

// randomRotation returns a random 3x3 rotation matrix (orthogonal, determinant +1), from the QR decomposition
// of a random gaussian matrix.
func randomRotation(rng *rand.Rand) [][]float64 {
	data := make([]float64, 9)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(3, 3, data))
	var q mat.Dense
	qr.QTo(&q)
	if mat.Det(&q) < 0 {
		for row := range 3 {
			q.Set(row, 0, -q.At(row, 0))
		}
	}
	rotation := make([][]float64, 3)
	for row := range rotation {
		rotation[row] = mat.Row(nil, row, &q)
	}
	return rotation
}

// randomValues2D returns a [rows, cols] slice of normal values multiplied by scale.
func randomValues2D(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	values := make([][]float64, rows)
	for i := range values {
		values[i] = make([]float64, cols)
		for j := range values[i] {
			values[i][j] = scale * rng.NormFloat64()
		}
	}
	return values
}

func randomValues3D(rng *rand.Rand, batchSize, numNodes, dim int, scale float64) [][][]float64 {
	values := make([][][]float64, batchSize)
	for b := range values {
		values[b] = randomValues2D(rng, numNodes, dim, scale)
	}
	return values
}

// rigidTransform applies `x @ Rᵀ + translation` to coordinates x shaped `[..., 3]`.
func rigidTransform(x *Node, rotation [][]float64, translation []float64) *Node {
	g := x.Graph()
	r := ConvertDType(Const(g, rotation), x.DType())
	t := ConvertDType(Const(g, translation), x.DType())
	flat := Reshape(x, x.Shape().Size()/3, 3)
	flat = Add(MatMul(flat, Transpose(r, 0, 1)), InsertAxes(t, 0))
	return Reshape(flat, x.Shape().Dimensions...)
}

// rotate applies `x @ Rᵀ` to vectors x shaped `[..., 3]`.
func rotate(x *Node, rotation [][]float64) *Node {
	return rigidTransform(x, rotation, []float64{0, 0, 0})
}

// maxAbsDiff returns the scalar max of |a - b|.
func maxAbsDiff(a, b *Node) *Node {
	return ReduceAllMax(Abs(Sub(a, b)))
}

func shapesF32(dimensions ...int) shapes.Shape {
	return shapes.Make(dtypes.Float32, dimensions...)
}
