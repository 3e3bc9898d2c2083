// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// GeometryEpsilon is added to the squared distance before taking its square root, so coincident points
// have a well-defined direction (zero) and finite gradients.
const GeometryEpsilon = 1e-8

// Geometry computes for each edge the squared distance and the normalized displacement direction between the
// receiver and the sender coordinates:
//
//	radial = ||x_r - x_s||²
//	direction = (x_r - x_s) / (sqrt(radial + ε) + normConstant)
//
// coordsReceivers is shaped `[edges.NumReceivers, 3]` and coordsSenders `[edges.NumSenders, 3]`: for TopologySelf
// pass the same coordinates twice.
//
// It returns radial shaped `[numEdges, 1]` and direction shaped `[numEdges, 3]`.
// The radial is invariant to rotations and translations, and the direction rotates with the coordinates.
func Geometry(coordsReceivers, coordsSenders *Node, edges *Edges, normConstant float64) (radial, direction *Node) {
	checkCoords(coordsReceivers, edges.NumReceivers, "Geometry(): coordsReceivers")
	checkCoords(coordsSenders, edges.NumSenders, "Geometry(): coordsSenders")
	diff := Sub(Gather(coordsReceivers, edges.Receivers), Gather(coordsSenders, edges.Senders))
	radial = L2NormSquare(diff, -1)
	norm := Sqrt(AddScalar(radial, GeometryEpsilon))
	direction = Div(diff, AddScalar(norm, normConstant))
	return
}

func checkCoords(coords *Node, numNodes int, name string) {
	if coords.Rank() != 2 || coords.Shape().Dimensions[1] != 3 || coords.Shape().Dimensions[0] != numNodes {
		Panicf("%s must be shaped [%d, 3], got %s", name, numNodes, coords.Shape())
	}
}

// Sinusoidal distance embedding constants.
const (
	SinusoidsMaxResolution = 15.0
	SinusoidsMinResolution = 15.0 / 2000.0
	SinusoidsDivFactor     = 4.0
)

// SinusoidsFrequencies returns the frequencies used by SinusoidalDistanceEmbedding:
// `2π * divFactor^k / maxResolution` for `k = 0 ... int(log_divFactor(maxResolution/minResolution))`.
func SinusoidsFrequencies() []float64 {
	n := int(math.Log(SinusoidsMaxResolution/SinusoidsMinResolution)/math.Log(SinusoidsDivFactor)) + 1
	freqs := make([]float64, n)
	for k := range freqs {
		freqs[k] = 2 * math.Pi * math.Pow(SinusoidsDivFactor, float64(k)) / SinusoidsMaxResolution
	}
	return freqs
}

// SinusoidsDim is the output dimension of SinusoidalDistanceEmbedding.
func SinusoidsDim() int {
	return 2 * len(SinusoidsFrequencies())
}

// SinusoidalDistanceEmbedding embeds the squared distances, shaped `[numEdges, 1]`, into `[numEdges, SinusoidsDim()]`
// features: the sine and cosine of the distance (`sqrt(radial + ε)`) multiplied by each of SinusoidsFrequencies.
func SinusoidalDistanceEmbedding(radial *Node) *Node {
	if radial.Rank() != 2 || radial.Shape().Dimensions[1] != 1 {
		Panicf("SinusoidalDistanceEmbedding(): radial must be shaped [numEdges, 1], got %s", radial.Shape())
	}
	g := radial.Graph()
	freqs := ConvertDType(Const(g, [][]float64{SinusoidsFrequencies()}), radial.DType())
	distance := Sqrt(AddScalar(radial, GeometryEpsilon))
	angles := Mul(distance, freqs) // [numEdges, 1] x [1, numFreqs]
	return Concatenate([]*Node{Sin(angles), Cos(angles)}, -1)
}
