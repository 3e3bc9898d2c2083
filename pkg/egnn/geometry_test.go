// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/require"
)

func TestGeometry(t *testing.T) {
	// Complete graph of 3 nodes, edge (0, 1) is edge 1.
	coords := [][]float32{{0, 0, 0}, {1, 0, 0}, {0, 0, 0}}
	geometryFn := func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, coords)
		edges := CompleteGraphEdges(Const(g, [][]float32{{1, 1, 0}}))
		radial, direction := Geometry(x, x, edges, 1)
		inputs = []*Node{x}
		outputs = []*Node{radial, direction}
		return
	}
	norm := float32(math.Sqrt(1+GeometryEpsilon) + 1)
	graphtest.RunTestGraphFn(t, "complete-3", geometryFn, []any{
		[][]float32{{0}, {1}, {0}, {1}, {0}, {1}, {0}, {1}, {0}},
		[][]float32{
			{0, 0, 0}, {-1 / norm, 0, 0}, {0, 0, 0},
			{1 / norm, 0, 0}, {0, 0, 0}, {1 / norm, 0, 0},
			{0, 0, 0}, {-1 / norm, 0, 0}, {0, 0, 0},
		},
	}, 1e-6)

	// Bipartite: 1 receiver, 2 senders.
	graphtest.RunTestGraphFn(t, "bipartite", func(g *Graph) (inputs, outputs []*Node) {
		x1 := Const(g, [][]float64{{1, 1, 1}})
		x2 := Const(g, [][]float64{{1, 1, 1}, {1, 4, 5}})
		edges := BipartiteEdges(Const(g, [][]float64{{1}}), Const(g, [][]float64{{1, 1}}))
		radial, direction := Geometry(x1, x2, edges, 0)
		inputs = []*Node{x1, x2}
		outputs = []*Node{radial, direction}
		return
	}, []any{
		[][]float64{{0}, {25}},
		[][]float64{{0, 0, 0}, {0, -3.0 / 5, -4.0 / 5}},
	}, 1e-6)
}

func TestGeometryErrors(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, "TestGeometryErrors")
	edges := CompleteGraphEdges(Const(g, [][]float32{{1, 1}}))
	require.Panics(t, func() { Geometry(Const(g, [][]float32{{0, 0}, {1, 1}}), Const(g, [][]float32{{0, 0}, {1, 1}}), edges, 1) })
	require.Panics(t, func() {
		x := Const(g, [][]float32{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}})
		Geometry(x, x, edges, 1)
	})
}

func TestSinusoidalDistanceEmbedding(t *testing.T) {
	freqs := SinusoidsFrequencies()
	require.Len(t, freqs, 6)
	require.InDelta(t, 2*math.Pi/15, freqs[0], 1e-12)
	for k := 1; k < len(freqs); k++ {
		require.InDelta(t, 4*freqs[k-1], freqs[k], 1e-9)
	}
	require.Equal(t, 12, SinusoidsDim())

	want := make([]float64, 0, 12)
	distance := math.Sqrt(4 + GeometryEpsilon)
	for _, f := range freqs {
		want = append(want, math.Sin(distance*f))
	}
	for _, f := range freqs {
		want = append(want, math.Cos(distance*f))
	}
	graphtest.RunTestGraphFn(t, "SinusoidalDistanceEmbedding", func(g *Graph) (inputs, outputs []*Node) {
		radial := Const(g, [][]float64{{4}})
		inputs = []*Node{radial}
		outputs = []*Node{SinusoidalDistanceEmbedding(radial)}
		return
	}, []any{[][]float64{want}}, 1e-9)
}
