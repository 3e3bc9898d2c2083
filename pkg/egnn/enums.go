// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package egnn

import (
	"math"

	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=Aggregation,Topology,Recompute -trimprefix=Aggregate,Topology,Recompute -transform=snake -values -text -json -yaml -output=gen_enums_enumer.go enums.go

// Aggregation defines how the messages arriving at a node are reduced.
type Aggregation int

const (
	// AggregateSum sums the incoming messages and divides the result by a fixed normalization factor.
	AggregateSum Aggregation = iota

	// AggregateMean divides the sum of the incoming messages by their count (floored at 1).
	AggregateMean
)

// Topology of the interaction graph of a Network, fixed at construction time.
type Topology int

const (
	// TopologySelf is a single point set interacting with itself: complete graph, self-loops masked out.
	TopologySelf Topology = iota

	// TopologyFusion updates one point set using a second read-only point set, over a complete bipartite graph.
	TopologyFusion
)

// Recompute selects which blocks of a Network are marked for recomputation during the backward pass.
type Recompute int

const (
	// RecomputeNone marks no block.
	RecomputeNone Recompute = iota

	// RecomputeAll marks every block.
	RecomputeAll

	// RecomputeSqrt marks one in every int(sqrt(numBlocks)) blocks, and only if there is more than one block.
	RecomputeSqrt
)

// ParseAggregation converts a name ("sum" or "mean") to an Aggregation.
func ParseAggregation(name string) (Aggregation, error) {
	agg, err := AggregationString(name)
	if err != nil {
		return agg, errors.Wrapf(err, "invalid aggregation %q, valid values are %q", name, AggregationStrings())
	}
	return agg, nil
}

// ParseTopology converts a name ("self" or "fusion") to a Topology.
func ParseTopology(name string) (Topology, error) {
	topology, err := TopologyString(name)
	if err != nil {
		return topology, errors.Wrapf(err, "invalid topology %q, valid values are %q", name, TopologyStrings())
	}
	return topology, nil
}

// ParseRecompute converts a name ("none", "all" or "sqrt") to a Recompute strategy.
func ParseRecompute(name string) (Recompute, error) {
	r, err := RecomputeString(name)
	if err != nil {
		return r, errors.Wrapf(err, "invalid recompute strategy %q, valid values are %q", name, RecomputeStrings())
	}
	return r, nil
}

// Blocks returns for each of the numBlocks blocks whether it is marked for recomputation.
func (r Recompute) Blocks(numBlocks int) []bool {
	marked := make([]bool, numBlocks)
	switch r {
	case RecomputeAll:
		for i := range marked {
			marked[i] = true
		}
	case RecomputeSqrt:
		if numBlocks <= 1 {
			break
		}
		period := int(math.Sqrt(float64(numBlocks)))
		for i := range marked {
			marked[i] = (i+1)%period == 0
		}
	}
	return marked
}
