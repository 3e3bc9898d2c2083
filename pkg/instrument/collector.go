// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package instrument inspects the intermediary activations of an EGNN: it collects the outputs of each block
// of an egnn.Network while the graph is built, and once the graph is executed it converts them to host values
// for statistics, histograms and raw dumps.
//
// Typical usage:
//
//	collector := instrument.NewCollector()
//	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
//		model := egnn.NewModel(ctx, egnn.TopologySelf, collector.Hook())
//		h, x := model.Self(features, positions, nodeMask)
//		return append([]*Node{h, x}, collector.Nodes()...)
//	})
//	activations, err := collector.Activations(outputs[2:])
//	fmt.Println(instrument.StatsTable(activations))
package instrument

import (
	"fmt"

	"github.com/gomlx/egnn/pkg/egnn"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Collector of named graph nodes to be returned as extra outputs of a graph execution.
//
// It is not safe for concurrent use: it is meant to be used during the building of one graph.
type Collector struct {
	id    string
	names []string
	nodes []*Node
}

// NewCollector creates a Collector with a unique ID.
func NewCollector() *Collector {
	return &Collector{id: uuid.NewString()}
}

// ID is a unique identifier of the collector, used to name its dumps.
func (c *Collector) ID() string { return c.id }

// String implements fmt.Stringer.
func (c *Collector) String() string {
	return fmt.Sprintf("<instrument.Collector id=%s, %d series>", c.id, len(c.names))
}

// Hook returns an egnn.BlockHook that collects the features and coordinates of each block, named
// "block_###/h" and "block_###/x".
func (c *Collector) Hook() egnn.BlockHook {
	return func(blockIdx int, h, x *Node) {
		c.Add(fmt.Sprintf("block_%03d/h", blockIdx), h)
		c.Add(fmt.Sprintf("block_%03d/x", blockIdx), x)
	}
}

// Add node to be collected under the given name.
//
// It panics if the node is not a float or if the name was already used.
func (c *Collector) Add(name string, node *Node) {
	if !node.DType().IsFloat() {
		Panicf("instrument.Collector can only collect float values, got %s for %q", node.DType(), name)
	}
	for _, existing := range c.names {
		if existing == name {
			Panicf("instrument.Collector already has a series named %q", name)
		}
	}
	c.names = append(c.names, name)
	c.nodes = append(c.nodes, node)
}

// Names of the collected series, in the order they were added.
func (c *Collector) Names() []string { return c.names }

// Nodes to be appended to the outputs of the graph, in the order they were added.
func (c *Collector) Nodes() []*Node { return c.nodes }

// Len is the number of collected series.
func (c *Collector) Len() int { return len(c.nodes) }

// Reset the collected nodes, so the collector can be used with a new graph. The ID is preserved.
func (c *Collector) Reset() {
	c.names = nil
	c.nodes = nil
}

// Activation holds the values of one collected series after execution.
type Activation struct {
	Name   string
	Shape  shapes.Shape
	Values []float64
}

// Activations converts the outputs that correspond to the collected Nodes (in the same order) to host values.
func (c *Collector) Activations(outputs []*tensors.Tensor) ([]Activation, error) {
	if len(outputs) != len(c.nodes) {
		return nil, errors.Errorf("%s: got %d outputs, but %d series were collected", c, len(outputs), len(c.nodes))
	}
	activations := make([]Activation, len(outputs))
	for i, t := range outputs {
		values, err := ToFloat64(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "series %q", c.names[i])
		}
		activations[i] = Activation{Name: c.names[i], Shape: t.Shape(), Values: values}
	}
	return activations, nil
}
