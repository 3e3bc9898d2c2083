// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/egnn/pkg/egnn"
	"github.com/gomlx/egnn/pkg/instrument"
	"github.com/gomlx/egnn/pkg/molecule"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/nanlogger"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// options of the checks.
type options struct {
	topology           egnn.Topology
	trials             int
	batchSize          int
	minAtoms, maxAtoms int
	atomDecoder        []string
	positionsScale     float64
	seed               uint64
	tolerance          float64
	showProgress       bool
}

// trialResult holds the max absolute differences measured in one trial.
type trialResult struct {
	// invariance of the output features to a rigid transformation of the inputs.
	invariance float64

	// equivariance of the output coordinates to a rigid transformation of the inputs.
	equivariance float64

	// permutation of the atoms permutes the outputs.
	permutation float64

	// padding is the max absolute output value in padded slots.
	padding float64

	// paddedInputs measures how much garbage in the padded input slots changes the outputs.
	paddedInputs float64
}

func (r trialResult) values() []float64 {
	return []float64{r.invariance, r.equivariance, r.permutation, r.padding, r.paddedInputs}
}

func (r trialResult) passed(tolerance float64) bool {
	for _, v := range r.values() {
		if math.IsNaN(v) || v > tolerance {
			return false
		}
	}
	return true
}

// checker runs the model on batches of molecules.
type checker struct {
	opts      options
	rng       *rand.Rand
	exec      *context.Exec
	collector *instrument.Collector
	nanLogger *nanlogger.NanLogger

	// numOutputs of the model, before the collected activations.
	numOutputs int
}

func newChecker(backend backends.Backend, ctx *context.Context, opts options) *checker {
	c := &checker{
		opts:       opts,
		rng:        rand.New(rand.NewPCG(opts.seed, opts.seed^0x5eed)),
		collector:  instrument.NewCollector(),
		numOutputs: 2,
	}
	if context.GetParamOr(ctx, egnn.ParamNanLogger, false) {
		c.nanLogger = nanlogger.New()
	}
	c.exec = context.MustNewExec(backend, ctx, c.modelGraph)
	if c.nanLogger != nil {
		c.nanLogger.AttachToExec(c.exec)
	}
	return c
}

// modelGraph takes features, positions and node mask of one set (TopologySelf) or of two sets (TopologyFusion),
// and returns the output features and coordinates (of the first set), followed by the collected activations.
func (c *checker) modelGraph(ctx *context.Context, inputs []*Node) []*Node {
	c.collector.Reset()
	builder := egnn.New(ctx.In("egnn"), c.opts.topology).BlockHook(c.collector.Hook())
	if c.nanLogger != nil {
		builder.NanLogger(c.nanLogger)
	}
	model := egnn.NewModelFromNetwork(ctx, builder.Done())
	var h, x *Node
	switch c.opts.topology {
	case egnn.TopologySelf:
		h, x = model.Self(inputs[0], inputs[1], inputs[2])
	case egnn.TopologyFusion:
		h, x, _ = model.Fusion(inputs[0], inputs[1], inputs[2], inputs[3], inputs[4], inputs[5])
	}
	return append([]*Node{h, x}, c.collector.Nodes()...)
}

// modelOutputs holds the host values of the model outputs, flattened, for the first set of molecules.
type modelOutputs struct {
	h, x        []float32
	featuresDim int
	outputs     []*tensors.Tensor
}

func (c *checker) run(batch, contextBatch *molecule.Batch) modelOutputs {
	args := []any{batch.Features, batch.Positions, batch.NodeMask}
	if contextBatch != nil {
		args = append(args, contextBatch.Features, contextBatch.Positions, contextBatch.NodeMask)
	}
	outputs := c.exec.MustExec(args...)
	return modelOutputs{
		h:           tensors.MustCopyFlatData[float32](outputs[0]),
		x:           tensors.MustCopyFlatData[float32](outputs[1]),
		featuresDim: outputs[0].Shape().Dimensions[2],
		outputs:     outputs,
	}
}

// finalize frees the device memory of the outputs.
func (o modelOutputs) finalize() {
	for _, t := range o.outputs {
		if err := t.FinalizeAll(); err != nil {
			klog.Warningf("failed to finalize output: %+v", err)
		}
	}
}

// release frees the outputs and the batch of a failed trial, and clears them.
func release(outputs *modelOutputs, batch **molecule.Batch) {
	outputs.finalize()
	*outputs = modelOutputs{}
	finalizeBatches(*batch)
	*batch = nil
}

// trialData holds the molecules of one trial.
type trialData struct {
	molecules, contextMolecules []molecule.Molecule
}

func (c *checker) randomTrial() (trialData, error) {
	var data trialData
	var err error
	numTypes := len(c.opts.atomDecoder)
	data.molecules, err = randomMolecules(c.rng, c.opts.batchSize, c.opts.minAtoms, c.opts.maxAtoms, numTypes,
		c.opts.positionsScale)
	if err != nil {
		return data, err
	}
	if c.opts.topology == egnn.TopologyFusion {
		data.contextMolecules, err = randomMolecules(c.rng, c.opts.batchSize, c.opts.minAtoms, c.opts.maxAtoms,
			numTypes, c.opts.positionsScale)
	}
	return data, err
}

// collate the molecules of the first set and, if present, of the context set.
func collate(molecules, contextMolecules []molecule.Molecule) (batch, contextBatch *molecule.Batch, err error) {
	batch, err = molecule.Collate(molecules)
	if err != nil {
		return nil, nil, err
	}
	if contextMolecules != nil {
		contextBatch, err = molecule.Collate(contextMolecules)
		if err != nil {
			return nil, nil, err
		}
	}
	return batch, contextBatch, nil
}

func finalizeBatches(batches ...*molecule.Batch) {
	for _, b := range batches {
		if b == nil {
			continue
		}
		if err := b.Finalize(); err != nil {
			klog.Warningf("failed to finalize batch: %+v", err)
		}
	}
}

// trial runs one trial and returns its results. The first output of the trial is returned in reference and its
// batch in referenceBatch, both owned by the caller. On error both are released.
func (c *checker) trial(data trialData) (result trialResult, reference modelOutputs, referenceBatch *molecule.Batch, err error) {
	batch, contextBatch, err := collate(data.molecules, data.contextMolecules)
	if err != nil {
		return
	}
	defer finalizeBatches(contextBatch)
	referenceBatch = batch
	reference = c.run(batch, contextBatch)
	defer func() {
		if err != nil {
			release(&reference, &referenceBatch)
		}
	}()
	nodeMask := tensors.MustCopyFlatData[float32](batch.NodeMask)
	maxAtoms := batch.MaxAtoms()
	result.padding = maxAbsPadded(reference.h, nodeMask, reference.featuresDim)
	result.padding = max(result.padding, maxAbsPadded(reference.x, nodeMask, 3))

	// Rigid transformation of all the input coordinates.
	rotation := randomRotation(c.rng)
	translation := [3]float64{c.rng.NormFloat64(), c.rng.NormFloat64(), c.rng.NormFloat64()}
	var transformedContext []molecule.Molecule
	if data.contextMolecules != nil {
		transformedContext = transformMolecules(data.contextMolecules, rotation, translation)
	}
	err = c.compare(transformMolecules(data.molecules, rotation, translation), transformedContext,
		func(outputs modelOutputs) {
			result.invariance = maxAbsDiffMasked(reference.h, outputs.h, nodeMask, reference.featuresDim)
			expected := transformPositions(reference.x, rotation, translation)
			result.equivariance = maxAbsDiffMasked(expected, outputs.x, nodeMask, 3)
		})
	if err != nil {
		return
	}

	// Permutation of the atoms of the first set: the context set is an unordered set of senders.
	permuted, perms := permuteMolecules(c.rng, data.molecules)
	err = c.compare(permuted, data.contextMolecules, func(outputs modelOutputs) {
		for b, perm := range perms {
			for j, from := range perm {
				permutedNode, node := b*maxAtoms+j, b*maxAtoms+from
				result.permutation = max(result.permutation,
					maxAbsDiffRows(reference.h, outputs.h, node, permutedNode, reference.featuresDim),
					maxAbsDiffRows(reference.x, outputs.x, node, permutedNode, 3))
			}
		}
	})
	if err != nil {
		return
	}

	// Garbage in the padded slots of the inputs.
	garbageBatch, garbageContext, err := collate(data.molecules, data.contextMolecules)
	if err != nil {
		return
	}
	defer finalizeBatches(garbageBatch, garbageContext)
	for _, b := range []*molecule.Batch{garbageBatch, garbageContext} {
		if b != nil {
			fillPadding(c.rng, b)
		}
	}
	outputs := c.run(garbageBatch, garbageContext)
	defer outputs.finalize()
	result.paddedInputs = max(maxAbsDiffMasked(reference.h, outputs.h, nodeMask, reference.featuresDim),
		maxAbsDiffMasked(reference.x, outputs.x, nodeMask, 3))
	return
}

// compare collates the molecules, runs the model and calls fn with the outputs.
// The molecules must have the same number of atoms as the reference, so the padding is the same.
func (c *checker) compare(molecules, contextMolecules []molecule.Molecule, fn func(outputs modelOutputs)) error {
	batch, contextBatch, err := collate(molecules, contextMolecules)
	if err != nil {
		return err
	}
	defer finalizeBatches(batch, contextBatch)
	outputs := c.run(batch, contextBatch)
	defer outputs.finalize()
	fn(outputs)
	return nil
}

// fillPadding writes large finite random values in the padded slots of the positions and features of the batch.
func fillPadding(rng *rand.Rand, batch *molecule.Batch) {
	nodeMask := tensors.MustCopyFlatData[float32](batch.NodeMask)
	for _, t := range []*tensors.Tensor{batch.Positions, batch.Features} {
		dim := t.Shape().Dimensions[2]
		tensors.MustMutableFlatData[float32](t, func(flat []float32) {
			for node, m := range nodeMask {
				if m != 0 {
					continue
				}
				for i := range dim {
					flat[node*dim+i] = float32(100 * rng.NormFloat64())
				}
			}
		})
	}
}

func maxAbsPadded(values, nodeMask []float32, dim int) float64 {
	var maxAbs float64
	for node, m := range nodeMask {
		if m != 0 {
			continue
		}
		for _, v := range values[node*dim : (node+1)*dim] {
			maxAbs = max(maxAbs, math.Abs(float64(v)))
		}
	}
	return maxAbs
}

func maxAbsDiffMasked(a, b, nodeMask []float32, dim int) float64 {
	var maxDiff float64
	for node, m := range nodeMask {
		if m == 0 {
			continue
		}
		maxDiff = max(maxDiff, maxAbsDiffRows(a, b, node, node, dim))
	}
	return maxDiff
}

// maxAbsDiffRows compares row rowA of a with row rowB of b. NaN values make the result NaN.
func maxAbsDiffRows(a, b []float32, rowA, rowB, dim int) float64 {
	var maxDiff float64
	for i := range dim {
		diff := math.Abs(float64(a[rowA*dim+i]) - float64(b[rowB*dim+i]))
		if math.IsNaN(diff) {
			return math.NaN()
		}
		maxDiff = max(maxDiff, diff)
	}
	return maxDiff
}

// report of all trials.
type report struct {
	results []trialResult

	// runID identifies the activations dumps.
	runID string

	// activations of the first trial.
	activations []instrument.Activation

	// firstBatch is the input of the first trial and firstOutputs its output coordinates
	// shaped [batchSize, maxAtoms, 3].
	firstBatch   *molecule.Batch
	firstOutputs *tensors.Tensor
}

// passed returns whether all trials passed within the tolerance.
func (r *report) passed(tolerance float64) bool {
	for _, result := range r.results {
		if !result.passed(tolerance) {
			return false
		}
	}
	return true
}

// newTable returns the results of each trial as a table, with the measures over the tolerance flagged.
func (r *report) newTable(tolerance float64) *instrument.Table {
	table := instrument.NewTable("Trial", "Invariance", "Equivariance", "Permutation", "Padded Outputs",
		"Padded Inputs").Align(lipgloss.Right)
	for i, result := range r.results {
		cells := []string{fmt.Sprintf("%d", i)}
		for _, v := range result.values() {
			cells = append(cells, fmt.Sprintf("%.3g", v))
		}
		row := table.Row(cells...)
		for j, v := range result.values() {
			if math.IsNaN(v) || v > tolerance {
				table.Flag(row, j+1)
			}
		}
	}
	return table
}

// table renders newTable.
func (r *report) table(tolerance float64) string {
	return r.newTable(tolerance).Render()
}

// runChecks runs opts.trials trials of random molecules.
func runChecks(c *checker) (*report, error) {
	if len(c.opts.atomDecoder) == 0 {
		return nil, errors.New("at least one atom type is required")
	}
	r := &report{runID: c.collector.ID()}
	var bar *progressbar.ProgressBar
	if c.opts.showProgress {
		bar = progressbar.NewOptions(c.opts.trials,
			progressbar.OptionSetDescription("checking"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("trials"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode))
		defer func() { _ = bar.Close() }()
	}
	for trial := range c.opts.trials {
		data, err := c.randomTrial()
		if err != nil {
			return nil, errors.WithMessagef(err, "trial #%d", trial)
		}
		result, reference, batch, err := c.trial(data)
		if err != nil {
			return nil, errors.WithMessagef(err, "trial #%d", trial)
		}
		r.results = append(r.results, result)
		if trial == 0 {
			r.activations, err = c.collector.Activations(reference.outputs[c.numOutputs:])
			if err != nil {
				return nil, err
			}
			r.firstBatch, r.firstOutputs = batch, reference.outputs[1]
			for _, t := range reference.outputs[c.numOutputs:] {
				_ = t.FinalizeAll()
			}
			_ = reference.outputs[0].FinalizeAll()
		} else {
			reference.finalize()
			finalizeBatches(batch)
		}
		klog.V(2).Infof("trial #%d: %+v", trial, result)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return r, nil
}
