// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// egnn_check builds an EGNN from its hyperparameters and checks its symmetries on random molecules:
// invariance of the features and equivariance of the coordinates to rotations and translations, equivariance
// to permutations of the atoms, and that the padded atoms neither receive nor send anything.
//
// It can also report the model size, save the randomly initialized model to a checkpoint, and save histograms
// and raw dumps of the per-block activations, and XYZ files of the inputs and outputs of the first batch.
//
// Hyperparameters can be set from a YAML file (-config) and from the command line (-set), e.g.:
//
//	egnn_check -config=egnn.yaml -set="egnn_num_blocks=4;egnn_aggregation=mean" -topology=fusion
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/egnn/pkg/config"
	"github.com/gomlx/egnn/pkg/egnn"
	"github.com/gomlx/egnn/pkg/instrument"
	"github.com/gomlx/egnn/pkg/molecule"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagConfig      = flag.String("config", "", "YAML file with hyperparameters, applied before -set.")
	flagTopology    = flag.String("topology", "self", "Topology of the model: \"self\" or \"fusion\".")
	flagTrials      = flag.Int("trials", 10, "Number of random batches to check.")
	flagBatchSize   = flag.Int("batch", 4, "Number of molecules per batch.")
	flagMinAtoms    = flag.Int("min_atoms", 3, "Minimum number of atoms per molecule.")
	flagMaxAtoms    = flag.Int("max_atoms", 12, "Maximum number of atoms per molecule.")
	flagAtomDecoder = flag.String("atoms", "H,C,N,O,F", "Comma separated atom types: the features are their one-hot encoding.")
	flagScale       = flag.Float64("scale", 2.0, "Standard deviation of the random atom positions.")
	flagSeed        = flag.Uint64("seed", 42, "Random seed for the molecules and transformations.")
	flagTolerance   = flag.Float64("tolerance", 1e-3, "Maximum absolute difference accepted by the checks.")
	flagCheckpoint  = flag.String("checkpoint", "", "If set, variables are loaded from this checkpoint directory, if it exists, and saved after the checks.")
	flagActivations = flag.String("activations", "", "If set, histograms and float16 dumps of the activations of the first batch are saved to this directory.")
	flagBins        = flag.Int("bins", instrument.DefaultHistogramBins, "Number of bins of the activation histograms.")
	flagXYZ         = flag.String("xyz", "", "If set, the input and output molecules of the first batch are saved as XYZ files in this directory.")
	flagProgress    = flag.Bool("progress", true, "Display a progress bar.")
)

func main() {
	ctx := egnn.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	var paramsSet []string
	if *flagConfig != "" {
		paramsSet = must.M1(config.LoadFile(ctx, *flagConfig))
	}
	paramsSet = append(paramsSet, must.M1(commandline.ParseContextSettings(ctx, *settings))...)
	if len(paramsSet) > 0 {
		fmt.Printf("Hyperparameters: %s\n", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	var passed bool
	err := exceptions.TryCatch[error](func() { passed = check(ctx) })
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
	if !passed {
		fmt.Printf("Checks failed: differences larger than %g.\n", *flagTolerance)
		os.Exit(1)
	}
	fmt.Println("All checks passed.")
}

// check runs the checks and saves the requested outputs. It panics on errors.
func check(ctx *context.Context) bool {
	topology := must.M1(egnn.ParseTopology(*flagTopology))
	backend := backends.MustNew()
	klog.V(1).Infof("backend: %s", backend.Description())

	var checkpoint *checkpoints.Handler
	if *flagCheckpoint != "" {
		checkpoint = must.M1(checkpoints.Build(ctx).Dir(*flagCheckpoint).Done())
	}

	opts := options{
		topology:       topology,
		trials:         *flagTrials,
		batchSize:      *flagBatchSize,
		minAtoms:       *flagMinAtoms,
		maxAtoms:       *flagMaxAtoms,
		atomDecoder:    strings.Split(*flagAtomDecoder, ","),
		positionsScale: *flagScale,
		seed:           *flagSeed,
		tolerance:      *flagTolerance,
		showProgress:   *flagProgress,
	}
	r := must.M1(runChecks(newChecker(backend, ctx, opts)))
	defer finalizeBatches(r.firstBatch)

	fmt.Println(instrument.ModelSize(ctx, 3).Table())
	fmt.Println(r.table(opts.tolerance))
	fmt.Println(instrument.StatsTable(r.activations))

	if *flagActivations != "" {
		histogramsDir := filepath.Join(*flagActivations, "histograms")
		paths := must.M1(instrument.SaveHistograms(histogramsDir, r.activations, *flagBins))
		fmt.Printf("Saved %d histograms to %s\n", len(paths), histogramsDir)
		paths = must.M1(instrument.Dump(*flagActivations, r.runID, r.activations))
		fmt.Printf("Dumped %d activations to %s\n", len(paths), filepath.Join(*flagActivations, r.runID))
	}
	if *flagXYZ != "" {
		writeXYZ(*flagXYZ, opts.atomDecoder, r)
	}
	if checkpoint != nil {
		must.M(checkpoint.Save())
		fmt.Printf("Saved checkpoint to %s\n", checkpoint.Dir())
	}
	return r.passed(opts.tolerance)
}

// writeXYZ writes the input molecules of the first batch, and the same molecules with the output coordinates.
func writeXYZ(dir string, atomDecoder []string, r *report) {
	inputs := must.M1(molecule.WriteXYZ(dir, "input", atomDecoder, r.firstBatch))
	outputBatch := *r.firstBatch
	outputBatch.Positions = r.firstOutputs
	outputs := must.M1(molecule.WriteXYZ(dir, "output", atomDecoder, &outputBatch))
	fmt.Printf("Saved %d XYZ files to %s\n", len(inputs)+len(outputs), dir)
}
