// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package molecule

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WriteXYZ writes one XYZ file per molecule of the batch, named `<name>_<index>.xyz` (index with 3 digits) in dir,
// which is created if needed. Only the atoms in the node mask are written.
//
// The atom type is the argmax of the first len(atomDecoder) features of each atom, and atomDecoder maps it to
// the element symbol.
//
// It returns the paths of the files written.
func WriteXYZ(dir, name string, atomDecoder []string, batch *Batch) ([]string, error) {
	if len(atomDecoder) == 0 {
		return nil, errors.New("WriteXYZ requires a non-empty atom decoder")
	}
	featureDim := batch.Features.Shape().Dimensions[2]
	if featureDim < len(atomDecoder) {
		return nil, errors.Errorf("batch has %d features per atom, fewer than the %d atom types in the decoder",
			featureDim, len(atomDecoder))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %q", dir)
	}
	positions := tensors.MustCopyFlatData[float32](batch.Positions)
	features := tensors.MustCopyFlatData[float32](batch.Features)
	nodeMask := tensors.MustCopyFlatData[float32](batch.NodeMask)
	maxAtoms := batch.MaxAtoms()
	paths := make([]string, 0, batch.BatchSize())
	for b := range batch.BatchSize() {
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d.xyz", name, b))
		var atoms []xyzAtom
		for i := range maxAtoms {
			node := b*maxAtoms + i
			if nodeMask[node] == 0 {
				continue
			}
			atomFeatures := features[node*featureDim : node*featureDim+len(atomDecoder)]
			atoms = append(atoms, xyzAtom{
				symbol:   atomDecoder[argMax(atomFeatures)],
				position: [3]float32(positions[node*3 : (node+1)*3]),
			})
		}
		if err := writeXYZFile(path, atoms); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	klog.V(1).Infof("wrote %d XYZ files to %s", len(paths), dir)
	return paths, nil
}

type xyzAtom struct {
	symbol   string
	position [3]float32
}

func writeXYZFile(path string, atoms []xyzAtom) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close %q", path)
		}
	}()
	w := bufio.NewWriter(f)
	if err = encodeXYZ(w, atoms); err != nil {
		return errors.WithMessagef(err, "writing %q", path)
	}
	if err = w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}

// encodeXYZ writes the number of atoms, an empty comment line, and one line per atom.
func encodeXYZ(w io.Writer, atoms []xyzAtom) error {
	if _, err := fmt.Fprintf(w, "%d\n\n", len(atoms)); err != nil {
		return errors.WithStack(err)
	}
	for _, atom := range atoms {
		p := atom.position
		if _, err := fmt.Fprintf(w, "%s %.9f %.9f %.9f\n", atom.symbol, p[0], p[1], p[2]); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func argMax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
