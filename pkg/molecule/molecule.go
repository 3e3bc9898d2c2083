// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package molecule holds the host-side data of the EGNN models: molecules (or any point sets with per-point
// features), their collation into padded batches with node and edge masks, and their export to XYZ files.
//
// Batches are padded to the largest molecule: padded atoms have zero positions and features and a zero node mask.
// The masks built here follow the same layout as the in-graph ones of package egnn (see egnn.SelfEdgeMask and
// egnn.JointEdgeMask), so they can be used interchangeably.
package molecule

import (
	"github.com/pkg/errors"
)

// Molecule is one conformer: the 3D positions of its atoms and their features (typically the one-hot encoded
// atom type, optionally followed by the charge).
type Molecule struct {
	Positions [][3]float32
	Features  [][]float32
}

// FromAtomTypes creates a Molecule whose features are the one-hot encoding of atomTypes, with numTypes classes.
func FromAtomTypes(atomTypes []int, numTypes int, positions [][3]float32) (Molecule, error) {
	if len(atomTypes) != len(positions) {
		return Molecule{}, errors.Errorf("molecule has %d atom types but %d positions", len(atomTypes), len(positions))
	}
	m := Molecule{Positions: positions, Features: make([][]float32, len(atomTypes))}
	for i, atomType := range atomTypes {
		if atomType < 0 || atomType >= numTypes {
			return Molecule{}, errors.Errorf("atom #%d has type %d, out of range [0, %d)", i, atomType, numTypes)
		}
		m.Features[i] = make([]float32, numTypes)
		m.Features[i][atomType] = 1
	}
	return m, nil
}

// NumAtoms returns the number of atoms of the molecule.
func (m Molecule) NumAtoms() int { return len(m.Positions) }

// FeatureDim returns the dimension of the atom features, or 0 if the molecule is empty.
func (m Molecule) FeatureDim() int {
	if len(m.Features) == 0 {
		return 0
	}
	return len(m.Features[0])
}

// Validate checks that the molecule is not empty and that every atom has a position and features of the same
// dimension.
func (m Molecule) Validate() error {
	if m.NumAtoms() == 0 {
		return errors.New("molecule has no atoms")
	}
	if len(m.Features) != len(m.Positions) {
		return errors.Errorf("molecule has %d positions but %d feature vectors", len(m.Positions), len(m.Features))
	}
	dim := m.FeatureDim()
	for i, f := range m.Features {
		if len(f) != dim {
			return errors.Errorf("atom #%d has %d features, but atom #0 has %d", i, len(f), dim)
		}
	}
	return nil
}

// CenterOfMass returns the mean position of the atoms (all with unit mass).
func (m Molecule) CenterOfMass() (center [3]float32) {
	if m.NumAtoms() == 0 {
		return
	}
	var sum [3]float64
	for _, p := range m.Positions {
		for axis := range sum {
			sum[axis] += float64(p[axis])
		}
	}
	for axis := range center {
		center[axis] = float32(sum[axis] / float64(m.NumAtoms()))
	}
	return
}

// Centered returns a copy of the molecule translated so its center of mass is at the origin.
// Features are shared with m.
func (m Molecule) Centered() Molecule {
	center := m.CenterOfMass()
	centered := Molecule{Positions: make([][3]float32, m.NumAtoms()), Features: m.Features}
	for i, p := range m.Positions {
		for axis := range p {
			centered.Positions[i][axis] = p[axis] - center[axis]
		}
	}
	return centered
}
