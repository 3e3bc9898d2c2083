// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math/rand/v2"

	"github.com/gomlx/egnn/pkg/molecule"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// randomMolecules returns count centered molecules with a random number of atoms in [minAtoms, maxAtoms],
// random atom types and gaussian positions with the given scale.
func randomMolecules(rng *rand.Rand, count, minAtoms, maxAtoms, numTypes int, scale float64) ([]molecule.Molecule, error) {
	if minAtoms < 1 || maxAtoms < minAtoms {
		return nil, errors.Errorf("invalid range of atoms [%d, %d]", minAtoms, maxAtoms)
	}
	molecules := make([]molecule.Molecule, count)
	for i := range molecules {
		numAtoms := minAtoms + rng.IntN(maxAtoms-minAtoms+1)
		atomTypes := make([]int, numAtoms)
		positions := make([][3]float32, numAtoms)
		for atom := range numAtoms {
			atomTypes[atom] = rng.IntN(numTypes)
			for axis := range 3 {
				positions[atom][axis] = float32(scale * rng.NormFloat64())
			}
		}
		m, err := molecule.FromAtomTypes(atomTypes, numTypes, positions)
		if err != nil {
			return nil, err
		}
		molecules[i] = m.Centered()
	}
	return molecules, nil
}

// randomRotation returns a random 3x3 rotation matrix (orthogonal, determinant +1), from the QR decomposition
// of a random gaussian matrix.
func randomRotation(rng *rand.Rand) *mat.Dense {
	data := make([]float64, 9)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(3, 3, data))
	q := mat.NewDense(3, 3, nil)
	qr.QTo(q)
	if mat.Det(q) < 0 {
		for row := range 3 {
			q.Set(row, 0, -q.At(row, 0))
		}
	}
	return q
}

// transformPositions returns `positions @ Rᵀ + translation` for flat positions (3 values per atom).
func transformPositions(positions []float32, rotation *mat.Dense, translation [3]float64) []float32 {
	numAtoms := len(positions) / 3
	if numAtoms == 0 {
		return nil
	}
	p := mat.NewDense(numAtoms, 3, nil)
	for atom := range numAtoms {
		for axis := range 3 {
			p.Set(atom, axis, float64(positions[atom*3+axis]))
		}
	}
	var rotated mat.Dense
	rotated.Mul(p, rotation.T())
	transformed := make([]float32, len(positions))
	for atom := range numAtoms {
		for axis := range 3 {
			transformed[atom*3+axis] = float32(rotated.At(atom, axis) + translation[axis])
		}
	}
	return transformed
}

// transformMolecules applies a rigid transformation to the positions of the molecules.
func transformMolecules(molecules []molecule.Molecule, rotation *mat.Dense, translation [3]float64) []molecule.Molecule {
	transformed := make([]molecule.Molecule, len(molecules))
	for i, m := range molecules {
		flat := make([]float32, 0, 3*m.NumAtoms())
		for _, p := range m.Positions {
			flat = append(flat, p[:]...)
		}
		flat = transformPositions(flat, rotation, translation)
		positions := make([][3]float32, m.NumAtoms())
		for atom := range positions {
			positions[atom] = [3]float32(flat[atom*3 : (atom+1)*3])
		}
		transformed[i] = molecule.Molecule{Positions: positions, Features: m.Features}
	}
	return transformed
}

// permuteMolecules shuffles the atoms of each molecule. It returns the permuted molecules and, for each molecule,
// the permutation used: atom j of the permuted molecule is atom perms[i][j] of the original.
func permuteMolecules(rng *rand.Rand, molecules []molecule.Molecule) ([]molecule.Molecule, [][]int) {
	permuted := make([]molecule.Molecule, len(molecules))
	perms := make([][]int, len(molecules))
	for i, m := range molecules {
		perm := rng.Perm(m.NumAtoms())
		p := molecule.Molecule{
			Positions: make([][3]float32, m.NumAtoms()),
			Features:  make([][]float32, m.NumAtoms()),
		}
		for j, from := range perm {
			p.Positions[j] = m.Positions[from]
			p.Features[j] = m.Features[from]
		}
		permuted[i], perms[i] = p, perm
	}
	return permuted, perms
}
