// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package molecule

import (
	"github.com/gomlx/egnn/pkg/egnn"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Batch of molecules padded to the same number of atoms.
type Batch struct {
	// Positions shaped [batchSize, maxAtoms, 3], float32.
	Positions *tensors.Tensor

	// Features shaped [batchSize, maxAtoms, featureDim], float32.
	Features *tensors.Tensor

	// NodeMask shaped [batchSize, maxAtoms], float32: 1 for real atoms, 0 for padding.
	NodeMask *tensors.Tensor

	// EdgeMask shaped [batchSize*maxAtoms*maxAtoms, 1], float32: `mask[i]*mask[j]`, with self-loops set to 0.
	// It is ordered as egnn.CompleteGraphIndices.
	EdgeMask *tensors.Tensor

	// NumAtoms of each molecule.
	NumAtoms []int
}

// BatchSize is the number of molecules in the batch.
func (b *Batch) BatchSize() int { return len(b.NumAtoms) }

// MaxAtoms is the padded number of atoms per molecule.
func (b *Batch) MaxAtoms() int { return b.NodeMask.Shape().Dimensions[1] }

// Edges returns the egnn.Edges of the complete graph of each molecule, using the collated EdgeMask.
func (b *Batch) Edges(g *Graph) *egnn.Edges {
	batchSize, maxAtoms := b.BatchSize(), b.MaxAtoms()
	receivers, senders := egnn.CompleteGraphIndices(batchSize, maxAtoms)
	return egnn.NewEdges(Const(g, receivers), Const(g, senders), ConstTensor(g, b.EdgeMask),
		batchSize*maxAtoms, batchSize*maxAtoms)
}

// Finalize immediately frees the tensors of the batch.
func (b *Batch) Finalize() error {
	for _, t := range []*tensors.Tensor{b.Positions, b.Features, b.NodeMask, b.EdgeMask} {
		if t == nil {
			continue
		}
		if err := t.FinalizeAll(); err != nil {
			return errors.WithMessage(err, "failed to finalize batch tensors")
		}
	}
	return nil
}

// Collate pads the molecules to the largest one and builds the batch tensors, including the node mask and the
// self edge mask (pairs of real atoms, self-loops excluded).
//
// All molecules must be valid (see Molecule.Validate) and have the same feature dimension.
func Collate(molecules []Molecule) (*Batch, error) {
	if len(molecules) == 0 {
		return nil, errors.New("cannot collate an empty list of molecules")
	}
	batchSize := len(molecules)
	maxAtoms, featureDim := 0, molecules[0].FeatureDim()
	for i, m := range molecules {
		if err := m.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "molecule #%d", i)
		}
		if m.FeatureDim() != featureDim {
			return nil, errors.Errorf("molecule #%d has feature dimension %d, but molecule #0 has %d",
				i, m.FeatureDim(), featureDim)
		}
		maxAtoms = max(maxAtoms, m.NumAtoms())
	}

	positions := make([]float32, batchSize*maxAtoms*3)
	features := make([]float32, batchSize*maxAtoms*featureDim)
	nodeMask := make([]float32, batchSize*maxAtoms)
	numAtoms := make([]int, batchSize)
	for b, m := range molecules {
		numAtoms[b] = m.NumAtoms()
		for i := range m.NumAtoms() {
			node := b*maxAtoms + i
			copy(positions[node*3:(node+1)*3], m.Positions[i][:])
			copy(features[node*featureDim:(node+1)*featureDim], m.Features[i])
			nodeMask[node] = 1
		}
	}
	edgeMask := pairMask(nodeMask, nodeMask, batchSize, maxAtoms, maxAtoms, true)
	return &Batch{
		Positions: tensors.FromFlatDataAndDimensions(positions, batchSize, maxAtoms, 3),
		Features:  tensors.FromFlatDataAndDimensions(features, batchSize, maxAtoms, featureDim),
		NodeMask:  tensors.FromFlatDataAndDimensions(nodeMask, batchSize, maxAtoms),
		EdgeMask:  tensors.FromFlatDataAndDimensions(edgeMask, batchSize*maxAtoms*maxAtoms, 1),
		NumAtoms:  numAtoms,
	}, nil
}

// PairBatch holds a batch of pocket/ligand pairs for a fusion model: the pockets are the updated node set and the
// ligands are the context.
type PairBatch struct {
	Pockets, Ligands *Batch

	// JointEdgeMask shaped [batchSize*maxPocketAtoms*maxLigandAtoms, 1], float32: `pocketMask[i]*ligandMask[j]`,
	// ordered as egnn.BipartiteIndices with the pocket atoms outer.
	JointEdgeMask *tensors.Tensor
}

// CollatePairs collates the pockets and the ligands separately (see Collate) and builds the joint edge mask
// between them. pockets[i] is paired with ligands[i].
func CollatePairs(pockets, ligands []Molecule) (*PairBatch, error) {
	if len(pockets) != len(ligands) {
		return nil, errors.Errorf("got %d pockets but %d ligands", len(pockets), len(ligands))
	}
	pocketBatch, err := Collate(pockets)
	if err != nil {
		return nil, errors.WithMessage(err, "collating pockets")
	}
	ligandBatch, err := Collate(ligands)
	if err != nil {
		return nil, errors.WithMessage(err, "collating ligands")
	}
	batchSize := len(pockets)
	n1, n2 := pocketBatch.MaxAtoms(), ligandBatch.MaxAtoms()
	joint := pairMask(
		tensors.MustCopyFlatData[float32](pocketBatch.NodeMask),
		tensors.MustCopyFlatData[float32](ligandBatch.NodeMask),
		batchSize, n1, n2, false)
	return &PairBatch{
		Pockets:       pocketBatch,
		Ligands:       ligandBatch,
		JointEdgeMask: tensors.FromFlatDataAndDimensions(joint, batchSize*n1*n2, 1),
	}, nil
}

// Edges returns the egnn.Edges of the complete bipartite graph from the pocket atoms (receivers) to the ligand
// atoms (senders), using the collated JointEdgeMask.
func (p *PairBatch) Edges(g *Graph) *egnn.Edges {
	batchSize, n1, n2 := p.Pockets.BatchSize(), p.Pockets.MaxAtoms(), p.Ligands.MaxAtoms()
	receivers, senders := egnn.BipartiteIndices(batchSize, n1, n2)
	return egnn.NewEdges(Const(g, receivers), Const(g, senders), ConstTensor(g, p.JointEdgeMask),
		batchSize*n1, batchSize*n2)
}

// Finalize immediately frees the tensors of both batches and of the joint mask.
func (p *PairBatch) Finalize() error {
	if err := p.Pockets.Finalize(); err != nil {
		return err
	}
	if err := p.Ligands.Finalize(); err != nil {
		return err
	}
	return p.JointEdgeMask.FinalizeAll()
}

// pairMask returns the flat `[batchSize, n1, n2]` products mask1[b, i]*mask2[b, j]. If noDiagonal, the pairs i == j
// are set to 0.
func pairMask(mask1, mask2 []float32, batchSize, n1, n2 int, noDiagonal bool) []float32 {
	mask := make([]float32, batchSize*n1*n2)
	for b := range batchSize {
		for i := range n1 {
			for j := range n2 {
				if noDiagonal && i == j {
					continue
				}
				mask[(b*n1+i)*n2+j] = mask1[b*n1+i] * mask2[b*n2+j]
			}
		}
	}
	return mask
}
