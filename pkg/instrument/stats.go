// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/gomlx/pkg/core/dtypes/float16"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ToFloat64 returns a copy of the flat values of a float tensor converted to float64.
func ToFloat64(t *tensors.Tensor) ([]float64, error) {
	switch t.DType() {
	case dtypes.Float64:
		return tensors.MustCopyFlatData[float64](t), nil
	case dtypes.Float32:
		return convertFlat(tensors.MustCopyFlatData[float32](t), func(v float32) float64 { return float64(v) }), nil
	case dtypes.Float16:
		return convertFlat(tensors.MustCopyFlatData[float16.Float16](t),
			func(v float16.Float16) float64 { return float64(v.Float32()) }), nil
	case dtypes.BFloat16:
		return convertFlat(tensors.MustCopyFlatData[bfloat16.BFloat16](t),
			func(v bfloat16.BFloat16) float64 { return float64(v.Float32()) }), nil
	default:
		return nil, errors.Errorf("cannot convert tensor of dtype %s to float64", t.DType())
	}
}

func convertFlat[T any](values []T, fn func(T) float64) []float64 {
	converted := make([]float64, len(values))
	for i, v := range values {
		converted[i] = fn(v)
	}
	return converted
}

// Stats summarizes the finite values of an activation.
type Stats struct {
	// Count of finite values.
	Count int

	// NumNonFinite is the number of NaN or infinite values, which are excluded from the other statistics.
	NumNonFinite int

	Mean, Std, Min, Max float64
}

// Summarize the values: the statistics are computed only over the finite values.
// If there are no finite values, Mean, Std, Min and Max are NaN.
func Summarize(values []float64) Stats {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	s := Stats{Count: len(finite), NumNonFinite: len(values) - len(finite)}
	if len(finite) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Max = nan, nan, nan, nan
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(finite, nil)
	s.Min, s.Max = floats.Min(finite), floats.Max(finite)
	return s
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	str := fmt.Sprintf("mean=%.4g std=%.4g min=%.4g max=%.4g (n=%d)", s.Mean, s.Std, s.Min, s.Max, s.Count)
	if s.NumNonFinite > 0 {
		str += fmt.Sprintf(", %d non-finite", s.NumNonFinite)
	}
	return str
}

// Stats of the activation values.
func (a Activation) Stats() Stats { return Summarize(a.Values) }

// Masked returns the activation restricted to the rows (first axis of the flattened nodes) where mask is not 0.
//
// The activation must be shaped `[numNodes, dim]` and mask must have numNodes elements.
func (a Activation) Masked(mask []float32) (Activation, error) {
	if a.Shape.Rank() != 2 || a.Shape.Dimensions[0] != len(mask) {
		return Activation{}, errors.Errorf("cannot mask activation %q shaped %s with a mask of %d nodes",
			a.Name, a.Shape, len(mask))
	}
	dim := a.Shape.Dimensions[1]
	masked := Activation{Name: a.Name, Shape: a.Shape.Clone()}
	for node, m := range mask {
		if m != 0 {
			masked.Values = append(masked.Values, a.Values[node*dim:(node+1)*dim]...)
		}
	}
	masked.Shape.Dimensions[0] = len(masked.Values) / max(dim, 1)
	return masked, nil
}

// Columns of StatsTable.
const (
	statsColSeries = iota
	statsColShape
	statsColMean
	statsColStd
	statsColMin
	statsColMax
	statsColNonFinite
)

// NewStatsTable returns the statistics of the activations as a table. The series name and the count of
// activations with non-finite values are flagged.
func NewStatsTable(activations []Activation) *Table {
	table := NewTable("Series", "Shape", "Mean", "Std", "Min", "Max", "Non-Finite").
		Align(lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, a := range activations {
		s := a.Stats()
		row := table.Row(a.Name, a.Shape.String(),
			fmt.Sprintf("%.4g", s.Mean), fmt.Sprintf("%.4g", s.Std),
			fmt.Sprintf("%.4g", s.Min), fmt.Sprintf("%.4g", s.Max),
			fmt.Sprintf("%d", s.NumNonFinite))
		if s.NumNonFinite > 0 {
			table.Flag(row, statsColSeries, statsColNonFinite)
		}
	}
	return table
}

// StatsTable renders NewStatsTable.
func StatsTable(activations []Activation) string {
	return NewStatsTable(activations).Render()
}
