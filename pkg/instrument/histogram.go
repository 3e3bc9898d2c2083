// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// DefaultHistogramBins is the number of bins used by SaveHistograms when bins <= 0.
const DefaultHistogramBins = 200

// SaveHistogram plots the histogram of the finite values of the activation and saves it as a PNG image to path.
func SaveHistogram(path string, a Activation, bins int) error {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	values := make(plotter.Values, 0, len(a.Values))
	for _, v := range a.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return errors.Errorf("activation %q has no finite values to plot", a.Name)
	}
	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return errors.Wrapf(err, "failed to create histogram of %q", a.Name)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s: %s", a.Name, a.Shape, a.Stats())
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"
	p.Add(hist)
	if err = p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save histogram of %q to %q", a.Name, path)
	}
	return nil
}

// SaveHistograms saves one PNG histogram per activation in dir, which is created if needed.
// The file names are derived from the activation names.
//
// It returns the paths of the files saved.
func SaveHistograms(dir string, activations []Activation, bins int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %q", dir)
	}
	paths := make([]string, 0, len(activations))
	for _, a := range activations {
		path := filepath.Join(dir, fileName(a.Name)+".png")
		if err := SaveHistogram(path, a, bins); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	klog.V(1).Infof("saved %d histograms to %s", len(paths), dir)
	return paths, nil
}

// fileName converts a series name to a file name: scope separators become "_".
func fileName(name string) string {
	return strings.NewReplacer("/", "_", " ", "_", string(filepath.Separator), "_").Replace(name)
}
