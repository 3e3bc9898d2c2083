// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// DumpExtension is the file extension of the raw activation dumps: little-endian IEEE 754 half-precision values.
const DumpExtension = ".f16"

// Dump writes the values of each activation as raw little-endian float16 to a file in dir/runID, which is
// created if needed. Use the Collector.ID as runID to keep the dumps of different runs apart.
//
// Values out of the float16 range become infinities. It returns the paths of the files written.
func Dump(dir, runID string, activations []Activation) ([]string, error) {
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %q", runDir)
	}
	paths := make([]string, 0, len(activations))
	for _, a := range activations {
		path := filepath.Join(runDir, fileName(a.Name)+DumpExtension)
		if err := dumpFile(path, a.Values); err != nil {
			return paths, errors.WithMessagef(err, "dumping %q", a.Name)
		}
		paths = append(paths, path)
	}
	klog.V(1).Infof("dumped %d activations to %s", len(paths), runDir)
	return paths, nil
}

func dumpFile(path string, values []float64) (err error) {
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
	var buf [2]byte
	for _, v := range values {
		binary.LittleEndian.PutUint16(buf[:], float16.Fromfloat32(float32(v)).Bits())
		if _, err = w.Write(buf[:]); err != nil {
			return errors.Wrapf(err, "failed to write %q", path)
		}
	}
	if err = w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}

// ReadDump reads back a file written by Dump.
func ReadDump(path string) ([]float32, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	if len(contents)%2 != 0 {
		return nil, errors.Errorf("dump %q has an odd number of bytes (%d)", path, len(contents))
	}
	values := make([]float32, len(contents)/2)
	for i := range values {
		values[i] = float16.Frombits(binary.LittleEndian.Uint16(contents[2*i:])).Float32()
	}
	return values, nil
}
