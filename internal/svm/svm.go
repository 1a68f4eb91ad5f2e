package svm

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Dataset is the narrow view of a supervised data set the SVMs train on.
type Dataset interface {
	Inputs() [][]float64
	Targets() []int
}

// BinarySVM separates the samples of exactly two classes. It owns its
// kernel; alpha and beta are written by a Trainer.
type BinarySVM struct {
	InDim  int
	Kernel *Kernel
	Alpha  []float64
	Beta   float64
	// Classes[0] maps to the canonical label -1, Classes[1] to +1.
	Classes [2]int
}

func NewBinarySVM(indim int, kind KernelKind, params KernelParams) *BinarySVM {
	return &BinarySVM{
		InDim:  indim,
		Kernel: NewKernel(kind, params),
	}
}

// SetData maps the two labels found in y onto -1 and +1 in first-seen order
// and hands the training set to the kernel.
func (m *BinarySVM) SetData(X [][]float64, y []int) error {
	if m.Kernel.X != nil {
		return ErrDataAlreadySet
	}
	if len(X) == 0 {
		return ErrEmptyData
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d vectors, %d labels", ErrDimensionMismatch, len(X), len(y))
	}
	indim := m.InDim
	if indim <= 0 {
		indim = len(X[0])
	}
	for i, x := range X {
		if len(x) != indim {
			return fmt.Errorf("%w: sample %d has %d features, expected %d", ErrDimensionMismatch, i, len(x), indim)
		}
	}

	classes := make([]int, 0, 2)
	seen := make(map[int]bool, 2)
	for _, label := range y {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	switch {
	case len(classes) > 2:
		return fmt.Errorf("%w: found %d", ErrTooManyClasses, len(classes))
	case len(classes) < 2:
		return fmt.Errorf("%w: found only class %d", ErrTooFewClasses, classes[0])
	}

	mapped := make([]float64, len(y))
	for i, label := range y {
		if label == classes[0] {
			mapped[i] = -1
		} else {
			mapped[i] = 1
		}
	}
	if err := m.Kernel.SetData(X, mapped); err != nil {
		return err
	}

	m.InDim = indim
	m.Classes = [2]int{classes[0], classes[1]}
	m.Alpha = make([]float64, len(y))
	m.Beta = 0
	return nil
}

func (m *BinarySVM) SetDataset(ds Dataset) error {
	return m.SetData(ds.Inputs(), ds.Targets())
}

// RawOutput returns sum_i alpha[i]*Y[i]*k(X[i],x) - beta, the scaled
// distance of x to the separating hyperplane.
func (m *BinarySVM) RawOutput(x []float64) float64 {
	k := m.Kernel
	sum := 0.0
	for i, xi := range k.X {
		if a := m.Alpha[i]; a != 0 {
			sum += a * k.Y[i] * k.K(xi, x)
		}
	}
	return sum - m.Beta
}

func (m *BinarySVM) RawOutputs(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = m.RawOutput(x)
	}
	return out
}

// FunctionalMargin is the raw output before the threshold is subtracted.
func (m *BinarySVM) FunctionalMargin(x []float64) float64 {
	return m.RawOutput(x) + m.Beta
}

// Classify returns Classes[1] for a raw output >= 0 and Classes[0] otherwise.
func (m *BinarySVM) Classify(x []float64) int {
	return m.RawOutputToClass(m.RawOutput(x))
}

func (m *BinarySVM) ClassifyBatch(X [][]float64) []int {
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = m.Classify(x)
	}
	return out
}

func (m *BinarySVM) RawOutputToClass(raw float64) int {
	if raw >= 0 {
		return m.Classes[1]
	}
	return m.Classes[0]
}

// ClassToRawOutput returns the canonical label of class c.
func (m *BinarySVM) ClassToRawOutput(c int) (float64, bool) {
	switch c {
	case m.Classes[0]:
		return -1, true
	case m.Classes[1]:
		return 1, true
	default:
		return 0, false
	}
}

func (m *BinarySVM) Class(idx int) int {
	return m.Classes[idx]
}

// SupportVectors returns the indices of training samples with alpha > 0.
func (m *BinarySVM) SupportVectors() []int {
	var idx []int
	for i, a := range m.Alpha {
		if a > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Weights returns the normal vector of the separating hyperplane in feature
// space, w = sum_i alpha[i]*Y[i]*Phi(X[i]). Only explicit kernels have one.
func (m *BinarySVM) Weights() ([]float64, error) {
	k := m.Kernel
	if !k.IsExplicit() {
		return nil, fmt.Errorf("%w: %s", ErrNotExplicit, k.Kind)
	}
	if k.L() == 0 {
		return nil, ErrNoData
	}
	w := make([]float64, k.FeatureSpaceDim())
	for i, x := range k.X {
		phi, err := k.Phi(x)
		if err != nil {
			return nil, err
		}
		floats.AddScaled(w, m.Alpha[i]*k.Y[i], phi)
	}
	return w, nil
}
