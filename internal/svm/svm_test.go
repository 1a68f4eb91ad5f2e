package svm

import (
	"errors"
	"math"
	"testing"
)

func TestBinarySetDataMapsFirstSeenClass(t *testing.T) {
	m := NewBinarySVM(2, Linear, DefaultKernelParams())
	X := [][]float64{{0, 0}, {1, 1}, {2, 2}}
	if err := m.SetData(X, []int{7, 3, 7}); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	if m.Classes != [2]int{7, 3} {
		t.Errorf("Classes = %v, want [7 3]", m.Classes)
	}
	wantY := []float64{-1, 1, -1}
	for i, y := range m.Kernel.Y {
		if y != wantY[i] {
			t.Errorf("Y[%d] = %v, want %v", i, y, wantY[i])
		}
	}
	if raw, ok := m.ClassToRawOutput(3); !ok || raw != 1 {
		t.Errorf("ClassToRawOutput(3) = %v, %v", raw, ok)
	}
	if _, ok := m.ClassToRawOutput(5); ok {
		t.Error("ClassToRawOutput(5) should report an unknown class")
	}
	if m.Class(0) != 7 || m.Class(1) != 3 {
		t.Errorf("Class(0), Class(1) = %d, %d", m.Class(0), m.Class(1))
	}
	if len(m.Alpha) != 3 || m.Beta != 0 {
		t.Errorf("alpha and beta should start at zero, got %v, %v", m.Alpha, m.Beta)
	}
}

func TestBinarySetDataErrors(t *testing.T) {
	X := [][]float64{{0, 0}, {1, 1}, {2, 2}}

	tests := []struct {
		name string
		X    [][]float64
		y    []int
		want error
	}{
		{"empty", nil, nil, ErrEmptyData},
		{"length mismatch", X, []int{1, 2}, ErrDimensionMismatch},
		{"ragged", [][]float64{{0, 0}, {1}}, []int{1, 2}, ErrDimensionMismatch},
		{"three classes", X, []int{1, 2, 3}, ErrTooManyClasses},
		{"one class", X, []int{4, 4, 4}, ErrTooFewClasses},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewBinarySVM(2, RBF, DefaultKernelParams())
			if err := m.SetData(tt.X, tt.y); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	inferred := NewBinarySVM(0, RBF, DefaultKernelParams())
	if err := inferred.SetData(X, []int{4, 4, 4}); !errors.Is(err, ErrTooFewClasses) {
		t.Fatalf("one class: got %v, want ErrTooFewClasses", err)
	}
	if inferred.InDim != 0 {
		t.Errorf("failed SetData left InDim = %d, want 0", inferred.InDim)
	}
	if err := inferred.SetData([][]float64{{0}, {1}}, []int{0, 1}); err != nil {
		t.Fatalf("SetData after a rejected call: %v", err)
	}
	if inferred.InDim != 1 {
		t.Errorf("InDim = %d, want 1 inferred from the data", inferred.InDim)
	}

	m := NewBinarySVM(2, RBF, DefaultKernelParams())
	if err := m.SetData(X, []int{0, 1, 0}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := m.SetData(X, []int{0, 1, 0}); !errors.Is(err, ErrDataAlreadySet) {
		t.Errorf("second SetData: got %v, want ErrDataAlreadySet", err)
	}
}

func TestBinaryZeroOutputGoesToSecondClass(t *testing.T) {
	m := NewBinarySVM(2, RBF, DefaultKernelParams())
	if err := m.SetData([][]float64{{0, 0}, {1, 1}}, []int{10, 20}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if got := m.RawOutput([]float64{0.5, 0.5}); got != 0 {
		t.Fatalf("untrained raw output = %v, want 0", got)
	}
	if got := m.Classify([]float64{0.5, 0.5}); got != 20 {
		t.Errorf("Classify = %d, want 20", got)
	}
	if m.RawOutputToClass(-1e-300) != 10 {
		t.Error("negative raw output should map to the first class")
	}
}

func TestBinaryRawOutput(t *testing.T) {
	m := NewBinarySVM(1, Linear, DefaultKernelParams())
	if err := m.SetData([][]float64{{-1}, {1}}, []int{0, 1}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	m.Alpha = []float64{0.5, 0.5}
	m.Beta = 0.25

	// 0.5*(-1)*(-1*x) + 0.5*(1)*(1*x) - 0.25 = x - 0.25
	for _, x := range []float64{-2, 0, 0.25, 3} {
		if got, want := m.RawOutput([]float64{x}), x-0.25; math.Abs(got-want) > 1e-12 {
			t.Errorf("RawOutput(%v) = %v, want %v", x, got, want)
		}
		if got, want := m.FunctionalMargin([]float64{x}), x; math.Abs(got-want) > 1e-12 {
			t.Errorf("FunctionalMargin(%v) = %v, want %v", x, got, want)
		}
	}
	got := m.ClassifyBatch([][]float64{{-1}, {0.2}, {0.3}})
	want := []int{0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ClassifyBatch[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if sv := m.SupportVectors(); len(sv) != 2 {
		t.Errorf("SupportVectors = %v, want both samples", sv)
	}
}

func TestBinaryWeights(t *testing.T) {
	m := NewBinarySVM(2, SimplePoly, DefaultKernelParams())
	X := [][]float64{{1, 0}, {0, 1}}
	if err := m.SetData(X, []int{0, 1}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	m.Alpha = []float64{2, 3}

	w, err := m.Weights()
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	// -2*(1,0,0) + 3*(0,0,1)
	want := []float64{-2, 0, 3}
	for i := range want {
		if math.Abs(w[i]-want[i]) > 1e-12 {
			t.Errorf("w[%d] = %v, want %v", i, w[i], want[i])
		}
	}

	x := []float64{0.7, -0.4}
	phi, _ := m.Kernel.Phi(x)
	dot := 0.0
	for i := range w {
		dot += w[i] * phi[i]
	}
	if math.Abs(dot-m.FunctionalMargin(x)) > 1e-12 {
		t.Errorf("w.phi(x) = %v, functional margin = %v", dot, m.FunctionalMargin(x))
	}

	rbf := NewBinarySVM(2, RBF, DefaultKernelParams())
	if _, err := rbf.Weights(); !errors.Is(err, ErrNotExplicit) {
		t.Errorf("rbf Weights: got %v, want ErrNotExplicit", err)
	}
}

type sliceDataset struct {
	X [][]float64
	y []int
}

func (d sliceDataset) Inputs() [][]float64 { return d.X }
func (d sliceDataset) Targets() []int      { return d.y }

func TestBinarySetDataset(t *testing.T) {
	m := NewBinarySVM(0, Linear, DefaultKernelParams())
	ds := sliceDataset{X: [][]float64{{1, 2, 3}, {4, 5, 6}}, y: []int{1, 2}}
	if err := m.SetDataset(ds); err != nil {
		t.Fatalf("SetDataset: %v", err)
	}
	if m.InDim != 3 {
		t.Errorf("InDim = %d, want 3 inferred from the data", m.InDim)
	}
}
