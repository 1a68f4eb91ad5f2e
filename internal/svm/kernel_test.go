package svm

import (
	"errors"
	"math"
	"testing"
)

func TestRBFKernelDiagonalIsOne(t *testing.T) {
	k := NewKernel(RBF, KernelParams{Gamma: 2.5})
	for _, x := range [][]float64{
		{0, 0},
		{1.5, -3.25},
		{1e6, -1e6, 42},
	} {
		if got := k.K(x, x); got != 1.0 {
			t.Errorf("K(%v, %v) = %v, want 1", x, x, got)
		}
	}
}

func TestLinearKernelIsDot(t *testing.T) {
	k := NewKernel(Linear, DefaultKernelParams())
	a := []float64{1, 2, 3}
	b := []float64{4, -5, 6}
	if got, want := k.K(a, b), 1*4.0+2*-5.0+3*6.0; got != want {
		t.Errorf("K = %v, want %v", got, want)
	}
}

func TestClosedFormKernels(t *testing.T) {
	a := []float64{0.5, 1}
	b := []float64{2, -1}
	dot := 0.5*2 + 1*-1.0
	params := KernelParams{Degree: 3, Gamma: 0.7, Coef0: 1.5}

	tests := []struct {
		kind KernelKind
		want float64
	}{
		{Linear, dot},
		{Poly, math.Pow(0.7*dot+1.5, 3)},
		{RBF, math.Exp(-0.7 * ((0.5-2)*(0.5-2) + (1+1)*(1+1)))},
		{Sigmoid, math.Tanh(0.7*dot + 1.5)},
		{SimplePoly, dot * dot},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			k := NewKernel(tt.kind, params)
			if got := k.K(a, b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("K = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimplePolyPhi(t *testing.T) {
	k := NewKernel(SimplePoly, DefaultKernelParams())
	a := []float64{0.3, -1.2}
	b := []float64{2, 0.5}

	pa, err := k.Phi(a)
	if err != nil {
		t.Fatalf("Phi: %v", err)
	}
	pb, _ := k.Phi(b)
	dot := 0.0
	for i := range pa {
		dot += pa[i] * pb[i]
	}
	if math.Abs(dot-k.K(a, b)) > 1e-12 {
		t.Errorf("dot(phi(a), phi(b)) = %v, K(a, b) = %v", dot, k.K(a, b))
	}
	if k.FeatureSpaceDim() != 3 || !k.IsExplicit() {
		t.Errorf("simplepoly should be explicit with a 3-d feature space")
	}

	if _, err := NewKernel(RBF, DefaultKernelParams()).Phi(a); !errors.Is(err, ErrNotExplicit) {
		t.Errorf("Phi on rbf: got %v, want ErrNotExplicit", err)
	}
	if _, err := k.Phi([]float64{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Phi on 3-d input: got %v, want ErrDimensionMismatch", err)
	}
}

func TestKRowsBroadcasts(t *testing.T) {
	k := NewKernel(Linear, DefaultKernelParams())
	X := [][]float64{{1, 0}, {0, 1}, {2, 2}}
	got := k.KRows(X, []float64{3, 4})
	want := []float64{3, 4, 14}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKernelSetData(t *testing.T) {
	X := [][]float64{{0, 0}, {1, 1}, {2, 0}}

	k := NewKernel(RBF, DefaultKernelParams())
	if err := k.SetData(X, []float64{-1, 1, -1}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if k.L() != 3 || k.Dim() != 2 {
		t.Errorf("L, Dim = %d, %d, want 3, 2", k.L(), k.Dim())
	}
	for i, qd := range k.QD {
		if qd != 1 {
			t.Errorf("QD[%d] = %v, want 1", i, qd)
		}
	}
	if err := k.SetData(X, []float64{-1, 1, -1}); !errors.Is(err, ErrDataAlreadySet) {
		t.Errorf("second SetData: got %v, want ErrDataAlreadySet", err)
	}

	k = NewKernel(RBF, DefaultKernelParams())
	if err := k.SetData(X, []float64{-1, 1, 2}); !errors.Is(err, ErrTooManyClasses) {
		t.Errorf("three labels: got %v, want ErrTooManyClasses", err)
	}
	k = NewKernel(RBF, DefaultKernelParams())
	if err := k.SetData(X, []float64{-1, 1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short labels: got %v, want ErrDimensionMismatch", err)
	}
	if err := k.SetData(nil, nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("empty: got %v, want ErrEmptyData", err)
	}
}

func TestQRow(t *testing.T) {
	X := [][]float64{{1, 0}, {0, 2}, {1, 1}}
	Y := []float64{1, -1, 1}
	k := NewKernel(Linear, DefaultKernelParams())
	if err := k.SetData(X, Y); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	for i := range X {
		row := k.QRow(i)
		for j := range X {
			want := Y[i] * Y[j] * k.KIdx(i, j)
			if row[j] != want {
				t.Errorf("Q[%d][%d] = %v, want %v", i, j, row[j], want)
			}
		}
	}
	if k.QRow(1)[1] != k.QD[1] {
		t.Errorf("Q[1][1] should equal QD[1]")
	}
}

func TestQRowCacheIsBounded(t *testing.T) {
	X := make([][]float64, 50)
	Y := make([]float64, 50)
	for i := range X {
		X[i] = []float64{float64(i), float64(i % 7)}
		Y[i] = float64(2*(i%2) - 1)
	}
	k := NewKernel(RBF, KernelParams{Gamma: 0.1})
	if err := k.SetData(X, Y); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	first := append([]float64(nil), k.QRow(0)...)
	for i := range X {
		k.QRow(i)
	}
	if got := k.CachedRows(); got != 2 {
		t.Errorf("CachedRows = %d, want 2 with a zero cache budget", got)
	}
	again := k.QRow(0)
	for j := range first {
		if first[j] != again[j] {
			t.Fatalf("recomputed row differs at %d: %v vs %v", j, first[j], again[j])
		}
	}
}

func TestCacheRows(t *testing.T) {
	tests := []struct {
		l      int
		sizeMB float64
		want   int
	}{
		{l: 100, sizeMB: 0, want: 2},
		{l: 100, sizeMB: 100, want: 100},
		{l: 1 << 20, sizeMB: 64, want: 8},
		{l: 0, sizeMB: 10, want: 2},
	}
	for _, tt := range tests {
		if got := cacheRows(tt.l, tt.sizeMB); got != tt.want {
			t.Errorf("cacheRows(%d, %v) = %d, want %d", tt.l, tt.sizeMB, got, tt.want)
		}
	}
}

func TestParseKernelKind(t *testing.T) {
	tests := map[string]KernelKind{
		"linear":     Linear,
		"0":          Linear,
		"POLY":       Poly,
		"polynomial": Poly,
		"rbf":        RBF,
		" 2 ":        RBF,
		"sigmoid":    Sigmoid,
		"simplepoly": SimplePoly,
		"10":         SimplePoly,
	}
	for in, want := range tests {
		got, err := ParseKernelKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKernelKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKernelKind("laplace"); err == nil {
		t.Error("expected an error for an unknown kernel")
	}
}
