package svm

import (
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
)

type KernelKind int

const (
	Linear KernelKind = iota
	Poly
	RBF
	Sigmoid
	// SimplePoly is the degree-2 polynomial kernel with an explicit feature
	// function over 2-dimensional inputs.
	SimplePoly
)

var kernelNames = map[KernelKind]string{
	Linear:     "linear",
	Poly:       "poly",
	RBF:        "rbf",
	Sigmoid:    "sigmoid",
	SimplePoly: "simplepoly",
}

func (k KernelKind) String() string {
	if name, ok := kernelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KernelKind(%d)", int(k))
}

// ParseKernelKind accepts kernel names as well as the numeric kernel type
// codes used by libsvm style tools (0 linear, 1 poly, 2 rbf, 3 sigmoid,
// 10 simplepoly).
func ParseKernelKind(s string) (KernelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "0":
		return Linear, nil
	case "poly", "polynomial", "1":
		return Poly, nil
	case "rbf", "gaussian", "2":
		return RBF, nil
	case "sigmoid", "tanh", "3":
		return Sigmoid, nil
	case "simplepoly", "simple_poly", "10":
		return SimplePoly, nil
	default:
		return 0, fmt.Errorf("unknown kernel: %q", s)
	}
}

type KernelParams struct {
	Degree float64 `yaml:"degree"`
	Gamma  float64 `yaml:"gamma"`
	Coef0  float64 `yaml:"coef0"`
	// CacheSize bounds the Q row cache, in megabytes.
	CacheSize float64 `yaml:"cache_size"`
}

func DefaultKernelParams() KernelParams {
	return KernelParams{
		Degree:    3,
		Gamma:     1,
		Coef0:     0,
		CacheSize: 100,
	}
}

// Kernel computes similarities between feature vectors and holds the
// training set the similarities are taken against. Rows of the matrix
// Q[i][j] = Y[i]*Y[j]*k(X[i],X[j]) are computed on demand and kept in a
// bounded LRU cache.
type Kernel struct {
	Kind      KernelKind
	Degree    float64
	Gamma     float64
	Coef0     float64
	CacheSize float64

	X  [][]float64
	Y  []float64
	QD []float64

	cache *lru.Cache[int, []float64]
}

func NewKernel(kind KernelKind, params KernelParams) *Kernel {
	return &Kernel{
		Kind:      kind,
		Degree:    params.Degree,
		Gamma:     params.Gamma,
		Coef0:     params.Coef0,
		CacheSize: params.CacheSize,
	}
}

func (k *Kernel) Params() KernelParams {
	return KernelParams{
		Degree:    k.Degree,
		Gamma:     k.Gamma,
		Coef0:     k.Coef0,
		CacheSize: k.CacheSize,
	}
}

// SetData stores the training vectors and their canonical labels and
// computes the diagonal of Q. It may be called only once per kernel.
func (k *Kernel) SetData(X [][]float64, Y []float64) error {
	if k.X != nil {
		return ErrDataAlreadySet
	}
	if len(X) == 0 {
		return ErrEmptyData
	}
	if len(X) != len(Y) {
		return fmt.Errorf("%w: %d vectors, %d labels", ErrDimensionMismatch, len(X), len(Y))
	}

	distinct := make(map[float64]struct{}, 2)
	for _, y := range Y {
		distinct[y] = struct{}{}
	}
	if len(distinct) > 2 {
		return fmt.Errorf("%w: found %d", ErrTooManyClasses, len(distinct))
	}

	k.X = make([][]float64, len(X))
	copy(k.X, X)
	k.Y = make([]float64, len(Y))
	copy(k.Y, Y)

	k.QD = make([]float64, len(X))
	for i, x := range k.X {
		k.QD[i] = k.K(x, x)
	}
	k.cache = nil
	return nil
}

// L returns the number of training vectors.
func (k *Kernel) L() int {
	return len(k.Y)
}

// Dim returns the dimensionality of the input space.
func (k *Kernel) Dim() int {
	if len(k.X) == 0 {
		return 0
	}
	return len(k.X[0])
}

// K evaluates the kernel function for a pair of vectors.
func (k *Kernel) K(a, b []float64) float64 {
	switch k.Kind {
	case Linear:
		return floats.Dot(a, b)
	case Poly:
		return math.Pow(k.Gamma*floats.Dot(a, b)+k.Coef0, k.Degree)
	case RBF:
		d := floats.Distance(a, b, 2)
		return math.Exp(-k.Gamma * d * d)
	case Sigmoid:
		return math.Tanh(k.Gamma*floats.Dot(a, b) + k.Coef0)
	case SimplePoly:
		d := floats.Dot(a, b)
		return d * d
	default:
		panic(fmt.Sprintf("svm: unknown kernel kind %d", int(k.Kind)))
	}
}

// KRows evaluates k(X[r], x) for every row of X.
func (k *Kernel) KRows(X [][]float64, x []float64) []float64 {
	out := make([]float64, len(X))
	for r, row := range X {
		out[r] = k.K(row, x)
	}
	return out
}

// KIdx evaluates the kernel on two stored training vectors.
func (k *Kernel) KIdx(i, j int) float64 {
	return k.K(k.X[i], k.X[j])
}

// QRow returns row i of Q. The returned slice is shared with the cache and
// must not be modified. QRow is not safe for concurrent use.
func (k *Kernel) QRow(i int) []float64 {
	if k.cache == nil {
		k.cache = newRowCache(k.L(), k.CacheSize)
	}
	if row, ok := k.cache.Get(i); ok {
		return row
	}
	row := k.calcQRow(i)
	k.cache.Add(i, row)
	return row
}

func (k *Kernel) calcQRow(i int) []float64 {
	xi := k.X[i]
	yi := k.Y[i]
	row := make([]float64, len(k.X))
	for j, xj := range k.X {
		row[j] = yi * k.Y[j] * k.K(xi, xj)
	}
	return row
}

// CachedRows reports how many Q rows are currently cached.
func (k *Kernel) CachedRows() int {
	if k.cache == nil {
		return 0
	}
	return k.cache.Len()
}

func (k *Kernel) IsExplicit() bool {
	return k.Kind == SimplePoly
}

// Phi maps x into the feature space of an explicit kernel, so that
// K(a, b) == dot(Phi(a), Phi(b)).
func (k *Kernel) Phi(x []float64) ([]float64, error) {
	if !k.IsExplicit() {
		return nil, fmt.Errorf("%w: %s", ErrNotExplicit, k.Kind)
	}
	if len(x) != 2 {
		return nil, fmt.Errorf("%w: simplepoly needs 2 inputs, got %d", ErrDimensionMismatch, len(x))
	}
	return []float64{
		x[0] * x[0],
		math.Sqrt2 * x[0] * x[1],
		x[1] * x[1],
	}, nil
}

// FeatureSpaceDim returns the dimensionality of Phi's output, or 0 for
// kernels without an explicit feature function.
func (k *Kernel) FeatureSpaceDim() int {
	if !k.IsExplicit() {
		return 0
	}
	return 3
}
