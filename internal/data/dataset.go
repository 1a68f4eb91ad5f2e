package data

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"mlsvm/internal/preprocessing"
)

// Dataset is a labelled feature matrix. Y holds encoded class ids; Encoder
// maps them back to the names found in the source file.
type Dataset struct {
	X        [][]decimal.Decimal
	Y        []int
	Features []string
	Classes  []int
	Encoder  *preprocessing.LabelEncoder
	Source   string
}

func NewDataset(X [][]decimal.Decimal, y []int, features []string, encoder *preprocessing.LabelEncoder, source string) (*Dataset, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}
	ds := &Dataset{
		X:        X,
		Y:        y,
		Features: features,
		Encoder:  encoder,
		Source:   source,
	}
	ds.Classes = sortedClasses(y)
	return ds, nil
}

func sortedClasses(y []int) []int {
	seen := make(map[int]bool)
	var classes []int
	for _, label := range y {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	slices.Sort(classes)
	return classes
}

// Inputs converts the feature matrix to float64 rows.
func (d *Dataset) Inputs() [][]float64 {
	out := make([][]float64, len(d.X))
	for i, row := range d.X {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v.InexactFloat64()
		}
	}
	return out
}

func (d *Dataset) Targets() []int {
	return d.Y
}

func (d *Dataset) Len() int {
	return len(d.X)
}

func (d *Dataset) Dim() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

func (d *Dataset) ClassHistogram() map[int]int {
	hist := make(map[int]int, len(d.Classes))
	for _, label := range d.Y {
		hist[label]++
	}
	return hist
}

// ClassNames returns the source names of Classes.
func (d *Dataset) ClassNames() []string {
	names := make([]string, len(d.Classes))
	for i, c := range d.Classes {
		names[i] = d.Encoder.Name(c)
	}
	return names
}

// Subset returns the rows at idx. Rows are shared with d, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	sub := &Dataset{
		X:        make([][]decimal.Decimal, len(idx)),
		Y:        make([]int, len(idx)),
		Features: d.Features,
		Encoder:  d.Encoder,
		Source:   d.Source,
	}
	for i, k := range idx {
		sub.X[i] = d.X[k]
		sub.Y[i] = d.Y[k]
	}
	sub.Classes = sortedClasses(sub.Y)
	return sub
}

// WithFeatures returns a copy of d whose feature matrix is replaced by X,
// e.g. after scaling.
func (d *Dataset) WithFeatures(X [][]decimal.Decimal) (*Dataset, error) {
	if len(X) != len(d.Y) {
		return nil, fmt.Errorf("feature matrix has %d rows, dataset has %d", len(X), len(d.Y))
	}
	out := *d
	out.X = X
	return &out, nil
}
