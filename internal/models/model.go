package models

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"
)

// Model is a trainable classifier over decimal feature matrices. Labels
// are the encoded class ids produced by preprocessing.LabelEncoder.
type Model interface {
	Fit(ctx context.Context, X [][]decimal.Decimal, y []int) error
	Predict(X [][]decimal.Decimal) ([]int, error)
	PredictProba(X [][]decimal.Decimal) ([][]decimal.Decimal, error)
	GetType() string
	GetName() string
	GetParams() map[string]any
	GetClasses() []int
	Config() ModelConfig
	Reset()
}

type BaseModel struct {
	Name    string
	Type    string
	Params  map[string]any
	Classes []int
}

func (bm *BaseModel) GetType() string {
	return bm.Type
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() map[string]any {
	return bm.Params
}

func (bm *BaseModel) GetClasses() []int {
	return bm.Classes
}

// ExtractClasses returns the distinct labels of y in ascending order.
func ExtractClasses(y []int) []int {
	classMap := make(map[int]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	slices.Sort(classes)

	return classes
}

func ToFloat64(X [][]decimal.Decimal) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v.InexactFloat64()
		}
	}
	return out
}
