package preprocessing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ScaleMinMax   = "minmax"
	ScaleStandard = "standard"
	ScaleRaw      = "raw"
)

// NormalizeScaleType maps the accepted aliases onto ScaleMinMax,
// ScaleStandard or ScaleRaw.
func NormalizeScaleType(scaleType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scaleType)) {
	case "minmax", "normalized", "normalize":
		return ScaleMinMax, nil
	case "standard", "standardized", "zscore":
		return ScaleStandard, nil
	case "", "raw", "none":
		return ScaleRaw, nil
	default:
		return "", fmt.Errorf("unknown scale type: %s", scaleType)
	}
}

// Scaler rescales every feature column independently. Statistics are kept
// as decimals so a fitted scaler reproduces the same values when reloaded.
type Scaler struct {
	ScaleType string
	IsFitted  bool
	// Offset is subtracted from a value, which is then divided by Scale.
	Offset []decimal.Decimal
	Scale  []decimal.Decimal
}

func NewScaler(scaleType string) *Scaler {
	return &Scaler{ScaleType: scaleType}
}

func (s *Scaler) Fit(X [][]decimal.Decimal) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}
	kind, err := NormalizeScaleType(s.ScaleType)
	if err != nil {
		return err
	}
	s.ScaleType = kind

	nFeatures := len(X[0])
	s.Offset = make([]decimal.Decimal, nFeatures)
	s.Scale = make([]decimal.Decimal, nFeatures)
	one := decimal.NewFromInt(1)

	for j := 0; j < nFeatures; j++ {
		column := make([]decimal.Decimal, len(X))
		for i, row := range X {
			if len(row) != nFeatures {
				return fmt.Errorf("sample %d has %d features, expected %d", i, len(row), nFeatures)
			}
			column[i] = row[j]
		}

		switch kind {
		case ScaleMinMax:
			lo, hi := decimal.Min(column[0], column[1:]...), decimal.Max(column[0], column[1:]...)
			s.Offset[j], s.Scale[j] = lo, hi.Sub(lo)
		case ScaleStandard:
			mean, std := meanStd(column)
			s.Offset[j], s.Scale[j] = mean, std
		default:
			s.Offset[j], s.Scale[j] = decimal.Zero, one
		}
		// A constant column maps to zero.
		if s.Scale[j].IsZero() {
			s.Scale[j] = one
		}
	}

	s.IsFitted = true
	return nil
}

func meanStd(column []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(column)))
	mean := decimal.Sum(column[0], column[1:]...).Div(n)

	variance := decimal.Zero
	for _, v := range column {
		d := v.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	std := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
	return mean, std
}

func (s *Scaler) Transform(X [][]decimal.Decimal) ([][]decimal.Decimal, error) {
	if !s.IsFitted {
		return nil, fmt.Errorf("scaler must be fitted before transform")
	}

	result := make([][]decimal.Decimal, len(X))
	for i, row := range X {
		if len(row) != len(s.Scale) {
			return nil, fmt.Errorf("sample %d has %d features, scaler was fitted on %d", i, len(row), len(s.Scale))
		}
		result[i] = make([]decimal.Decimal, len(row))
		if s.ScaleType == ScaleRaw {
			copy(result[i], row)
			continue
		}
		for j, v := range row {
			result[i][j] = v.Sub(s.Offset[j]).Div(s.Scale[j])
		}
	}
	return result, nil
}

func (s *Scaler) FitTransform(X [][]decimal.Decimal) ([][]decimal.Decimal, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
