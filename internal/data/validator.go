package data

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

type DataValidator struct {
	// MinPerClass is the smallest number of samples each class must have.
	MinPerClass int
}

func NewDataValidator() *DataValidator {
	return &DataValidator{MinPerClass: 1}
}

func (dv *DataValidator) ValidateDataset(ds *Dataset) error {
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("dataset is empty")
	}
	if len(ds.X) != len(ds.Y) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(ds.X), len(ds.Y))
	}

	nFeatures := ds.Dim()
	if nFeatures == 0 {
		return fmt.Errorf("features cannot be empty")
	}
	for i, sample := range ds.X {
		if len(sample) != nFeatures {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
	}
	if len(ds.Features) != 0 && len(ds.Features) != nFeatures {
		return fmt.Errorf("%d feature names for %d features", len(ds.Features), nFeatures)
	}

	return dv.ValidateLabels(ds.Y)
}

func (dv *DataValidator) ValidateLabels(y []int) error {
	if len(y) == 0 {
		return fmt.Errorf("labels are empty")
	}

	classCount := make(map[int]int)
	for _, label := range y {
		classCount[label]++
	}
	if len(classCount) < 2 {
		return fmt.Errorf("dataset must have at least 2 classes, found %d", len(classCount))
	}
	for class, n := range classCount {
		if n < dv.MinPerClass {
			return fmt.Errorf("class %d has %d samples, need at least %d", class, n, dv.MinPerClass)
		}
	}
	return nil
}

func (dv *DataValidator) ValidateTrainTestSplit(train, test *Dataset) error {
	if err := dv.ValidateDataset(train); err != nil {
		return fmt.Errorf("training set validation failed: %w", err)
	}
	if test == nil || test.Len() == 0 {
		return fmt.Errorf("test set is empty")
	}
	if train.Dim() != test.Dim() {
		return fmt.Errorf("train and test sets have different feature counts: %d vs %d", train.Dim(), test.Dim())
	}
	return nil
}

type FeatureStats struct {
	Name string
	Min  decimal.Decimal
	Max  decimal.Decimal
	Mean decimal.Decimal
}

type DatasetStats struct {
	Samples           int
	Features          int
	Classes           int
	ClassDistribution map[int]int
	FeatureStats      []FeatureStats
}

func (dv *DataValidator) GetDatasetStats(ds *Dataset) DatasetStats {
	stats := DatasetStats{ClassDistribution: map[int]int{}}
	if ds == nil || ds.Len() == 0 {
		return stats
	}

	stats.Samples = ds.Len()
	stats.Features = ds.Dim()
	stats.ClassDistribution = ds.ClassHistogram()
	stats.Classes = len(stats.ClassDistribution)

	n := decimal.NewFromInt(int64(ds.Len()))
	column := make([]decimal.Decimal, ds.Len())
	for j := 0; j < stats.Features; j++ {
		for i, row := range ds.X {
			column[i] = row[j]
		}
		fs := FeatureStats{
			Min:  decimal.Min(column[0], column[1:]...),
			Max:  decimal.Max(column[0], column[1:]...),
			Mean: decimal.Sum(column[0], column[1:]...).Div(n),
		}
		if j < len(ds.Features) {
			fs.Name = ds.Features[j]
		}
		stats.FeatureStats = append(stats.FeatureStats, fs)
	}
	return stats
}

// SortedDistribution lists the class counts in ascending class order.
func (s DatasetStats) SortedDistribution() ([]int, []int) {
	classes := make([]int, 0, len(s.ClassDistribution))
	for c := range s.ClassDistribution {
		classes = append(classes, c)
	}
	slices.Sort(classes)
	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = s.ClassDistribution[c]
	}
	return classes, counts
}
