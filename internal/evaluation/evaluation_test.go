package evaluation

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"mlsvm/internal/data"
	"mlsvm/internal/models"
	"mlsvm/internal/preprocessing"
)

func TestCalculateMetrics(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 1, 1, 0}
	m, err := CalculateMetrics(yTrue, yPred, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("CalculateMetrics: %v", err)
	}

	if math.Abs(m.Accuracy-4.0/6) > 1e-12 {
		t.Errorf("Accuracy = %v, want 2/3", m.Accuracy)
	}
	wantCM := [][]int{{2, 1, 0}, {0, 2, 0}, {1, 0, 0}}
	for i := range wantCM {
		if !slices.Equal(m.ConfusionMatrix[i], wantCM[i]) {
			t.Errorf("confusion row %d = %v, want %v", i, m.ConfusionMatrix[i], wantCM[i])
		}
	}

	c0 := m.PerClass[0]
	if math.Abs(c0.Precision-2.0/3) > 1e-12 || math.Abs(c0.Recall-2.0/3) > 1e-12 || c0.Support != 3 {
		t.Errorf("class 0 = %+v", c0)
	}
	c2 := m.PerClass[2]
	if c2.Precision != 0 || c2.Recall != 0 || c2.F1Score != 0 {
		t.Errorf("class 2 = %+v, want zeros", c2)
	}
	// recall: 2/3, 1, 0
	if math.Abs(m.BalancedAccuracy-5.0/9) > 1e-12 {
		t.Errorf("BalancedAccuracy = %v, want 5/9", m.BalancedAccuracy)
	}
	if math.Abs(m.WeightedRecall-m.Accuracy) > 1e-12 {
		t.Errorf("WeightedRecall = %v, want accuracy %v", m.WeightedRecall, m.Accuracy)
	}

	if _, err := CalculateMetrics([]int{1}, []int{1, 2}, []int{1, 2}); err == nil {
		t.Error("expected an error for a length mismatch")
	}
	inferred, err := CalculateMetrics([]int{4, 2}, []int{4, 9}, nil)
	if err != nil {
		t.Fatalf("CalculateMetrics without classes: %v", err)
	}
	if !slices.Equal(inferred.Classes, []int{2, 4, 9}) || inferred.Accuracy != 0.5 {
		t.Errorf("inferred classes = %v, accuracy = %v", inferred.Classes, inferred.Accuracy)
	}
	if !strings.Contains(m.FormatMetrics(), "Accuracy: 0.6667") {
		t.Errorf("FormatMetrics = %q", m.FormatMetrics())
	}
	if table := m.FormatConfusionMatrix([]string{"a", "b", "c"}); !strings.Contains(table, "a") {
		t.Errorf("FormatConfusionMatrix = %q", table)
	}
}

func TestTrainTestSplit(t *testing.T) {
	y := make([]int, 100)
	for i := range y {
		if i >= 80 {
			y[i] = 1
		}
	}

	s := NewTrainTestSplitter(0.25, 7, true)
	train, test, err := s.SplitIndices(y)
	if err != nil {
		t.Fatalf("SplitIndices: %v", err)
	}
	if len(train) != 75 || len(test) != 25 {
		t.Errorf("sizes = %d/%d, want 75/25", len(train), len(test))
	}
	all := append(slices.Clone(train), test...)
	slices.Sort(all)
	for i, idx := range all {
		if idx != i {
			t.Fatalf("split is not a partition: index %d at %d", idx, i)
		}
	}

	train2, test2, _ := NewTrainTestSplitter(0.25, 7, true).SplitIndices(y)
	if !slices.Equal(train, train2) || !slices.Equal(test, test2) {
		t.Error("same seed produced a different split")
	}

	s.Stratified = true
	_, test, err = s.SplitIndices(y)
	if err != nil {
		t.Fatalf("stratified SplitIndices: %v", err)
	}
	ones := 0
	for _, i := range test {
		ones += y[i]
	}
	if len(test) != 25 || ones != 5 {
		t.Errorf("stratified test set has %d rows with %d of class 1, want 25 and 5", len(test), ones)
	}

	if _, _, err := NewTrainTestSplitter(1.5, 1, false).SplitIndices(y); err == nil {
		t.Error("expected an error for test size 1.5")
	}
}

func TestKFoldSplitter(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2}

	plain, err := NewKFoldSplitter(5, false, 0).Folds(y)
	if err != nil {
		t.Fatalf("Folds: %v", err)
	}
	if len(plain) != 5 || len(plain[4]) != 4 {
		t.Errorf("plain folds = %v", plain)
	}

	kfs := NewKFoldSplitter(3, true, 3)
	kfs.Stratified = true
	folds, err := kfs.Folds(y)
	if err != nil {
		t.Fatalf("Folds: %v", err)
	}
	seen := make(map[int]bool)
	for f, fold := range folds {
		classes := make(map[int]int)
		for _, i := range fold {
			if seen[i] {
				t.Fatalf("index %d appears in two folds", i)
			}
			seen[i] = true
			classes[y[i]]++
		}
		if classes[0] != 2 || classes[1] != 1 || classes[2] != 1 {
			t.Errorf("fold %d class counts = %v", f, classes)
		}
		if train := Complement(len(y), fold); len(train)+len(fold) != len(y) {
			t.Errorf("fold %d complement has %d rows", f, len(train))
		}
	}
	if len(seen) != len(y) {
		t.Errorf("folds cover %d of %d samples", len(seen), len(y))
	}

	if _, err := NewKFoldSplitter(1, false, 0).Folds(y); err == nil {
		t.Error("expected an error for a single fold")
	}
}

func blobDataset(t *testing.T, n int) *data.Dataset {
	t.Helper()
	r := rand.New(rand.NewSource(5))
	centers := [][2]float64{{0, 0}, {4, 0}, {0, 4}}
	var X [][]decimal.Decimal
	var labels []string
	for c, center := range centers {
		for i := 0; i < n; i++ {
			X = append(X, []decimal.Decimal{
				decimal.NewFromFloat(center[0] + 0.5*r.NormFloat64()),
				decimal.NewFromFloat(center[1] + 0.5*r.NormFloat64()),
			})
			labels = append(labels, []string{"a", "b", "c"}[c])
		}
	}
	encoder := preprocessing.NewLabelEncoder()
	y, err := encoder.FitTransform(labels)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	ds, err := data.NewDataset(X, y, []string{"x", "y"}, encoder, "blobs")
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func TestCrossValidate(t *testing.T) {
	ds := blobDataset(t, 20)
	cfg := models.DefaultConfig(models.AlgorithmSVC)
	cfg.Gamma = 0.5
	model, err := models.CreateModel(cfg)
	if err != nil {
		t.Fatalf("CreateModel: %v", err)
	}

	cv := NewCrossValidator(4, true)
	res, err := cv.CrossValidate(context.Background(), ds, model)
	if err != nil {
		t.Fatalf("CrossValidate: %v", err)
	}
	if len(res.Folds) != 4 {
		t.Fatalf("got %d folds, want 4", len(res.Folds))
	}
	for _, f := range res.Folds {
		if f.Train+f.Test != ds.Len() {
			t.Errorf("fold %d uses %d+%d rows", f.Fold, f.Train, f.Test)
		}
	}
	if res.Mean < 0.9 {
		t.Errorf("mean accuracy = %v on well separated blobs", res.Mean)
	}
	if model.GetClasses() != nil {
		t.Error("cross validation must not train the passed model")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cv.CrossValidate(ctx, ds, model); err == nil {
		t.Error("expected a cancelled context to fail cross validation")
	}
}
