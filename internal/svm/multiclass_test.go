package svm

import (
	"context"
	"errors"
	"math"
	"testing"
)

func threeBlobs() ([][]float64, []int) {
	X, y := blobs(11, 20, 0.4, [2]float64{0, 0}, [2]float64{3, 0}, [2]float64{0, 3})
	// Labels 5, 6 and 7 instead of 0, 1 and 2.
	for i := range y {
		y[i] += 5
	}
	return X, y
}

func trainMulticlass(t *testing.T, strategy Strategy, workers int, X [][]float64, y []int) *MulticlassSVM {
	t.Helper()
	m := NewMulticlassSVM(2, strategy, RBF, KernelParams{Gamma: 0.5, CacheSize: 10})
	if err := m.SetData(X, y); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	cfg := DefaultTrainerConfig()
	cfg.Cost = 10
	tr, err := NewMulticlassTrainer(m, cfg, workers)
	if err != nil {
		t.Fatalf("NewMulticlassTrainer: %v", err)
	}
	if err := tr.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !tr.Converged() {
		t.Errorf("not every sub-model converged")
	}
	return m
}

func TestSubModelCardinality(t *testing.T) {
	X, y := threeBlobs()

	ovo := NewMulticlassSVM(2, OneVsOne, RBF, DefaultKernelParams())
	if err := ovo.SetData(X, y); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if ovo.NumSubModels() != 3 {
		t.Errorf("one-vs-one sub-models = %d, want 3", ovo.NumSubModels())
	}
	wantPairs := [][2]int{{5, 6}, {5, 7}, {6, 7}}
	for i, sub := range ovo.SubModels() {
		if sub.Classes != wantPairs[i] {
			t.Errorf("sub-model %d covers %v, want %v", i, sub.Classes, wantPairs[i])
		}
		if sub.SVM.Kernel.L() != 40 {
			t.Errorf("sub-model %s holds %d samples, want 40", sub, sub.SVM.Kernel.L())
		}
		if sub.SVM.Classes != wantPairs[i] {
			t.Errorf("sub-model %s maps %v onto -1/+1", sub, sub.SVM.Classes)
		}
	}

	ova := NewMulticlassSVM(2, OneVsAll, RBF, DefaultKernelParams())
	if err := ova.SetData(X, y); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if ova.NumSubModels() != 3 {
		t.Errorf("one-vs-all sub-models = %d, want 3", ova.NumSubModels())
	}
	for i, sub := range ova.SubModels() {
		if sub.Classes[0] != 5+i || sub.SVM.Kernel.L() != len(X) {
			t.Errorf("sub-model %d: %s with %d samples", i, sub, sub.SVM.Kernel.L())
		}
		if sub.SVM.Classes != [2]int{classTarget, restTarget} {
			t.Errorf("sub-model %s maps %v onto -1/+1", sub, sub.SVM.Classes)
		}
	}
	if got := ova.Classes(); len(got) != 3 || got[0] != 5 || got[2] != 7 {
		t.Errorf("Classes = %v, want [5 6 7]", got)
	}
}

func TestMulticlassSetDataErrors(t *testing.T) {
	m := NewMulticlassSVM(2, OneVsOne, RBF, DefaultKernelParams())
	if err := m.SetData(nil, nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("empty: got %v, want ErrEmptyData", err)
	}
	if err := m.SetData([][]float64{{0, 0}, {1, 1}}, []int{3, 3}); !errors.Is(err, ErrTooFewClasses) {
		t.Errorf("one class: got %v, want ErrTooFewClasses", err)
	}
	if err := m.SetData([][]float64{{0, 0}, {1}}, []int{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("ragged: got %v, want ErrDimensionMismatch", err)
	}
	if err := m.SetData([][]float64{{0, 0}, {1, 1}}, []int{1, 2}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := m.SetData([][]float64{{0, 0}, {1, 1}}, []int{1, 2}); !errors.Is(err, ErrDataAlreadySet) {
		t.Errorf("second SetData: got %v, want ErrDataAlreadySet", err)
	}

	inferred := NewMulticlassSVM(0, OneVsAll, RBF, DefaultKernelParams())
	if err := inferred.SetData([][]float64{{0, 0, 0}, {1, 1, 1}}, []int{3, 3}); !errors.Is(err, ErrTooFewClasses) {
		t.Fatalf("one class: got %v, want ErrTooFewClasses", err)
	}
	if inferred.InDim != 0 {
		t.Errorf("failed SetData left InDim = %d, want 0", inferred.InDim)
	}
	if err := inferred.SetData([][]float64{{0}, {1}, {2}}, []int{1, 2, 3}); err != nil {
		t.Fatalf("SetData after a rejected call: %v", err)
	}
	if inferred.InDim != 1 {
		t.Errorf("InDim = %d, want 1 inferred from the data", inferred.InDim)
	}

	untrained := NewMulticlassSVM(2, OneVsOne, RBF, DefaultKernelParams())
	if _, err := untrained.Classify([]float64{0, 0}); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Classify before SetData: got %v, want ErrNotTrained", err)
	}
	if _, err := m.Classify([]float64{0, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Classify with 3 features: got %v, want ErrDimensionMismatch", err)
	}
}

func TestMulticlassTrainsSeparableBlobs(t *testing.T) {
	X, y := threeBlobs()
	for _, strategy := range []Strategy{OneVsOne, OneVsAll} {
		t.Run(strategy.String(), func(t *testing.T) {
			m := trainMulticlass(t, strategy, 1, X, y)
			got, err := m.ClassifyBatch(X)
			if err != nil {
				t.Fatalf("ClassifyBatch: %v", err)
			}
			wrong := 0
			for i := range y {
				if got[i] != y[i] {
					wrong++
				}
			}
			if wrong > 0 {
				t.Errorf("%d of %d training samples misclassified", wrong, len(y))
			}

			centers := map[int][]float64{5: {0, 0}, 6: {3, 0}, 7: {0, 3}}
			for want, x := range centers {
				if c, _ := m.Classify(x); c != want {
					t.Errorf("center %v classified as %d, want %d", x, c, want)
				}
			}
		})
	}
}

func TestParallelTrainingMatchesSequential(t *testing.T) {
	X, y := threeBlobs()
	seq := trainMulticlass(t, OneVsOne, 1, X, y)
	par := trainMulticlass(t, OneVsOne, 3, X, y)

	for i := range seq.Subs {
		a, b := seq.Subs[i].SVM, par.Subs[i].SVM
		if a.Beta != b.Beta {
			t.Errorf("sub-model %s: beta %v vs %v", seq.Subs[i], a.Beta, b.Beta)
		}
		for j := range a.Alpha {
			if a.Alpha[j] != b.Alpha[j] {
				t.Fatalf("sub-model %s: alpha[%d] %v vs %v", seq.Subs[i], j, a.Alpha[j], b.Alpha[j])
			}
		}
	}
}

// untrainedThreeClass returns a model whose sub-models carry only a
// threshold, so every raw output equals -beta.
func untrainedThreeClass(t *testing.T, strategy Strategy, betas ...float64) *MulticlassSVM {
	t.Helper()
	m := NewMulticlassSVM(1, strategy, Linear, DefaultKernelParams())
	X := [][]float64{{0}, {1}, {2}}
	if err := m.SetData(X, []int{1, 2, 3}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	for i, beta := range betas {
		m.Subs[i].SVM.Beta = beta
	}
	return m
}

func TestOneVsOneTieGoesToLowestLabel(t *testing.T) {
	// 1-vs-2 -> 1, 1-vs-3 -> 3, 2-vs-3 -> 2: one vote each.
	m := untrainedThreeClass(t, OneVsOne, 1, -1, 1)

	votes, err := m.Votes([]float64{0})
	if err != nil {
		t.Fatalf("Votes: %v", err)
	}
	for _, c := range []int{1, 2, 3} {
		if votes[c] != 1 {
			t.Errorf("votes[%d] = %d, want 1", c, votes[c])
		}
	}
	if c, _ := m.Classify([]float64{0}); c != 1 {
		t.Errorf("Classify = %d, want 1", c)
	}

	// Zero raw output goes to the higher label of each pair: 3 gets 2 votes.
	m = untrainedThreeClass(t, OneVsOne, 0, 0, 0)
	if c, _ := m.Classify([]float64{0}); c != 3 {
		t.Errorf("Classify = %d, want 3", c)
	}
}

func TestOneVsAllMargins(t *testing.T) {
	// Margin toward each class equals its sub-model's beta.
	tests := []struct {
		name  string
		betas []float64
		want  int
	}{
		{"single claim", []float64{-1, 0.5, -2}, 2},
		{"largest margin among claims", []float64{0.5, 2, 1}, 2},
		{"tie among claims", []float64{0.5, 2, 2}, 2},
		{"no claims falls back to least negative", []float64{-3, -1, -2}, 2},
		{"zero margin is no claim", []float64{0, -1, -2}, 1},
		{"claim beats larger unclaimed margin", []float64{0, 1e-6, -2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := untrainedThreeClass(t, OneVsAll, tt.betas...)
			got, err := m.Classify([]float64{0})
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOneVsAllAllNaNFails(t *testing.T) {
	m := untrainedThreeClass(t, OneVsAll, math.NaN(), math.NaN(), math.NaN())
	if _, err := m.Classify([]float64{0}); !errors.Is(err, ErrClassificationFailed) {
		t.Errorf("got %v, want ErrClassificationFailed", err)
	}

	m = untrainedThreeClass(t, OneVsAll, math.NaN(), -5, math.NaN())
	if c, err := m.Classify([]float64{0}); err != nil || c != 2 {
		t.Errorf("Classify = %d, %v; want 2", c, err)
	}
}

func TestMulticlassTrainerCostConfiguration(t *testing.T) {
	X, y := threeBlobs()
	newModel := func(strategy Strategy) *MulticlassSVM {
		m := NewMulticlassSVM(2, strategy, RBF, DefaultKernelParams())
		if err := m.SetData(X, y); err != nil {
			t.Fatalf("SetData: %v", err)
		}
		return m
	}

	tests := []struct {
		name     string
		strategy Strategy
		cost     map[int]float64
		want     error
	}{
		{"one-vs-all rejects class cost", OneVsAll, map[int]float64{5: 1, 6: 1, 7: 1}, ErrInvalidCostConfiguration},
		{"unknown class", OneVsOne, map[int]float64{5: 1, 6: 1, 7: 1, 8: 1}, ErrUnknownClassCost},
		{"missing class", OneVsOne, map[int]float64{5: 1, 6: 1}, ErrInvalidCostConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainerConfig()
			cfg.ClassCost = tt.cost
			if _, err := NewMulticlassTrainer(newModel(tt.strategy), cfg, 1); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	cfg := DefaultTrainerConfig()
	cfg.ClassCost = map[int]float64{5: 1, 6: 2, 7: 3}
	tr, err := NewMulticlassTrainer(newModel(OneVsOne), cfg, 2)
	if err != nil {
		t.Fatalf("NewMulticlassTrainer: %v", err)
	}
	// The 6-vs-7 sub-model holds class 6 rows first.
	sub := tr.Trainers()[2]
	if sub.Cost(0) != 2 || sub.Cost(sub.Module().Kernel.L()-1) != 3 {
		t.Errorf("6-vs-7 costs = %v, %v; want 2, 3", sub.Cost(0), sub.Cost(sub.Module().Kernel.L()-1))
	}

	if _, err := NewMulticlassTrainer(NewMulticlassSVM(2, OneVsOne, RBF, DefaultKernelParams()), cfg, 1); !errors.Is(err, ErrNoData) {
		t.Errorf("no data: got %v, want ErrNoData", err)
	}
}

func TestMulticlassTrainEpochs(t *testing.T) {
	X, y := threeBlobs()
	m := NewMulticlassSVM(2, OneVsAll, RBF, DefaultKernelParams())
	if err := m.SetData(X, y); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	tr, err := NewMulticlassTrainer(m, DefaultTrainerConfig(), 3)
	if err != nil {
		t.Fatalf("NewMulticlassTrainer: %v", err)
	}
	if err := tr.TrainEpochs(context.Background(), 2); err != nil {
		t.Fatalf("TrainEpochs: %v", err)
	}
	for i, sub := range tr.Trainers() {
		if sub.Steps() > 2 {
			t.Errorf("sub-trainer %d took %d steps, want at most 2", i, sub.Steps())
		}
	}
	if tr.Steps() > 6 {
		t.Errorf("total steps = %d, want at most 6", tr.Steps())
	}
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"":           OneVsOne,
		"ovo":        OneVsOne,
		"one-vs-one": OneVsOne,
		"OVA":        OneVsAll,
		"ovr":        OneVsAll,
		"one-vs-all": OneVsAll,
	}
	for in, want := range tests {
		if got, err := ParseStrategy(in); err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("tournament"); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
