package evaluation

import (
	"fmt"
	"math/rand"
	"slices"

	"mlsvm/internal/data"
)

// TrainTestSplitter holds out a fraction of the samples for testing. With
// Stratified set every class contributes to the test set in proportion.
type TrainTestSplitter struct {
	TestSize   float64
	RandomSeed int64
	Shuffle    bool
	Stratified bool
}

func NewTrainTestSplitter(testSize float64, randomSeed int64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		TestSize:   testSize,
		RandomSeed: randomSeed,
		Shuffle:    shuffle,
	}
}

func DefaultTrainTestSplitter() *TrainTestSplitter {
	s := NewTrainTestSplitter(0.2, 42, true)
	s.Stratified = true
	return s
}

func (tts *TrainTestSplitter) Split(ds *data.Dataset) (*data.Dataset, *data.Dataset, error) {
	train, test, err := tts.SplitIndices(ds.Y)
	if err != nil {
		return nil, nil, err
	}
	return ds.Subset(train), ds.Subset(test), nil
}

// SplitIndices returns the row indices of the training and test sets.
func (tts *TrainTestSplitter) SplitIndices(y []int) ([]int, []int, error) {
	if len(y) == 0 {
		return nil, nil, fmt.Errorf("cannot split empty dataset")
	}
	if tts.TestSize <= 0 || tts.TestSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be between 0 and 1, got %v", tts.TestSize)
	}

	rng := rand.New(rand.NewSource(tts.RandomSeed))
	groups := [][]int{sequence(len(y))}
	if tts.Stratified {
		groups = byClass(y)
	}

	var train, test []int
	for _, idx := range groups {
		if tts.Shuffle {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		nTest := int(float64(len(idx)) * tts.TestSize)
		if tts.Stratified && nTest == 0 && len(idx) > 1 {
			nTest = 1
		}
		nTrain := len(idx) - nTest
		train = append(train, idx[:nTrain]...)
		test = append(test, idx[nTrain:]...)
	}
	if len(test) == 0 || len(train) == 0 {
		return nil, nil, fmt.Errorf("test size %v leaves an empty split for %d samples", tts.TestSize, len(y))
	}

	if tts.Shuffle && tts.Stratified {
		rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
		rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	}
	return train, test, nil
}

// KFoldSplitter partitions the samples into NFolds test folds. With
// Stratified set the samples of each class are dealt round-robin over the
// folds.
type KFoldSplitter struct {
	NFolds     int
	Shuffle    bool
	RandomSeed int64
	Stratified bool
}

func NewKFoldSplitter(nFolds int, shuffle bool, randomSeed int64) *KFoldSplitter {
	return &KFoldSplitter{
		NFolds:     nFolds,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// Folds returns the test indices of every fold.
func (kfs *KFoldSplitter) Folds(y []int) ([][]int, error) {
	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("cannot split empty dataset")
	}
	if kfs.NFolds < 2 || kfs.NFolds > n {
		return nil, fmt.Errorf("number of folds must be between 2 and %d, got %d", n, kfs.NFolds)
	}

	rng := rand.New(rand.NewSource(kfs.RandomSeed))
	folds := make([][]int, kfs.NFolds)

	if !kfs.Stratified {
		idx := sequence(n)
		if kfs.Shuffle {
			rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		size := n / kfs.NFolds
		for f := range folds {
			start, end := f*size, (f+1)*size
			if f == kfs.NFolds-1 {
				end = n
			}
			folds[f] = slices.Clone(idx[start:end])
		}
		return folds, nil
	}

	next := 0
	for _, idx := range byClass(y) {
		if kfs.Shuffle {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		for _, i := range idx {
			folds[next] = append(folds[next], i)
			next = (next + 1) % kfs.NFolds
		}
	}
	for _, f := range folds {
		slices.Sort(f)
	}
	return folds, nil
}

// Complement returns the indices in [0, n) that are not in fold.
func Complement(n int, fold []int) []int {
	in := make([]bool, n)
	for _, i := range fold {
		in[i] = true
	}
	out := make([]int, 0, n-len(fold))
	for i := 0; i < n; i++ {
		if !in[i] {
			out = append(out, i)
		}
	}
	return out
}

func sequence(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// byClass groups row indices by label, visiting classes in ascending order
// so that seeded shuffles are reproducible.
func byClass(y []int) [][]int {
	rows := make(map[int][]int)
	for i, label := range y {
		rows[label] = append(rows[label], i)
	}
	classes := make([]int, 0, len(rows))
	for c := range rows {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	groups := make([][]int, len(classes))
	for i, c := range classes {
		groups[i] = rows[c]
	}
	return groups
}
