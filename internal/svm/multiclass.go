package svm

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

type Strategy int

const (
	OneVsOne Strategy = iota
	OneVsAll
)

func (s Strategy) String() string {
	switch s {
	case OneVsOne:
		return "one-vs-one"
	case OneVsAll:
		return "one-vs-all"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ovo", "one-vs-one", "one_against_one", "one-against-one":
		return OneVsOne, nil
	case "ova", "ovr", "one-vs-all", "one-vs-rest", "one_against_all", "one-against-all":
		return OneVsAll, nil
	default:
		return 0, fmt.Errorf("unknown multiclass strategy: %q", s)
	}
}

// Targets of the one-vs-all sub-models.
const (
	restTarget  = 0
	classTarget = 1
)

// SubModel is one binary problem of a MulticlassSVM. For one-vs-one,
// Classes holds the pair; for one-vs-all both entries hold the class that
// is separated from the rest.
type SubModel struct {
	Classes [2]int
	SVM     *BinarySVM
}

func (s SubModel) String() string {
	if s.Classes[0] == s.Classes[1] {
		return fmt.Sprintf("%d-vs-rest", s.Classes[0])
	}
	return fmt.Sprintf("%d-vs-%d", s.Classes[0], s.Classes[1])
}

// MulticlassSVM composes binary SVMs, one per class pair or one per class,
// and aggregates their votes. Every sub-model uses the same kernel kind and
// parameters.
type MulticlassSVM struct {
	InDim        int
	Strategy     Strategy
	KernelKind   KernelKind
	KernelParams KernelParams
	Labels       []int
	Subs         []SubModel
}

func NewMulticlassSVM(indim int, strategy Strategy, kind KernelKind, params KernelParams) *MulticlassSVM {
	return &MulticlassSVM{
		InDim:        indim,
		Strategy:     strategy,
		KernelKind:   kind,
		KernelParams: params,
	}
}

// SetData splits the training set into the binary sub-problems of the
// configured strategy. Classes are ordered ascending.
func (m *MulticlassSVM) SetData(X [][]float64, y []int) error {
	if m.Subs != nil {
		return ErrDataAlreadySet
	}
	if len(X) == 0 {
		return ErrEmptyData
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d vectors, %d labels", ErrDimensionMismatch, len(X), len(y))
	}
	indim := m.InDim
	if indim <= 0 {
		indim = len(X[0])
	}
	for i, x := range X {
		if len(x) != indim {
			return fmt.Errorf("%w: sample %d has %d features, expected %d", ErrDimensionMismatch, i, len(x), indim)
		}
	}

	rows := make(map[int][]int)
	for i, label := range y {
		rows[label] = append(rows[label], i)
	}
	labels := make([]int, 0, len(rows))
	for label := range rows {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	if len(labels) < 2 {
		return fmt.Errorf("%w: found only class %d", ErrTooFewClasses, labels[0])
	}

	var subs []SubModel
	switch m.Strategy {
	case OneVsOne:
		for a := 0; a < len(labels); a++ {
			for b := a + 1; b < len(labels); b++ {
				ca, cb := labels[a], labels[b]
				subX, subY := gather(X, rows[ca], rows[cb], ca, cb)
				sub, err := m.newSub(indim, subX, subY)
				if err != nil {
					return fmt.Errorf("classes %d and %d: %w", ca, cb, err)
				}
				subs = append(subs, SubModel{Classes: [2]int{ca, cb}, SVM: sub})
			}
		}
	case OneVsAll:
		for _, c := range labels {
			rest := make([]int, 0, len(y)-len(rows[c]))
			for i, label := range y {
				if label != c {
					rest = append(rest, i)
				}
			}
			subX, subY := gather(X, rows[c], rest, classTarget, restTarget)
			sub, err := m.newSub(indim, subX, subY)
			if err != nil {
				return fmt.Errorf("class %d vs rest: %w", c, err)
			}
			subs = append(subs, SubModel{Classes: [2]int{c, c}, SVM: sub})
		}
	default:
		return fmt.Errorf("unknown multiclass strategy: %d", int(m.Strategy))
	}

	m.InDim = indim
	m.Labels = labels
	m.Subs = subs
	return nil
}

func (m *MulticlassSVM) SetDataset(ds Dataset) error {
	return m.SetData(ds.Inputs(), ds.Targets())
}

func (m *MulticlassSVM) newSub(indim int, X [][]float64, y []int) (*BinarySVM, error) {
	sub := NewBinarySVM(indim, m.KernelKind, m.KernelParams)
	if err := sub.SetData(X, y); err != nil {
		return nil, err
	}
	return sub, nil
}

// gather builds a binary training set from the rows in first (labelled
// firstLabel) followed by the rows in second (labelled secondLabel).
func gather(X [][]float64, first, second []int, firstLabel, secondLabel int) ([][]float64, []int) {
	subX := make([][]float64, 0, len(first)+len(second))
	subY := make([]int, 0, len(first)+len(second))
	for _, i := range first {
		subX = append(subX, X[i])
		subY = append(subY, firstLabel)
	}
	for _, i := range second {
		subX = append(subX, X[i])
		subY = append(subY, secondLabel)
	}
	return subX, subY
}

func (m *MulticlassSVM) NumSubModels() int {
	return len(m.Subs)
}

func (m *MulticlassSVM) SubModels() []SubModel {
	return m.Subs
}

func (m *MulticlassSVM) Classes() []int {
	return m.Labels
}

func (m *MulticlassSVM) hasClass(c int) bool {
	_, found := slices.BinarySearch(m.Labels, c)
	return found
}

func (m *MulticlassSVM) check(x []float64) error {
	if len(m.Subs) == 0 {
		return ErrNotTrained
	}
	if len(x) != m.InDim {
		return fmt.Errorf("%w: got %d features, expected %d", ErrDimensionMismatch, len(x), m.InDim)
	}
	return nil
}

// RawOutputs returns the raw output of every sub-model, in sub-model order.
func (m *MulticlassSVM) RawOutputs(x []float64) ([]float64, error) {
	if err := m.check(x); err != nil {
		return nil, err
	}
	out := make([]float64, len(m.Subs))
	for i, sub := range m.Subs {
		out[i] = sub.SVM.RawOutput(x)
	}
	return out, nil
}

// Votes counts, per class, the sub-models that voted for it.
func (m *MulticlassSVM) Votes(x []float64) (map[int]int, error) {
	if err := m.check(x); err != nil {
		return nil, err
	}
	votes := make(map[int]int, len(m.Labels))
	for _, sub := range m.Subs {
		switch m.Strategy {
		case OneVsAll:
			if sub.SVM.Classify(x) == classTarget {
				votes[sub.Classes[0]]++
			}
		default:
			votes[sub.SVM.Classify(x)]++
		}
	}
	return votes, nil
}

// Classify returns the winning class for x. One-vs-one takes the class
// with most votes; one-vs-all takes, among the classes whose sub-model
// claims x, the one with the largest margin, and falls back to the least
// negative margin when no sub-model claims it. Ties go to the lowest label.
func (m *MulticlassSVM) Classify(x []float64) (int, error) {
	if err := m.check(x); err != nil {
		return 0, err
	}
	if m.Strategy == OneVsAll {
		return m.classifyOneVsAll(x)
	}

	votes, _ := m.Votes(x)
	winner, best := m.Labels[0], -1
	for _, c := range m.Labels {
		if votes[c] > best {
			winner, best = c, votes[c]
		}
	}
	return winner, nil
}

func (m *MulticlassSVM) classifyOneVsAll(x []float64) (int, error) {
	winner := 0
	found, winnerVoted := false, false
	bestMargin := math.Inf(-1)

	for _, sub := range m.Subs {
		raw := sub.SVM.RawOutput(x)
		if math.IsNaN(raw) {
			continue
		}
		voted := sub.SVM.RawOutputToClass(raw) == classTarget
		sign, _ := sub.SVM.ClassToRawOutput(classTarget)
		margin := sign * raw

		if !found || (voted && !winnerVoted) || (voted == winnerVoted && margin > bestMargin) {
			winner, bestMargin, winnerVoted, found = sub.Classes[0], margin, voted, true
		}
	}
	if !found {
		return 0, ErrClassificationFailed
	}
	return winner, nil
}

func (m *MulticlassSVM) ClassifyBatch(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, x := range X {
		c, err := m.Classify(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
