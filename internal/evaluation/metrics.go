package evaluation

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"mlsvm/internal/models"
)

type ClassificationMetrics struct {
	Accuracy          float64              `json:"accuracy"`
	BalancedAccuracy  float64              `json:"balanced_accuracy"`
	MacroPrecision    float64              `json:"macro_precision"`
	MacroRecall       float64              `json:"macro_recall"`
	MacroF1           float64              `json:"macro_f1"`
	WeightedPrecision float64              `json:"weighted_precision"`
	WeightedRecall    float64              `json:"weighted_recall"`
	WeightedF1        float64              `json:"weighted_f1"`
	PerClass          map[int]ClassMetrics `json:"per_class"`
	// ConfusionMatrix[i][j] counts samples of Classes[i] predicted as Classes[j].
	ConfusionMatrix [][]int `json:"confusion_matrix"`
	Classes         []int   `json:"classes"`
	NumSamples      int     `json:"num_samples"`
}

type ClassMetrics struct {
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1Score     float64 `json:"f1_score"`
	Specificity float64 `json:"specificity"`
	Support     int     `json:"support"`
}

// CalculateMetrics scores predictions against the true labels. Labels
// outside classes are counted for accuracy only. Nil classes means every
// label seen in yTrue or yPred.
func CalculateMetrics(yTrue, yPred []int, classes []int) (*ClassificationMetrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("got %d true labels and %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("no samples to score")
	}
	if len(classes) == 0 {
		classes = models.ExtractClasses(append(slices.Clone(yTrue), yPred...))
	}

	cm := confusionMatrix(yTrue, yPred, classes)
	m := &ClassificationMetrics{
		PerClass:        make(map[int]ClassMetrics, len(classes)),
		ConfusionMatrix: cm,
		Classes:         classes,
		NumSamples:      len(yTrue),
	}

	total := 0
	for i := range cm {
		for j := range cm[i] {
			total += cm[i][j]
		}
	}

	var supportSum int
	for i, class := range classes {
		tp := cm[i][i]
		var fp, fn int
		for j := range classes {
			if j != i {
				fp += cm[j][i]
				fn += cm[i][j]
			}
		}
		tn := total - tp - fp - fn

		cls := ClassMetrics{
			Precision:   ratio(tp, tp+fp),
			Recall:      ratio(tp, tp+fn),
			Specificity: ratio(tn, tn+fp),
			Support:     tp + fn,
		}
		cls.F1Score = harmonic(cls.Precision, cls.Recall)
		m.PerClass[class] = cls

		m.MacroPrecision += cls.Precision
		m.MacroRecall += cls.Recall
		m.MacroF1 += cls.F1Score

		w := float64(cls.Support)
		m.WeightedPrecision += w * cls.Precision
		m.WeightedRecall += w * cls.Recall
		m.WeightedF1 += w * cls.F1Score
		supportSum += cls.Support
	}

	k := float64(len(classes))
	m.MacroPrecision /= k
	m.MacroRecall /= k
	m.MacroF1 /= k
	m.BalancedAccuracy = m.MacroRecall
	if supportSum > 0 {
		s := float64(supportSum)
		m.WeightedPrecision /= s
		m.WeightedRecall /= s
		m.WeightedF1 /= s
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(len(yTrue))

	return m, nil
}

func confusionMatrix(yTrue, yPred []int, classes []int) [][]int {
	index := make(map[int]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}

	cm := make([][]int, len(classes))
	for i := range cm {
		cm[i] = make([]int, len(classes))
	}
	for i := range yTrue {
		t, okT := index[yTrue[i]]
		p, okP := index[yPred[i]]
		if okT && okP {
			cm[t][p]++
		}
	}
	return cm
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func harmonic(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	h := 2 * a * b / (a + b)
	if math.IsNaN(h) {
		return 0
	}
	return h
}

func (m *ClassificationMetrics) FormatMetrics() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Accuracy: %.4f\n", m.Accuracy)
	fmt.Fprintf(&sb, "Balanced Accuracy: %.4f\n", m.BalancedAccuracy)
	fmt.Fprintf(&sb, "Macro Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.MacroPrecision, m.MacroRecall, m.MacroF1)
	fmt.Fprintf(&sb, "Weighted Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.WeightedPrecision, m.WeightedRecall, m.WeightedF1)
	return sb.String()
}

// FormatConfusionMatrix renders the confusion matrix with the given class
// names as row and column headers; nil names print the numeric labels.
func (m *ClassificationMetrics) FormatConfusionMatrix(names []string) string {
	labels := make([]string, len(m.Classes))
	width := 6
	for i, class := range m.Classes {
		if i < len(names) {
			labels[i] = names[i]
		} else {
			labels[i] = fmt.Sprint(class)
		}
		width = max(width, len(labels[i])+1)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s", width, "")
	for _, l := range labels {
		fmt.Fprintf(&sb, "%*s", width, l)
	}
	sb.WriteByte('\n')
	for i, row := range m.ConfusionMatrix {
		fmt.Fprintf(&sb, "%*s", width, labels[i])
		for _, n := range row {
			fmt.Fprintf(&sb, "%*d", width, n)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
