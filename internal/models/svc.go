package models

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"mlsvm/internal/svm"
)

// SVC is a kernel support vector classifier. Two classes train a single
// binary machine, more classes are combined one-vs-one or one-vs-all.
type SVC struct {
	BaseModel
	Cfg   ModelConfig
	SVM   *svm.MulticlassSVM
	Steps int

	logger *log.Logger
}

func NewSVC(config ModelConfig) *SVC {
	s := &SVC{
		BaseModel: BaseModel{
			Name: "SVC",
			Type: AlgorithmSVC,
		},
		Cfg: config,
	}
	s.Params = s.params()
	return s
}

func (s *SVC) params() map[string]any {
	return map[string]any{
		"kernel":   s.Cfg.Kernel,
		"degree":   s.Cfg.Degree,
		"gamma":    s.Cfg.Gamma,
		"coef0":    s.Cfg.Coef0,
		"cost":     s.Cfg.Cost,
		"strategy": s.Cfg.Strategy,
		"epochs":   s.Cfg.Epochs,
		"eps":      s.Cfg.Eps,
	}
}

// SetLogger routes SMO progress lines to l. A nil logger silences them.
func (s *SVC) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *SVC) Config() ModelConfig {
	return s.Cfg
}

func (s *SVC) Fit(ctx context.Context, X [][]decimal.Decimal, y []int) error {
	s.Reset()

	kind, err := svm.ParseKernelKind(s.Cfg.Kernel)
	if err != nil {
		return err
	}
	strategy, err := svm.ParseStrategy(s.Cfg.Strategy)
	if err != nil {
		return err
	}
	if len(X) == 0 {
		return svm.ErrEmptyData
	}

	m := svm.NewMulticlassSVM(len(X[0]), strategy, kind, s.Cfg.KernelParams())
	if err := m.SetData(ToFloat64(X), y); err != nil {
		return fmt.Errorf("failed to set training data: %w", err)
	}

	cfg := svm.DefaultTrainerConfig()
	cfg.Cost = s.Cfg.Cost
	cfg.ClassCost = s.Cfg.ClassCost
	if s.Cfg.Eps > 0 {
		cfg.Eps = s.Cfg.Eps
	}
	cfg.Logger = s.logger

	trainer, err := svm.NewMulticlassTrainer(m, cfg, s.Cfg.Workers)
	if err != nil {
		return err
	}
	if err := trainer.TrainEpochs(ctx, s.Cfg.Epochs); err != nil {
		return fmt.Errorf("training interrupted after %d steps: %w", trainer.Steps(), err)
	}

	s.SVM = m
	s.Steps = trainer.Steps()
	s.Classes = m.Classes()
	return nil
}

func (s *SVC) Predict(X [][]decimal.Decimal) ([]int, error) {
	if s.SVM == nil {
		return nil, svm.ErrNotTrained
	}
	return s.SVM.ClassifyBatch(ToFloat64(X))
}

// PredictProba returns, per sample, the share of sub-model votes each class
// received, in the order of GetClasses. A sample no sub-model voted for puts
// all mass on the predicted class.
func (s *SVC) PredictProba(X [][]decimal.Decimal) ([][]decimal.Decimal, error) {
	if s.SVM == nil {
		return nil, svm.ErrNotTrained
	}

	result := make([][]decimal.Decimal, len(X))
	for i, x := range ToFloat64(X) {
		votes, err := s.SVM.Votes(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		total := 0
		for _, v := range votes {
			total += v
		}
		if total == 0 {
			winner, err := s.SVM.Classify(x)
			if err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
			votes = map[int]int{winner: 1}
			total = 1
		}

		probs := make([]decimal.Decimal, len(s.Classes))
		denom := decimal.NewFromInt(int64(total))
		for j, class := range s.Classes {
			probs[j] = decimal.NewFromInt(int64(votes[class])).Div(denom)
		}
		result[i] = probs
	}
	return result, nil
}

// DecisionFunction returns the raw output of every sub-model per sample.
func (s *SVC) DecisionFunction(X [][]decimal.Decimal) ([][]float64, error) {
	if s.SVM == nil {
		return nil, svm.ErrNotTrained
	}
	out := make([][]float64, len(X))
	for i, x := range ToFloat64(X) {
		raw, err := s.SVM.RawOutputs(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

// NumSupportVectors counts support vectors over all sub-models.
func (s *SVC) NumSupportVectors() int {
	if s.SVM == nil {
		return 0
	}
	n := 0
	for _, sub := range s.SVM.SubModels() {
		n += len(sub.SVM.SupportVectors())
	}
	return n
}

func (s *SVC) Reset() {
	s.SVM = nil
	s.Steps = 0
	s.Classes = nil
	s.Params = s.params()
}
