package evaluation

import (
	"context"
	"fmt"
	"math"

	"github.com/sourcegraph/conc/pool"

	"mlsvm/internal/data"
	"mlsvm/internal/models"
)

type CrossValidator struct {
	NFolds     int
	Stratified bool
	Shuffle    bool
	RandomSeed int64
	MaxWorkers int
}

func NewCrossValidator(nFolds int, stratified bool) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Stratified: stratified,
		Shuffle:    true,
		RandomSeed: 42,
		MaxWorkers: 4,
	}
}

type FoldResult struct {
	Fold    int
	Train   int
	Test    int
	Score   float64
	Metrics *ClassificationMetrics
}

type CVResult struct {
	Folds []FoldResult
	Mean  float64
	Std   float64
}

func (r *CVResult) Scores() []float64 {
	scores := make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		scores[i] = f.Score
	}
	return scores
}

// CrossValidate trains a fresh copy of model on every fold's complement and
// scores its accuracy on the fold. Folds run concurrently on up to
// MaxWorkers goroutines; the first failure cancels the rest.
func (cv *CrossValidator) CrossValidate(ctx context.Context, ds *data.Dataset, model models.Model) (*CVResult, error) {
	splitter := &KFoldSplitter{
		NFolds:     cv.NFolds,
		Shuffle:    cv.Shuffle,
		RandomSeed: cv.RandomSeed,
		Stratified: cv.Stratified,
	}
	folds, err := splitter.Folds(ds.Y)
	if err != nil {
		return nil, err
	}

	results := make([]FoldResult, len(folds))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(max(1, cv.MaxWorkers))
	for i, testIdx := range folds {
		i, testIdx := i, testIdx
		p.Go(func(ctx context.Context) error {
			res, err := cv.evaluateFold(ctx, ds, model.Config(), testIdx, ds.Classes)
			if err != nil {
				return fmt.Errorf("fold %d failed: %w", i, err)
			}
			res.Fold = i
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	out := &CVResult{Folds: results}
	out.Mean, out.Std = meanStd(out.Scores())
	return out, nil
}

func (cv *CrossValidator) evaluateFold(ctx context.Context, ds *data.Dataset, config models.ModelConfig, testIdx []int, classes []int) (FoldResult, error) {
	train := ds.Subset(Complement(ds.Len(), testIdx))
	test := ds.Subset(testIdx)

	// Folds already run concurrently.
	config.Workers = 1
	foldModel, err := models.CreateModel(config)
	if err != nil {
		return FoldResult{}, err
	}
	if err := foldModel.Fit(ctx, train.X, train.Y); err != nil {
		return FoldResult{}, err
	}
	pred, err := foldModel.Predict(test.X)
	if err != nil {
		return FoldResult{}, err
	}
	metrics, err := CalculateMetrics(test.Y, pred, classes)
	if err != nil {
		return FoldResult{}, err
	}

	return FoldResult{
		Train:   train.Len(),
		Test:    test.Len(),
		Score:   metrics.Accuracy,
		Metrics: metrics,
	}, nil
}

// meanStd returns the mean and the sample standard deviation.
func meanStd(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return 0, 0
	}

	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	if len(scores) > 1 {
		variance := 0.0
		for _, s := range scores {
			d := s - mean
			variance += d * d
		}
		std = math.Sqrt(variance / float64(len(scores)-1))
	}
	return mean, std
}
