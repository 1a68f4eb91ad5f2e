package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"mlsvm/internal/data"
	"mlsvm/internal/evaluation"
	"mlsvm/internal/models"
	"mlsvm/internal/preprocessing"
	"mlsvm/internal/svm"
)

type ExperimentRunner struct {
	Config *ExperimentConfig
}

type ExperimentConfig struct {
	Experiment struct {
		Preprocessing []string `yaml:"preprocessing"`
		// TrainTestSplits are training fractions, e.g. 0.8 for an 80-20 split.
		TrainTestSplits []float64 `yaml:"train_test_splits"`
		CrossValidation struct {
			Folds int `yaml:"folds"`
		} `yaml:"cross_validation"`
		Workers int   `yaml:"workers"`
		Seed    int64 `yaml:"seed"`
		SVC     struct {
			Kernel   []string  `yaml:"kernel"`
			Cost     []float64 `yaml:"cost"`
			Gamma    []float64 `yaml:"gamma"`
			Degree   []float64 `yaml:"degree"`
			Coef0    []float64 `yaml:"coef0"`
			Strategy []string  `yaml:"strategy"`
			Epochs   int       `yaml:"epochs"`
		} `yaml:"svc"`
	} `yaml:"experiment"`
}

// NewRunner reads a sweep definition from configFile. An empty filename
// yields the default sweep. Missing grid entries fall back to the model
// defaults.
func NewRunner(configFile string) (*ExperimentRunner, error) {
	config := &ExperimentConfig{}
	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read experiment config: %w", err)
		}
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to parse experiment config: %w", err)
		}
	}
	config.applyDefaults()
	return &ExperimentRunner{Config: config}, nil
}

func (c *ExperimentConfig) applyDefaults() {
	e := &c.Experiment
	def := models.DefaultConfig(models.AlgorithmSVC)
	if len(e.Preprocessing) == 0 {
		e.Preprocessing = []string{preprocessing.ScaleMinMax}
	}
	if len(e.TrainTestSplits) == 0 {
		e.TrainTestSplits = []float64{0.8}
	}
	if e.Workers <= 0 {
		e.Workers = 4
	}
	if e.Seed == 0 {
		e.Seed = 42
	}
	if len(e.SVC.Kernel) == 0 {
		e.SVC.Kernel = []string{def.Kernel}
	}
	if len(e.SVC.Cost) == 0 {
		e.SVC.Cost = []float64{def.Cost}
	}
	if len(e.SVC.Gamma) == 0 {
		e.SVC.Gamma = []float64{def.Gamma}
	}
	if len(e.SVC.Degree) == 0 {
		e.SVC.Degree = []float64{def.Degree}
	}
	if len(e.SVC.Coef0) == 0 {
		e.SVC.Coef0 = []float64{def.Coef0}
	}
	if len(e.SVC.Strategy) == 0 {
		e.SVC.Strategy = []string{def.Strategy}
	}
}

// Grid expands the SVC section into model configurations. Parameters a
// kernel ignores are not varied: linear models get one entry per cost, RBF
// models are not repeated per degree, and so on.
func (c *ExperimentConfig) Grid() []models.ModelConfig {
	e := c.Experiment
	var grid []models.ModelConfig
	for _, kernel := range e.SVC.Kernel {
		// Unknown kernels keep every combination and fail validation later.
		kind, err := svm.ParseKernelKind(kernel)
		usesGamma := err != nil || (kind != svm.Linear && kind != svm.SimplePoly)
		usesDegree := err != nil || kind == svm.Poly || kind == svm.SimplePoly
		usesCoef0 := err != nil || kind == svm.Poly || kind == svm.Sigmoid

		gammas := e.SVC.Gamma
		if !usesGamma {
			gammas = gammas[:1]
		}
		degrees := e.SVC.Degree
		if !usesDegree {
			degrees = degrees[:1]
		}
		coefs := e.SVC.Coef0
		if !usesCoef0 {
			coefs = coefs[:1]
		}

		for _, strategy := range e.SVC.Strategy {
			for _, cost := range e.SVC.Cost {
				for _, gamma := range gammas {
					for _, degree := range degrees {
						for _, coef0 := range coefs {
							cfg := models.DefaultConfig(models.AlgorithmSVC)
							cfg.Kernel = kernel
							cfg.Strategy = strategy
							cfg.Cost = cost
							cfg.Gamma = gamma
							cfg.Degree = degree
							cfg.Coef0 = coef0
							cfg.Epochs = e.SVC.Epochs
							grid = append(grid, cfg)
						}
					}
				}
			}
		}
	}
	return grid
}

type ExperimentResult struct {
	Dataset        string
	Algorithm      string
	Kernel         string
	Parameters     string
	Preprocessing  string
	TrainTestSplit string
	Accuracy       float64
	Precision      float64
	Recall         float64
	F1Score        float64
	CVMean         float64
	CVStd          float64
	TrainingTimeMs int64
	Steps          int
	SupportVectors int
}

func (r *ExperimentRunner) RunAllExperiments(ctx context.Context, dataFile string) ([]ExperimentResult, error) {
	ds, err := data.LoadFile(dataFile)
	if err != nil {
		return nil, err
	}
	return r.RunDataset(ctx, ds)
}

type trial struct {
	cfg   models.ModelConfig
	prep  string
	split float64
	train *data.Dataset
	test  *data.Dataset
	full  *data.Dataset
}

// RunDataset evaluates every grid configuration under every preprocessing
// method and split ratio. Trials run concurrently; results come back in
// grid order.
func (r *ExperimentRunner) RunDataset(ctx context.Context, ds *data.Dataset) ([]ExperimentResult, error) {
	if err := data.NewDataValidator().ValidateDataset(ds); err != nil {
		return nil, err
	}
	e := r.Config.Experiment
	grid := r.Config.Grid()
	for _, cfg := range grid {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid sweep entry: %w", err)
		}
	}

	var trials []trial
	for _, prep := range e.Preprocessing {
		for _, split := range e.TrainTestSplits {
			splitter := evaluation.NewTrainTestSplitter(1-split, e.Seed, true)
			splitter.Stratified = true
			trainIdx, testIdx, err := splitter.SplitIndices(ds.Y)
			if err != nil {
				return nil, err
			}
			train, test, err := scaleSplit(ds.Subset(trainIdx), ds.Subset(testIdx), prep)
			if err != nil {
				return nil, err
			}

			full := ds
			if e.CrossValidation.Folds > 1 {
				if full, err = scaleAll(ds, prep); err != nil {
					return nil, err
				}
			}
			for _, cfg := range grid {
				trials = append(trials, trial{cfg: cfg, prep: prep, split: split, train: train, test: test, full: full})
			}
		}
	}

	results := make([]ExperimentResult, len(trials))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(e.Workers)
	for i, t := range trials {
		i, t := i, t
		p.Go(func(ctx context.Context) error {
			res, err := r.evaluate(ctx, t, ds.Classes)
			if err != nil {
				return fmt.Errorf("%s %v: %w", t.cfg.Kernel, t.cfg.Cost, err)
			}
			res.Dataset = ds.Source
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func scaleSplit(train, test *data.Dataset, method string) (*data.Dataset, *data.Dataset, error) {
	scaler := preprocessing.NewScaler(method)
	X, err := scaler.FitTransform(train.X)
	if err != nil {
		return nil, nil, err
	}
	if train, err = train.WithFeatures(X); err != nil {
		return nil, nil, err
	}
	if X, err = scaler.Transform(test.X); err != nil {
		return nil, nil, err
	}
	if test, err = test.WithFeatures(X); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func scaleAll(ds *data.Dataset, method string) (*data.Dataset, error) {
	X, err := preprocessing.NewScaler(method).FitTransform(ds.X)
	if err != nil {
		return nil, err
	}
	return ds.WithFeatures(X)
}

func (r *ExperimentRunner) evaluate(ctx context.Context, t trial, classes []int) (ExperimentResult, error) {
	cfg := t.cfg
	cfg.Workers = 1
	result := ExperimentResult{
		Algorithm:      "SVC",
		Kernel:         cfg.Kernel,
		Preprocessing:  t.prep,
		TrainTestSplit: fmt.Sprintf("%.0f-%.0f", t.split*100, (1-t.split)*100),
	}

	model, err := models.CreateModel(cfg)
	if err != nil {
		return result, err
	}
	result.Parameters = fmt.Sprintf("%v", model.GetParams())

	startTime := time.Now()
	if err := model.Fit(ctx, t.train.X, t.train.Y); err != nil {
		return result, err
	}
	result.TrainingTimeMs = time.Since(startTime).Milliseconds()
	if svc, ok := model.(*models.SVC); ok {
		result.Steps = svc.Steps
		result.SupportVectors = svc.NumSupportVectors()
	}

	predictions, err := model.Predict(t.test.X)
	if err != nil {
		return result, err
	}
	metrics, err := evaluation.CalculateMetrics(t.test.Y, predictions, classes)
	if err != nil {
		return result, err
	}
	result.Accuracy = metrics.Accuracy
	result.Precision = metrics.MacroPrecision
	result.Recall = metrics.MacroRecall
	result.F1Score = metrics.MacroF1

	if folds := r.Config.Experiment.CrossValidation.Folds; folds > 1 {
		cv := evaluation.NewCrossValidator(folds, true)
		cv.RandomSeed = r.Config.Experiment.Seed
		cv.MaxWorkers = 1
		res, err := cv.CrossValidate(ctx, t.full, model)
		if err != nil {
			return result, fmt.Errorf("cross validation: %w", err)
		}
		result.CVMean = res.Mean
		result.CVStd = res.Std
	}

	return result, nil
}

// Best returns the result with the highest test accuracy, preferring the
// earlier entry on ties.
func Best(results []ExperimentResult) (ExperimentResult, bool) {
	if len(results) == 0 {
		return ExperimentResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Accuracy > best.Accuracy {
			best = r
		}
	}
	return best, true
}

func (r *ExperimentRunner) ExportResults(results []ExperimentResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write([]string{
		"Dataset", "Algorithm", "Kernel", "Parameters", "Preprocessing",
		"TrainTestSplit", "Accuracy", "Precision", "Recall", "F1Score",
		"CVMean", "CVStd", "TrainingTimeMs", "Steps", "SupportVectors",
	})
	for _, result := range results {
		writer.Write([]string{
			result.Dataset,
			result.Algorithm,
			result.Kernel,
			result.Parameters,
			result.Preprocessing,
			result.TrainTestSplit,
			fmt.Sprintf("%.4f", result.Accuracy),
			fmt.Sprintf("%.4f", result.Precision),
			fmt.Sprintf("%.4f", result.Recall),
			fmt.Sprintf("%.4f", result.F1Score),
			fmt.Sprintf("%.4f", result.CVMean),
			fmt.Sprintf("%.4f", result.CVStd),
			strconv.FormatInt(result.TrainingTimeMs, 10),
			strconv.Itoa(result.Steps),
			strconv.Itoa(result.SupportVectors),
		})
	}
	writer.Flush()
	return writer.Error()
}
