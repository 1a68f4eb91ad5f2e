package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"mlsvm/internal/data"
	"mlsvm/internal/evaluation"
	"mlsvm/internal/experiment"
	"mlsvm/internal/models"
	"mlsvm/internal/persistence"
	"mlsvm/internal/preprocessing"
)

type options struct {
	dataFile   string
	outputDir  string
	preprocess string
	testSize   float64
	cv         bool
	cvFolds    int
	batchSize  int
	verbose    bool
}

func main() {
	dataFile := flag.String("data", "", "Path to training data (CSV, or LIBSVM with .svm/.libsvm/.svmlight)")
	configFile := flag.String("config", "", "YAML model config (or sweep config with -experiment)")
	outputDir := flag.String("output", "models", "Output directory for trained models")
	preprocess := flag.String("preprocess", "normalized", "Preprocessing method (raw|normalized|standardized)")
	runExp := flag.Bool("experiment", false, "Run a parameter sweep described by -config")
	kernel := flag.String("kernel", "rbf", "Kernel (linear|poly|rbf|sigmoid|simplepoly)")
	gamma := flag.Float64("gamma", 1, "Kernel gamma")
	degree := flag.Float64("degree", 3, "Polynomial degree")
	coef0 := flag.Float64("coef0", 0, "Kernel coef0")
	cost := flag.Float64("cost", 1, "Misclassification cost C")
	strategy := flag.String("strategy", "ovo", "Multiclass strategy (ovo|ova)")
	epochs := flag.Int("epochs", 0, "Training epochs (0 trains to convergence)")
	workers := flag.Int("workers", 1, "Sub-problems trained in parallel")
	testSize := flag.Float64("test-size", 0.2, "Test set size (0.0-1.0)")
	crossValidation := flag.Bool("cv", true, "Enable cross-validation")
	cvFolds := flag.Int("cv-folds", 5, "Number of cross-validation folds")
	batchSize := flag.Int("batch-size", 1000, "Rows per prediction batch during evaluation")
	verbose := flag.Bool("v", false, "Log optimizer progress")

	flag.Parse()

	if *dataFile == "" {
		fmt.Println("Usage:")
		fmt.Println("  Simple training: train -data data/iris.csv -kernel rbf -cost 10")
		fmt.Println("  Full experiment: train -experiment -config config/experiment.yaml -data data/iris.csv")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *runExp {
		runExperiment(ctx, *configFile, *dataFile, *outputDir)
		return
	}

	config := models.DefaultConfig(models.AlgorithmSVC)
	if *configFile != "" {
		var err error
		if config, err = models.LoadConfig(*configFile); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	// Flags given explicitly win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kernel":
			config.Kernel = *kernel
		case "gamma":
			config.Gamma = *gamma
		case "degree":
			config.Degree = *degree
		case "coef0":
			config.Coef0 = *coef0
		case "cost":
			config.Cost = *cost
		case "strategy":
			config.Strategy = *strategy
		case "epochs":
			config.Epochs = *epochs
		case "workers":
			config.Workers = *workers
		}
	})
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	runSingleTraining(ctx, config, options{
		dataFile:   *dataFile,
		outputDir:  *outputDir,
		preprocess: *preprocess,
		testSize:   *testSize,
		cv:         *crossValidation,
		cvFolds:    *cvFolds,
		batchSize:  *batchSize,
		verbose:    *verbose,
	})
}

func runExperiment(ctx context.Context, configFile, dataFile, outputDir string) {
	fmt.Println("Running full experiment...")

	runner, err := experiment.NewRunner(configFile)
	if err != nil {
		log.Fatalf("Failed to load experiment: %v", err)
	}
	results, err := runner.RunAllExperiments(ctx, dataFile)
	if err != nil {
		log.Fatalf("Experiment failed: %v", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	expDir := filepath.Join(outputDir, fmt.Sprintf("experiment_%s", timestamp))
	if err := os.MkdirAll(expDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", expDir, err)
	}

	resultsFile := filepath.Join(expDir, "experiment_results.csv")
	if err := runner.ExportResults(results, resultsFile); err != nil {
		log.Printf("Failed to export results: %v", err)
	} else {
		fmt.Printf("Experiment results saved to: %s\n", resultsFile)
	}

	fmt.Printf("\nExperiment Summary:\n")
	fmt.Printf("Total experiments: %d\n", len(results))
	if best, ok := experiment.Best(results); ok {
		fmt.Printf("Best accuracy: %.4f (%s kernel, %s preprocessing, %s)\n",
			best.Accuracy, best.Kernel, best.Preprocessing, best.Parameters)
	}
}

func runSingleTraining(ctx context.Context, config models.ModelConfig, opts options) {
	fmt.Printf("Training SVC (%s kernel) on %s...\n", config.Kernel, opts.dataFile)

	ds, err := data.LoadFile(opts.dataFile)
	if err != nil {
		log.Fatalf("Failed to load data: %v", err)
	}
	fmt.Printf("Loaded %d samples with %d features and %d classes\n", ds.Len(), ds.Dim(), len(ds.Classes))

	validator := data.NewDataValidator()
	if err := validator.ValidateDataset(ds); err != nil {
		log.Fatalf("Data validation failed: %v", err)
	}

	fmt.Printf("Splitting data (test size: %.1f%%)...\n", opts.testSize*100)
	splitter := evaluation.NewTrainTestSplitter(opts.testSize, time.Now().UnixNano(), true)
	splitter.Stratified = true
	train, test, err := splitter.Split(ds)
	if err != nil {
		log.Fatalf("Failed to split data: %v", err)
	}
	if err := validator.ValidateTrainTestSplit(train, test); err != nil {
		log.Fatalf("Invalid split: %v", err)
	}

	fmt.Printf("Applying %s preprocessing...\n", opts.preprocess)
	scaler := preprocessing.NewScaler(opts.preprocess)
	XTrain, err := scaler.FitTransform(train.X)
	if err != nil {
		log.Fatalf("Preprocessing failed: %v", err)
	}
	XTest, err := scaler.Transform(test.X)
	if err != nil {
		log.Fatalf("Preprocessing failed: %v", err)
	}
	if test, err = test.WithFeatures(XTest); err != nil {
		log.Fatalf("Preprocessing failed: %v", err)
	}

	model, err := models.CreateModel(config)
	if err != nil {
		log.Fatalf("Failed to create model: %v", err)
	}
	if svc, ok := model.(*models.SVC); ok && opts.verbose {
		svc.SetLogger(log.New(os.Stderr, "svm: ", log.LstdFlags))
	}

	fmt.Printf("Training %s model...\n", model.GetName())
	startTime := time.Now()
	if err := model.Fit(ctx, XTrain, train.Y); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	trainingTime := time.Since(startTime)

	fmt.Println("Evaluating model...")
	predictions := make([]int, 0, test.Len())
	err = data.NewBatchProcessor(opts.batchSize).ProcessBatches(test, func(_ int, batch *data.Dataset) error {
		pred, err := model.Predict(batch.X)
		if err != nil {
			return err
		}
		predictions = append(predictions, pred...)
		return nil
	})
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}
	metrics, err := evaluation.CalculateMetrics(test.Y, predictions, ds.Classes)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	fmt.Printf("\nTraining Results:\n")
	fmt.Printf("Training time: %v\n", trainingTime)
	if svc, ok := model.(*models.SVC); ok {
		fmt.Printf("Support vectors: %d, SMO steps: %d\n", svc.NumSupportVectors(), svc.Steps)
	}
	fmt.Print(metrics.FormatMetrics())
	fmt.Println(metrics.FormatConfusionMatrix(ds.ClassNames()))

	if opts.cv {
		fmt.Printf("Running %d-fold cross-validation...\n", opts.cvFolds)
		XAll, err := preprocessing.NewScaler(opts.preprocess).FitTransform(ds.X)
		if err != nil {
			log.Fatalf("Preprocessing failed: %v", err)
		}
		scaled, err := ds.WithFeatures(XAll)
		if err != nil {
			log.Fatalf("Preprocessing failed: %v", err)
		}
		res, err := evaluation.NewCrossValidator(opts.cvFolds, true).CrossValidate(ctx, scaled, model)
		if err != nil {
			log.Printf("Cross-validation failed: %v", err)
		} else {
			fmt.Printf("CV accuracy: %.4f ± %.4f\n", res.Mean, res.Std)
		}
	}

	fmt.Println("Saving model...")
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", opts.outputDir, err)
	}
	timestamp := time.Now().Format("20060102_150405")
	base := strings.TrimSuffix(filepath.Base(opts.dataFile), filepath.Ext(opts.dataFile))
	name := fmt.Sprintf("svc_%s_%s_%s_%s", config.Kernel, base, opts.preprocess, timestamp)
	modelPath := filepath.Join(opts.outputDir, name+".model")

	bundle := persistence.NewModelBundle(model)
	bundle.Scaler = scaler
	bundle.LabelEncoder = ds.Encoder
	bundle.Metadata.Dataset = opts.dataFile
	bundle.Metadata.Accuracy = metrics.Accuracy
	bundle.Metadata.Precision = metrics.MacroPrecision
	bundle.Metadata.Recall = metrics.MacroRecall
	bundle.Metadata.F1Score = metrics.MacroF1
	bundle.Metadata.TrainingTime = trainingTime
	bundle.Metadata.Features = ds.Features
	bundle.Metadata.Classes = ds.ClassNames()

	if err := bundle.Save(modelPath); err != nil {
		log.Printf("Failed to save model: %v", err)
	} else {
		fmt.Printf("Model saved to: %s\n", modelPath)
		if err := bundle.SaveMetadata(filepath.Join(opts.outputDir, name+".txt")); err != nil {
			log.Printf("Failed to save metadata: %v", err)
		}
	}

	fmt.Println("\nTraining completed successfully!")
}
