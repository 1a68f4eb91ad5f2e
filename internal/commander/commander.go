package commander

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"mlsvm/internal/data"
	"mlsvm/internal/evaluation"
	"mlsvm/internal/jobs"
	"mlsvm/internal/models"
	"mlsvm/internal/persistence"
	"mlsvm/internal/preprocessing"
)

type Commander struct {
	in  io.Reader
	out io.Writer

	mu               sync.Mutex
	dataset          *data.Dataset
	config           models.ModelConfig
	scaleType        string
	session          *session
	currentModelPath string
	jobManager       *jobs.Manager

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	blue   func(a ...any) string
}

// session is the outcome of one training run: the bundle plus the held-out
// rows it was scored on. A bundle loaded from disk has no test set.
type session struct {
	bundle  *persistence.ModelBundle
	test    *data.Dataset
	metrics *evaluation.ClassificationMetrics
}

func NewCommander() *Commander {
	return New(os.Stdin, os.Stdout)
}

func New(in io.Reader, out io.Writer) *Commander {
	return &Commander{
		in:         in,
		out:        out,
		config:     models.DefaultConfig(models.AlgorithmSVC),
		scaleType:  preprocessing.ScaleMinMax,
		jobManager: jobs.NewManager(),
		green:      color.New(color.FgGreen).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
		blue:       color.New(color.FgBlue).SprintFunc(),
	}
}

func (c *Commander) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func (c *Commander) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Commander) fail(format string, a ...any) {
	c.printf("%s %s\n", c.red("✗"), fmt.Sprintf(format, a...))
}

func (c *Commander) Start() {
	c.printWelcome()
	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, c.yellow("\nsvm> "))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.printf("\n")
				c.fail("Scanner error: %v", err)
			}
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		if !c.ExecuteCommand(strings.ToLower(parts[0]), parts[1:]) {
			break
		}
	}
}

// ExecuteCommand runs one command and reports whether the REPL should keep
// reading.
func (c *Commander) ExecuteCommand(command string, args []string) bool {
	switch command {
	case "help", "h":
		c.showHelp()
	case "load":
		if len(args) > 0 {
			c.loadData(args[0])
		} else {
			c.println(c.red("Usage: load <filename>"))
		}
	case "info":
		c.showDataInfo()
	case "scale":
		c.setScale(args)
	case "train":
		c.trainModel(args)
	case "train-bg":
		c.trainModelBackground(args)
	case "predict":
		c.predict(args)
	case "predict-file", "batch":
		if len(args) > 0 {
			c.predictFile(args)
		} else {
			c.println(c.red("Usage: predict-file <filename> [batch-size]"))
		}
	case "evaluate":
		c.evaluate()
	case "cv":
		c.crossValidate(args)
	case "experiment":
		c.runExperiment(args)
	case "save":
		if len(args) > 0 {
			c.saveModel(args[0])
		} else {
			c.println(c.red("Usage: save <filename>"))
		}
	case "loadmodel":
		if len(args) > 0 {
			c.loadModel(args[0])
		} else {
			c.println(c.red("Usage: loadmodel <filename>"))
		}
	case "current":
		c.showCurrentModel()
	case "jobs":
		c.listAllJobs()
	case "job-status":
		if len(args) > 0 {
			c.showJobStatus(args[0])
		} else {
			c.listAllJobs()
		}
	case "job-cancel":
		if len(args) > 0 {
			c.cancelJob(args[0])
		} else {
			c.println(c.red("Usage: job-cancel <job-id>"))
		}
	case "job-logs":
		if len(args) > 0 {
			c.showJobLogs(args[0])
		} else {
			c.println(c.red("Usage: job-logs <job-id>"))
		}
	case "quit", "exit", "q":
		c.println("Goodbye!")
		return false
	default:
		c.fail("Unknown command: %s", command)
		c.println("Type 'help' for available commands")
	}
	return true
}

func (c *Commander) printWelcome() {
	c.println(c.cyan("╔══════════════════════════════════════════╗"))
	c.println(c.cyan("║           SVM Classifier Console         ║"))
	c.println(c.cyan("╚══════════════════════════════════════════╝"))
	c.println()
	c.println("Type 'help' for available commands")
}

func (c *Commander) showHelp() {
	c.println(c.blue("\nAvailable Commands:"))

	c.println("\n" + c.cyan("Data:"))
	c.println("  load <file>                 - Load a CSV or LIBSVM dataset")
	c.println("  info                        - Show loaded data information")
	c.println("  scale <minmax|standard|raw> - Choose feature scaling for training")

	c.println("\n" + c.cyan("Training:"))
	c.println("  train [kernel] [cost] [gamma] [key=value...]")
	c.println("                              - Train an SVC on an 80/20 stratified split")
	c.println("                                keys: kernel cost gamma degree coef0 strategy epochs workers")
	c.println("  train-bg [same arguments]   - Train in the background")
	c.println("  evaluate                    - Report metrics on the held-out rows")
	c.println("  cv [folds]                  - Cross-validate the current configuration")
	c.println("  experiment [config.yaml]    - Sweep SVC parameters on the loaded data")

	c.println("\n" + c.cyan("Models:"))
	c.println("  save <file>                 - Save the current model bundle")
	c.println("  loadmodel <file>            - Load a saved model bundle")
	c.println("  current                     - Show the current model")

	c.println("\n" + c.cyan("Predictions:"))
	c.println("  predict v1,v2,...           - Classify one sample")
	c.println("  predict-file <file> [n]     - Classify a CSV in batches of n rows")

	c.println("\n" + c.cyan("Jobs:"))
	c.println("  jobs                        - List background jobs")
	c.println("  job-status <id>             - Show job details")
	c.println("  job-cancel <id>             - Cancel a running job")
	c.println("  job-logs <id>               - Show job logs")

	c.println("\n" + c.cyan("System:"))
	c.println("  help                        - Show this help message")
	c.println("  quit                        - Exit")
}

func (c *Commander) loadData(filename string) {
	startTime := time.Now()
	c.printf("Loading data from %s...\n", filename)

	ds, err := data.LoadFile(filename)
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	if err := data.NewDataValidator().ValidateDataset(ds); err != nil {
		c.fail("Invalid dataset: %v", err)
		return
	}

	c.mu.Lock()
	c.dataset = ds
	c.mu.Unlock()

	c.printf("%s Data loaded in %.3fs\n", c.green("✓"), time.Since(startTime).Seconds())
	c.showDataInfo()
	c.println("Ready to train! Use 'train [kernel] [cost] [gamma]'")
}

func (c *Commander) currentDataset() *data.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataset
}

func (c *Commander) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Commander) showDataInfo() {
	ds := c.currentDataset()
	if ds == nil {
		c.println(c.red("No data loaded. Use 'load <file>' first"))
		return
	}

	stats := data.NewDataValidator().GetDatasetStats(ds)
	c.println(strings.Repeat("─", 50))
	c.printf("Source:        %s\n", ds.Source)
	c.printf("Samples:       %d\n", stats.Samples)
	c.printf("Features:      %d\n", stats.Features)
	c.printf("Classes:       %d\n", stats.Classes)

	classes, counts := stats.SortedDistribution()
	c.printf("Distribution:  ")
	minCount, maxCount := stats.Samples, 0
	for i, class := range classes {
		c.printf("%s:%d ", ds.Encoder.Name(class), counts[i])
		minCount = min(minCount, counts[i])
		maxCount = max(maxCount, counts[i])
	}
	c.println()
	if minCount > 0 && float64(maxCount)/float64(minCount) > 2 {
		c.printf("%s Class imbalance detected (ratio: %.2f)\n", c.yellow("⚠"), float64(maxCount)/float64(minCount))
	}

	for _, fs := range stats.FeatureStats {
		c.printf("  %-12s min=%s max=%s mean=%s\n", fs.Name, fs.Min, fs.Max, fs.Mean.Round(4))
	}
	c.println(strings.Repeat("─", 50))
}

func (c *Commander) setScale(args []string) {
	if len(args) == 0 {
		c.printf("Scaling: %s\n", c.scaleType)
		return
	}
	kind, err := preprocessing.NormalizeScaleType(args[0])
	if err != nil {
		c.fail("%v", err)
		return
	}
	c.mu.Lock()
	c.scaleType = kind
	c.mu.Unlock()
	c.printf("%s Scaling set to %s\n", c.green("✓"), kind)
}

// parseTrainArgs applies positional kernel, cost and gamma arguments and
// key=value pairs on top of base.
func parseTrainArgs(base models.ModelConfig, args []string) (models.ModelConfig, error) {
	cfg := base
	positional := []string{"kernel", "cost", "gamma"}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			if len(positional) == 0 {
				return cfg, fmt.Errorf("unexpected argument %q", arg)
			}
			key, value = positional[0], arg
			positional = positional[1:]
		}

		var err error
		switch strings.ToLower(key) {
		case "kernel":
			cfg.Kernel = value
		case "strategy":
			cfg.Strategy = value
		case "cost", "c":
			cfg.Cost, err = strconv.ParseFloat(value, 64)
		case "gamma":
			cfg.Gamma, err = strconv.ParseFloat(value, 64)
		case "degree":
			cfg.Degree, err = strconv.ParseFloat(value, 64)
		case "coef0":
			cfg.Coef0, err = strconv.ParseFloat(value, 64)
		case "epochs":
			cfg.Epochs, err = strconv.Atoi(value)
		case "workers":
			cfg.Workers, err = strconv.Atoi(value)
		default:
			return cfg, fmt.Errorf("unknown parameter %q", key)
		}
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return cfg, cfg.Validate()
}

// fit splits ds, scales it, trains a model for cfg and scores it on the
// held-out rows.
func fit(ctx context.Context, ds *data.Dataset, cfg models.ModelConfig, scaleType string, logger *log.Logger) (*session, error) {
	train, test, err := evaluation.DefaultTrainTestSplitter().Split(ds)
	if err != nil {
		return nil, err
	}
	if err := data.NewDataValidator().ValidateTrainTestSplit(train, test); err != nil {
		return nil, err
	}

	scaler := preprocessing.NewScaler(scaleType)
	XTrain, err := scaler.FitTransform(train.X)
	if err != nil {
		return nil, err
	}
	XTest, err := scaler.Transform(test.X)
	if err != nil {
		return nil, err
	}

	model, err := models.CreateModel(cfg)
	if err != nil {
		return nil, err
	}
	if svc, ok := model.(*models.SVC); ok && logger != nil {
		svc.SetLogger(logger)
	}

	startTime := time.Now()
	if err := model.Fit(ctx, XTrain, train.Y); err != nil {
		return nil, err
	}
	trainingTime := time.Since(startTime)

	predictions, err := model.Predict(XTest)
	if err != nil {
		return nil, err
	}
	metrics, err := evaluation.CalculateMetrics(test.Y, predictions, ds.Classes)
	if err != nil {
		return nil, err
	}

	bundle := persistence.NewModelBundle(model)
	bundle.Scaler = scaler
	bundle.LabelEncoder = ds.Encoder
	bundle.Metadata.Dataset = ds.Source
	bundle.Metadata.Accuracy = metrics.Accuracy
	bundle.Metadata.Precision = metrics.MacroPrecision
	bundle.Metadata.Recall = metrics.MacroRecall
	bundle.Metadata.F1Score = metrics.MacroF1
	bundle.Metadata.TrainingTime = trainingTime
	bundle.Metadata.Features = ds.Features
	bundle.Metadata.Classes = ds.ClassNames()

	return &session{bundle: bundle, test: test, metrics: metrics}, nil
}

func (c *Commander) trainConfig(args []string) (*data.Dataset, models.ModelConfig, string, bool) {
	c.mu.Lock()
	ds, base, scaleType := c.dataset, c.config, c.scaleType
	c.mu.Unlock()

	if ds == nil {
		c.println(c.red("No data loaded. Use 'load <file>' first"))
		return nil, base, "", false
	}
	cfg, err := parseTrainArgs(base, args)
	if err != nil {
		c.fail("%v", err)
		return nil, base, "", false
	}
	return ds, cfg, scaleType, true
}

func (c *Commander) setSession(s *session, cfg models.ModelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.config = cfg
	c.currentModelPath = ""
}

func (c *Commander) trainModel(args []string) {
	ds, cfg, scaleType, ok := c.trainConfig(args)
	if !ok {
		return
	}

	c.printf("Training SVC (kernel=%s, cost=%g, gamma=%g, strategy=%s) on %d samples...\n",
		cfg.Kernel, cfg.Cost, cfg.Gamma, cfg.Strategy, ds.Len())
	s, err := fit(context.Background(), ds, cfg, scaleType, nil)
	if err != nil {
		c.fail("Training failed: %v", err)
		return
	}
	c.setSession(s, cfg)

	md := s.bundle.Metadata
	c.printf("%s Model trained in %v\n", c.green("✓"), md.TrainingTime.Round(time.Millisecond))
	c.printf("Support vectors: %d   SMO steps: %d\n", md.SupportVectors, md.Steps)
	c.printf("Test accuracy:   %s\n", c.green(fmt.Sprintf("%.4f", md.Accuracy)))
}

func (c *Commander) predict(args []string) {
	s := c.currentSession()
	if s == nil {
		c.println(c.red("No model available. Use 'train' or 'loadmodel' first"))
		return
	}
	if len(args) == 0 {
		c.println(c.red("Usage: predict v1,v2,..."))
		return
	}

	fields := strings.Split(strings.Join(args, ","), ",")
	var sample []decimal.Decimal
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := decimal.NewFromString(f)
		if err != nil {
			c.fail("Invalid value %q", f)
			return
		}
		sample = append(sample, v)
	}
	if want := len(s.bundle.Metadata.Features); want > 0 && len(sample) != want {
		c.fail("Expected %d values (%s), got %d", want, strings.Join(s.bundle.Metadata.Features, ", "), len(sample))
		return
	}

	X := [][]decimal.Decimal{sample}
	labels, err := s.bundle.PredictLabels(X)
	if err != nil {
		c.fail("Prediction failed: %v", err)
		return
	}
	c.printf("%s Predicted class: %s\n", c.green("✓"), c.cyan(labels[0]))

	if s.bundle.Scaler != nil {
		if X, err = s.bundle.Scaler.Transform(X); err != nil {
			return
		}
	}
	probs, err := s.bundle.Model.PredictProba(X)
	if err != nil {
		return
	}
	for i, class := range s.bundle.Model.GetClasses() {
		c.printf("  %-15s %s\n", s.bundle.LabelEncoder.Name(class), probs[0][i].StringFixed(3))
	}
}

// predictFile streams a CSV through the current model. A trailing label
// column, if present, is used to report accuracy.
func (c *Commander) predictFile(args []string) {
	s := c.currentSession()
	if s == nil {
		c.println(c.red("No model available. Use 'train' or 'loadmodel' first"))
		return
	}
	filename := args[0]
	batchSize := 1000
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			c.fail("Invalid batch size %q", args[1])
			return
		}
		batchSize = n
	}

	probe, err := data.NewStreamingReader(filename, data.NoLabel, 1)
	if err != nil {
		c.fail("%v", err)
		return
	}
	columns := len(probe.Headers())
	probe.Close()

	labelCol := data.NoLabel
	if dim := len(s.bundle.Metadata.Features); dim > 0 && columns == dim+1 {
		labelCol = -1
	}

	counts := make(map[string]int)
	total, correct := 0, 0
	err = data.ProcessFile(context.Background(), filename, labelCol, batchSize, func(batch *data.DataBatch) error {
		labels, err := s.bundle.PredictLabels(batch.X)
		if err != nil {
			return err
		}
		for i, label := range labels {
			counts[label]++
			if labelCol != data.NoLabel && batch.Labels[i] == label {
				correct++
			}
		}
		total += batch.Size
		c.printf("\rClassified %d rows...", total)
		return nil
	})
	c.println()
	if err != nil {
		c.fail("Batch prediction failed: %v", err)
		return
	}

	c.printf("%s Classified %d rows\n", c.green("✓"), total)
	for _, name := range s.bundle.Metadata.Classes {
		c.printf("  %-15s %d\n", name, counts[name])
	}
	if labelCol != data.NoLabel && total > 0 {
		c.printf("Accuracy against file labels: %.4f\n", float64(correct)/float64(total))
	}
}

func (c *Commander) evaluate() {
	s := c.currentSession()
	if s == nil {
		c.println(c.red("No model available. Use 'train' or 'loadmodel' first"))
		return
	}
	if s.metrics == nil {
		c.println(c.yellow("The current model was loaded from disk; train a model to evaluate it on held-out rows"))
		return
	}

	c.println(c.cyan("\nHeld-out evaluation"))
	c.printf("Test samples: %d\n", s.test.Len())
	c.println(s.metrics.FormatMetrics())

	names := make([]string, len(s.metrics.Classes))
	for i, class := range s.metrics.Classes {
		names[i] = s.bundle.LabelEncoder.Name(class)
	}
	c.println(c.cyan("Confusion matrix:"))
	c.println(s.metrics.FormatConfusionMatrix(names))
}

func (c *Commander) crossValidate(args []string) {
	c.mu.Lock()
	ds, cfg, scaleType := c.dataset, c.config, c.scaleType
	c.mu.Unlock()
	if ds == nil {
		c.println(c.red("No data loaded. Use 'load <file>' first"))
		return
	}

	folds := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 2 {
			c.fail("Invalid fold count %q", args[0])
			return
		}
		folds = n
	}

	X, err := preprocessing.NewScaler(scaleType).FitTransform(ds.X)
	if err != nil {
		c.fail("%v", err)
		return
	}
	scaled, err := ds.WithFeatures(X)
	if err != nil {
		c.fail("%v", err)
		return
	}
	model, err := models.CreateModel(cfg)
	if err != nil {
		c.fail("%v", err)
		return
	}

	c.printf("Running %d-fold cross validation (kernel=%s, cost=%g)...\n", folds, cfg.Kernel, cfg.Cost)
	res, err := evaluation.NewCrossValidator(folds, true).CrossValidate(context.Background(), scaled, model)
	if err != nil {
		c.fail("Cross validation failed: %v", err)
		return
	}
	for _, f := range res.Folds {
		c.printf("  Fold %d: %.4f (%d train / %d test)\n", f.Fold+1, f.Score, f.Train, f.Test)
	}
	c.printf("%s Mean accuracy: %.4f ± %.4f\n", c.green("✓"), res.Mean, res.Std)
}

func (c *Commander) saveModel(filename string) {
	s := c.currentSession()
	if s == nil {
		c.println(c.red("No model to save. Use 'train' first"))
		return
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.fail("%v", err)
			return
		}
	}
	if err := s.bundle.Save(filename); err != nil {
		c.fail("Failed to save model: %v", err)
		return
	}
	metaFile := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".txt"
	if err := s.bundle.SaveMetadata(metaFile); err != nil {
		c.printf("%s Failed to write metadata: %v\n", c.yellow("⚠"), err)
	}

	c.mu.Lock()
	c.currentModelPath = filename
	c.mu.Unlock()
	c.printf("%s Model saved to %s\n", c.green("✓"), filename)
}

func (c *Commander) loadModel(filename string) {
	bundle, err := persistence.LoadModelBundle(filename)
	if err != nil {
		c.fail("Failed to load model: %v", err)
		return
	}
	if bundle.LabelEncoder == nil {
		bundle.LabelEncoder = preprocessing.NewLabelEncoder()
	}

	c.mu.Lock()
	c.session = &session{bundle: bundle}
	c.config = bundle.Model.Config()
	c.currentModelPath = filename
	c.mu.Unlock()

	c.printf("%s Loaded %s (accuracy %.4f, %d support vectors)\n",
		c.green("✓"), bundle.Metadata.ModelName, bundle.Metadata.Accuracy, bundle.Metadata.SupportVectors)
}

func (c *Commander) showCurrentModel() {
	s := c.currentSession()
	if s == nil {
		c.println("No model loaded")
		return
	}

	c.mu.Lock()
	path := c.currentModelPath
	c.mu.Unlock()

	md := s.bundle.Metadata
	c.println(c.cyan("\nCurrent model:"))
	c.printf("Model:           %s\n", md.ModelName)
	if path != "" {
		c.printf("File:            %s\n", path)
	}
	c.printf("Dataset:         %s\n", md.Dataset)
	c.printf("Classes:         %s\n", strings.Join(md.Classes, ", "))
	c.printf("Accuracy:        %.4f\n", md.Accuracy)
	c.printf("Support vectors: %d\n", md.SupportVectors)
	c.printf("SMO steps:       %d\n", md.Steps)
	c.printf("Parameters:      %v\n", md.Parameters)
}
