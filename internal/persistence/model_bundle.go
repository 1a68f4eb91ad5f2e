package persistence

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"mlsvm/internal/models"
	"mlsvm/internal/preprocessing"
)

func init() {
	gob.Register(&models.SVC{})
}

// ModelBundle is everything needed to classify raw feature rows: the
// trained model, the scaler fitted on its training data and the encoder
// that names its classes.
type ModelBundle struct {
	Model        models.Model
	Scaler       *preprocessing.Scaler
	LabelEncoder *preprocessing.LabelEncoder
	Metadata     BundleMetadata
	CreatedAt    time.Time
}

type BundleMetadata struct {
	ModelName      string
	Dataset        string
	Accuracy       float64
	Precision      float64
	Recall         float64
	F1Score        float64
	TrainingTime   time.Duration
	Steps          int
	SupportVectors int
	Features       []string
	Classes        []string
	Parameters     map[string]any
}

func NewModelBundle(model models.Model) *ModelBundle {
	mb := &ModelBundle{
		Model:     model,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  model.GetName(),
			Parameters: model.GetParams(),
		},
	}
	if svc, ok := model.(*models.SVC); ok {
		mb.Metadata.Steps = svc.Steps
		mb.Metadata.SupportVectors = svc.NumSupportVectors()
	}
	return mb
}

// PredictLabels scales X with the bundled scaler, classifies it and maps
// the predictions back to class names.
func (mb *ModelBundle) PredictLabels(X [][]decimal.Decimal) ([]string, error) {
	var err error
	if mb.Scaler != nil {
		if X, err = mb.Scaler.Transform(X); err != nil {
			return nil, err
		}
	}
	pred, err := mb.Model.Predict(X)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(pred))
	for i, p := range pred {
		names[i] = mb.LabelEncoder.Name(p)
	}
	return names, nil
}

func (mb *ModelBundle) Encode(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(mb); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return nil
}

func DecodeModelBundle(r io.Reader) (*ModelBundle, error) {
	var bundle ModelBundle
	if err := gob.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if bundle.Model == nil {
		return nil, fmt.Errorf("bundle holds no model")
	}
	return &bundle, nil
}

func (mb *ModelBundle) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := mb.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func LoadModelBundle(filename string) (*ModelBundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return DecodeModelBundle(file)
}

// SaveMetadata writes a human readable summary of the bundle.
func (mb *ModelBundle) SaveMetadata(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	md := mb.Metadata
	fmt.Fprintf(file, "Model: %s\n", md.ModelName)
	fmt.Fprintf(file, "Dataset: %s\n", md.Dataset)
	fmt.Fprintf(file, "Created: %s\n", mb.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(file, "Classes: %v\n", md.Classes)
	fmt.Fprintf(file, "Features: %v\n", md.Features)
	fmt.Fprintf(file, "Accuracy: %.4f\n", md.Accuracy)
	fmt.Fprintf(file, "Precision: %.4f\n", md.Precision)
	fmt.Fprintf(file, "Recall: %.4f\n", md.Recall)
	fmt.Fprintf(file, "F1 Score: %.4f\n", md.F1Score)
	fmt.Fprintf(file, "Training Time: %v\n", md.TrainingTime)
	fmt.Fprintf(file, "SMO Steps: %d\n", md.Steps)
	fmt.Fprintf(file, "Support Vectors: %d\n", md.SupportVectors)

	keys := make([]string, 0, len(md.Parameters))
	for k := range md.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(file, "  %s: %v\n", k, md.Parameters[k])
	}

	return nil
}
