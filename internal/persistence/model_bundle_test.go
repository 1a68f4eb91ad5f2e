package persistence

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"mlsvm/internal/models"
	"mlsvm/internal/preprocessing"
)

func trainedBundle(t *testing.T) (*ModelBundle, [][]decimal.Decimal, []string) {
	t.Helper()
	raw := [][]float64{{1, 50}, {12, 160}, {2, 80}, {3, 170}, {14, 10}}
	names := []string{"A", "A", "A", "B", "B"}

	X := make([][]decimal.Decimal, len(raw))
	for i, row := range raw {
		for _, v := range row {
			X[i] = append(X[i], decimal.NewFromFloat(v))
		}
	}
	encoder := preprocessing.NewLabelEncoder()
	y, err := encoder.FitTransform(names)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	scaler := preprocessing.NewScaler("minmax")
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}

	cfg := models.DefaultConfig(models.AlgorithmSVC)
	cfg.Cost = 50
	cfg.Gamma = 5
	model, err := models.CreateModel(cfg)
	if err != nil {
		t.Fatalf("CreateModel: %v", err)
	}
	if err := model.Fit(context.Background(), scaled, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	mb := NewModelBundle(model)
	mb.Scaler = scaler
	mb.LabelEncoder = encoder
	mb.Metadata.Dataset = "toy"
	mb.Metadata.Classes = encoder.Names
	mb.Metadata.Features = []string{"x", "y"}
	return mb, X, names
}

func TestBundleSaveLoad(t *testing.T) {
	mb, X, names := trainedBundle(t)

	want, err := mb.PredictLabels(X)
	if err != nil {
		t.Fatalf("PredictLabels: %v", err)
	}
	if !slices.Equal(want, names) {
		t.Fatalf("trained model predicts %v, want %v", want, names)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := mb.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadModelBundle(path)
	if err != nil {
		t.Fatalf("LoadModelBundle: %v", err)
	}

	got, err := loaded.PredictLabels(X)
	if err != nil {
		t.Fatalf("PredictLabels after load: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Errorf("loaded bundle predicts %v, want %v", got, want)
	}
	if loaded.Metadata.Dataset != "toy" || loaded.Metadata.SupportVectors == 0 || loaded.Metadata.Steps == 0 {
		t.Errorf("metadata = %+v", loaded.Metadata)
	}
	if loaded.Model.Config().Cost != 50 {
		t.Errorf("restored config = %+v", loaded.Model.Config())
	}
}

func TestBundleEncodeDecode(t *testing.T) {
	mb, X, _ := trainedBundle(t)

	var buf bytes.Buffer
	if err := mb.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeModelBundle(&buf)
	if err != nil {
		t.Fatalf("DecodeModelBundle: %v", err)
	}
	scaled, _ := mb.Scaler.Transform(X)
	a, _ := mb.Model.PredictProba(scaled)
	b, err := decoded.Model.PredictProba(scaled)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	for i := range a {
		for j := range a[i] {
			if !a[i][j].Equal(b[i][j]) {
				t.Errorf("probability [%d][%d] = %s after decoding, want %s", i, j, b[i][j], a[i][j])
			}
		}
	}

	if _, err := DecodeModelBundle(strings.NewReader("not a bundle")); err == nil {
		t.Error("expected an error for a corrupt bundle")
	}
}

func TestSaveMetadata(t *testing.T) {
	mb, _, _ := trainedBundle(t)
	mb.Metadata.Accuracy = 0.9876

	path := filepath.Join(t.TempDir(), "model.txt")
	if err := mb.SaveMetadata(path); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(raw)
	for _, want := range []string{"Model: SVC", "Dataset: toy", "Accuracy: 0.9876", "kernel: rbf", "Classes: [A B]"} {
		if !strings.Contains(text, want) {
			t.Errorf("metadata missing %q:\n%s", want, text)
		}
	}
}
