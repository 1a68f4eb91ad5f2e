package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"mlsvm/internal/preprocessing"
)

// CSVReader loads a CSV file with a header row. Every column except the
// label column is a numeric feature.
type CSVReader struct {
	filename string
	// LabelCol is the index of the label column; negative selects the last.
	LabelCol int
}

func NewCSVReader(filename string) *CSVReader {
	return &CSVReader{filename: filename, LabelCol: -1}
}

func (cr *CSVReader) LoadData() (*Dataset, error) {
	file, err := os.Open(cr.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cr.filename, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("insufficient data in file %s", cr.filename)
	}

	header := records[0]
	labelCol := cr.LabelCol
	if labelCol < 0 || labelCol >= len(header) {
		labelCol = len(header) - 1
	}
	features := make([]string, 0, len(header)-1)
	for j, name := range header {
		if j != labelCol {
			features = append(features, name)
		}
	}

	var X [][]decimal.Decimal
	var labels []string
	for i, record := range records[1:] {
		if hasEmptyField(record) {
			continue
		}
		row, label, err := parseRecord(record, labelCol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		X = append(X, row)
		labels = append(labels, label)
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("no complete rows in %s", cr.filename)
	}

	encoder := preprocessing.NewLabelEncoder()
	y, err := encoder.FitTransform(labels)
	if err != nil {
		return nil, err
	}

	return NewDataset(X, y, features, encoder, cr.filename)
}

func hasEmptyField(record []string) bool {
	for _, val := range record {
		if strings.TrimSpace(val) == "" {
			return true
		}
	}
	return false
}

func parseRecord(record []string, labelCol int) ([]decimal.Decimal, string, error) {
	row := make([]decimal.Decimal, 0, len(record)-1)
	label := ""
	for j, val := range record {
		if j == labelCol {
			label = strings.TrimSpace(val)
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return nil, "", fmt.Errorf("invalid numeric value in column %d: %q", j, val)
		}
		row = append(row, v)
	}
	return row, label, nil
}

// LoadFile reads a dataset, choosing the format by extension: .svm,
// .libsvm and .svmlight are sparse LIBSVM files, anything else is CSV.
func LoadFile(filename string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".svm", ".libsvm", ".svmlight":
		return NewLIBSVMReader(filename).LoadData()
	default:
		return NewCSVReader(filename).LoadData()
	}
}
