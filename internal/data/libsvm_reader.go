package data

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"mlsvm/internal/preprocessing"
)

// LIBSVMReader loads sparse "label index:value ..." files as written by
// libsvm and SVMlight. Indices are 1-based; missing entries are zero.
type LIBSVMReader struct {
	filename string
	// NumFeatures fixes the dimension; zero uses the largest index seen.
	NumFeatures int
}

func NewLIBSVMReader(filename string) *LIBSVMReader {
	return &LIBSVMReader{filename: filename}
}

type sparseRow struct {
	label  string
	index  []int
	values []decimal.Decimal
}

func (lr *LIBSVMReader) LoadData() (*Dataset, error) {
	file, err := os.Open(lr.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var rows []sparseRow
	maxIndex := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if k := strings.IndexByte(line, '#'); k >= 0 {
			line = line[:k]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		row, err := parseSparse(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		for _, idx := range row.index {
			maxIndex = max(maxIndex, idx)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", lr.filename, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insufficient data in file %s", lr.filename)
	}

	dim := maxIndex
	if lr.NumFeatures > 0 {
		if maxIndex > lr.NumFeatures {
			return nil, fmt.Errorf("feature index %d exceeds the configured %d features", maxIndex, lr.NumFeatures)
		}
		dim = lr.NumFeatures
	}

	X := make([][]decimal.Decimal, len(rows))
	labels := make([]string, len(rows))
	for i, row := range rows {
		X[i] = make([]decimal.Decimal, dim)
		for j := range X[i] {
			X[i][j] = decimal.Zero
		}
		for k, idx := range row.index {
			X[i][idx-1] = row.values[k]
		}
		labels[i] = row.label
	}

	features := make([]string, dim)
	for j := range features {
		features[j] = "f" + strconv.Itoa(j+1)
	}

	encoder := preprocessing.NewLabelEncoder()
	y, err := encoder.FitTransform(labels)
	if err != nil {
		return nil, err
	}
	return NewDataset(X, y, features, encoder, lr.filename)
}

func parseSparse(fields []string) (sparseRow, error) {
	row := sparseRow{label: fields[0]}
	prev := 0
	for _, f := range fields[1:] {
		idxStr, valStr, ok := strings.Cut(f, ":")
		if !ok {
			return row, fmt.Errorf("malformed feature %q", f)
		}
		// SVMlight query ids carry no feature value.
		if idxStr == "qid" {
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 1 {
			return row, fmt.Errorf("invalid feature index %q", idxStr)
		}
		if idx <= prev {
			return row, fmt.Errorf("feature indices must be ascending, got %d after %d", idx, prev)
		}
		v, err := decimal.NewFromString(valStr)
		if err != nil {
			return row, fmt.Errorf("invalid value for feature %d: %q", idx, valStr)
		}
		row.index = append(row.index, idx)
		row.values = append(row.values, v)
		prev = idx
	}
	return row, nil
}
