package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
)

// NoLabel tells a StreamingReader that every column is a feature.
const NoLabel = -2

type DataBatch struct {
	X      [][]decimal.Decimal
	Labels []string
	Size   int
}

// StreamingReader reads a CSV file in fixed-size batches, for prediction
// over files too large to load at once. Rows with empty fields are skipped.
type StreamingReader struct {
	file      *os.File
	reader    *csv.Reader
	headers   []string
	labelCol  int
	batchSize int
	line      int
}

// NewStreamingReader opens filename and consumes its header. A negative
// labelCol other than NoLabel selects the last column.
func NewStreamingReader(filename string, labelCol int, batchSize int) (*StreamingReader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	if labelCol != NoLabel && (labelCol < 0 || labelCol >= len(headers)) {
		labelCol = len(headers) - 1
	}

	return &StreamingReader{
		file:      file,
		reader:    reader,
		headers:   headers,
		labelCol:  labelCol,
		batchSize: batchSize,
		line:      1,
	}, nil
}

// ReadBatch returns up to batchSize rows, or io.EOF once the file is
// exhausted.
func (sr *StreamingReader) ReadBatch() (*DataBatch, error) {
	batch := &DataBatch{
		X:      make([][]decimal.Decimal, 0, sr.batchSize),
		Labels: make([]string, 0, sr.batchSize),
	}

	for len(batch.X) < sr.batchSize {
		record, err := sr.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		sr.line++
		if err != nil {
			return nil, fmt.Errorf("error reading record at line %d: %w", sr.line, err)
		}
		if hasEmptyField(record) {
			continue
		}

		row, label, err := parseRecord(record, sr.labelCol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", sr.line, err)
		}
		batch.X = append(batch.X, row)
		batch.Labels = append(batch.Labels, label)
	}

	if len(batch.X) == 0 {
		return nil, io.EOF
	}
	batch.Size = len(batch.X)
	return batch, nil
}

func (sr *StreamingReader) Headers() []string {
	return sr.headers
}

func (sr *StreamingReader) HasLabels() bool {
	return sr.labelCol != NoLabel
}

func (sr *StreamingReader) Close() error {
	return sr.file.Close()
}

// ProcessFile streams filename through processor batch by batch, stopping
// early if ctx is cancelled.
func ProcessFile(ctx context.Context, filename string, labelCol, batchSize int, processor func(*DataBatch) error) error {
	reader, err := NewStreamingReader(filename, labelCol, batchSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	for batchNum := 0; ; batchNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := reader.ReadBatch()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading batch %d: %w", batchNum, err)
		}
		if err := processor(batch); err != nil {
			return fmt.Errorf("error processing batch %d: %w", batchNum, err)
		}
	}
}
