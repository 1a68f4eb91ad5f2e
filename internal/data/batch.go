package data

import "fmt"

// BatchProcessor walks a Dataset in consecutive row ranges.
type BatchProcessor struct {
	batchSize int
}

func NewBatchProcessor(batchSize int) *BatchProcessor {
	return &BatchProcessor{batchSize: batchSize}
}

// ProcessBatches calls processFn with each batch and the offset of its
// first row.
func (bp *BatchProcessor) ProcessBatches(ds *Dataset, processFn func(offset int, batch *Dataset) error) error {
	if bp.batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", bp.batchSize)
	}

	n := ds.Len()
	for start := 0; start < n; start += bp.batchSize {
		end := min(start+bp.batchSize, n)
		batch := &Dataset{
			X:        ds.X[start:end],
			Y:        ds.Y[start:end],
			Features: ds.Features,
			Encoder:  ds.Encoder,
			Source:   ds.Source,
		}
		batch.Classes = sortedClasses(batch.Y)
		if err := processFn(start, batch); err != nil {
			return fmt.Errorf("batch at row %d: %w", start, err)
		}
	}
	return nil
}

func (bp *BatchProcessor) SetBatchSize(size int) {
	bp.batchSize = size
}

func (bp *BatchProcessor) GetBatchSize() int {
	return bp.batchSize
}
