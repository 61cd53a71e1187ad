package driver

import "errors"

// ErrInvalidBatchSize is returned by Partition for a non-positive batch size.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Batch is the half-open range [Start, End) of a vector list submitted as one
// upsert call.
type Batch struct {
	Index int
	Start int
	End   int
}

// Len is the number of vectors in the batch.
func (b Batch) Len() int { return b.End - b.Start }

// Partition splits n items into ceil(n/size) contiguous batches in index
// order. Every batch except possibly the last holds exactly size items.
func Partition(n, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if n <= 0 {
		return []Batch{}, nil
	}

	count := (n + size - 1) / size
	batches := make([]Batch, count)
	for i := range batches {
		start := i * size
		batches[i] = Batch{Index: i, Start: start, End: min(start+size, n)}
	}
	return batches, nil
}
