package pipeline

import (
	"strconv"
	"strings"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// Batch is a contiguous slice of the submitted items.
type Batch struct {
	// Index is 0-based.
	Index int
	// Start is the 0-based position of the first item in the submission.
	Start int
	Items []models.Item
}

// Number is the 1-based batch number used in names and messages.
func (b Batch) Number() int { return b.Index + 1 }

// Rows returns the 1-based submission rows covered by the batch.
func (b Batch) Rows() []int {
	rows := make([]int, len(b.Items))
	for i := range rows {
		rows[i] = b.Start + i + 1
	}
	return rows
}

// Partition splits items into ordered batches of at most size items.
func Partition(items []models.Item, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([]Batch, 0, BatchCount(len(items), size))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, Batch{
			Index: len(batches),
			Start: start,
			Items: items[start:end],
		})
	}
	return batches
}

// BatchCount is the number of batches Partition yields for n items.
func BatchCount(n, size int) int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return (n + size - 1) / size
}

func joinRows(rows []int) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}
