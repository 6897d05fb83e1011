package pipeline

import (
	"testing"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{WhatIsA: "thing"}
	}
	return items
}

func TestPartition_CountsAndRows(t *testing.T) {
	for _, size := range []int{1, 3, 5, 12} {
		for n := 1; n <= 40; n++ {
			batches := Partition(makeItems(n), size)

			require.Len(t, batches, (n+size-1)/size, "n=%d size=%d", n, size)
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				assert.Equal(t, i+1, b.Number())

				want := []int{}
				for r := i*size + 1; r <= min((i+1)*size, n); r++ {
					want = append(want, r)
				}
				assert.Equal(t, want, b.Rows(), "n=%d size=%d batch=%d", n, size, i)
			}
		}
	}
}

func TestPartition_TwentyFiveByTwelve(t *testing.T) {
	batches := Partition(makeItems(25), 12)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Items, 12)
	assert.Len(t, batches[1].Items, 12)
	assert.Len(t, batches[2].Items, 1)
	assert.Equal(t, []int{25}, batches[2].Rows())
}

func TestPartition_Empty(t *testing.T) {
	assert.Empty(t, Partition(nil, 12))
}

func TestPartition_NonPositiveSizeUsesDefault(t *testing.T) {
	batches := Partition(makeItems(13), 0)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Items, DefaultBatchSize)
}

func TestJoinRows(t *testing.T) {
	assert.Equal(t, "13, 14, 15", joinRows([]int{13, 14, 15}))
	assert.Equal(t, "", joinRows(nil))
}

func TestBatchCount(t *testing.T) {
	assert.Equal(t, 0, BatchCount(0, 12))
	assert.Equal(t, 1, BatchCount(12, 12))
	assert.Equal(t, 3, BatchCount(25, 12))
	assert.Equal(t, 3, BatchCount(25, 0))
	assert.Equal(t, len(Partition(makeItems(30), 7)), BatchCount(30, 7))
}
