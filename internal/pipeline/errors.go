package pipeline

import "errors"

var (
	ErrNoItems          = errors.New("no items provided")
	ErrInvalidJobID     = errors.New("invalid job id")
	ErrJobTimeout       = errors.New("pdf generation timeout")
	ErrAllBatchesFailed = errors.New("all batches failed")
)
