package port

import "errors"

// Sentinel errors used across adapters.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyEmbedding    = errors.New("empty embedding response")
	ErrBatchSize         = errors.New("embedding count does not match input count")
	ErrStoreClosed       = errors.New("vector store closed")
)
