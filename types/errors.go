package types

import "errors"

// Domain errors. Adapters wrap them with context; callers test with errors.Is.
var (
	// ErrNotFound indicates a referenced chunk id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed arguments, e.g. mismatched lengths.
	ErrInvalidInput = errors.New("invalid input")

	// ErrResetDisabled indicates a destructive reset on a store built without allow-reset.
	ErrResetDisabled = errors.New("reset is disabled")

	// ErrEmptyEmbedding indicates the inference server returned no vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrUnsupportedFile indicates an upload with a file type the ingest path cannot read.
	ErrUnsupportedFile = errors.New("unsupported file type")
)
