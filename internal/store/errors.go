package store

import "fmt"

// notFoundError signals a missing adapter directory for 404 mapping.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "adapter not found: " + e.id }

// ErrNotFound returns an error for an adapter id with no directory on disk.
func ErrNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether err indicates a missing adapter.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// invalidMetadataError signals unparseable or inconsistent metadata.json.
type invalidMetadataError struct {
	id    string
	cause error
}

func (e invalidMetadataError) Error() string {
	return fmt.Sprintf("invalid metadata for adapter %s: %v", e.id, e.cause)
}

func (e invalidMetadataError) Unwrap() error { return e.cause }

// ErrInvalidMetadata constructs an invalidMetadataError.
func ErrInvalidMetadata(id string, cause error) error {
	return invalidMetadataError{id: id, cause: cause}
}

// IsInvalidMetadata reports whether err indicates corrupt adapter metadata.
func IsInvalidMetadata(err error) bool {
	_, ok := err.(invalidMetadataError)
	return ok
}

// invalidWeightsError signals an unreadable weight file or violated shape
// invariants that left no usable layers.
type invalidWeightsError struct {
	id    string
	cause error
}

func (e invalidWeightsError) Error() string {
	return fmt.Sprintf("invalid weights for adapter %s: %v", e.id, e.cause)
}

func (e invalidWeightsError) Unwrap() error { return e.cause }

// ErrInvalidWeights constructs an invalidWeightsError.
func ErrInvalidWeights(id string, cause error) error {
	return invalidWeightsError{id: id, cause: cause}
}

// IsInvalidWeights reports whether err indicates corrupt adapter weights.
func IsInvalidWeights(err error) bool {
	_, ok := err.(invalidWeightsError)
	return ok
}
