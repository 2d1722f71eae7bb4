package trainer

import "fmt"

// datasetNotFoundError signals a missing dataset file.
type datasetNotFoundError struct{ path string }

func (e datasetNotFoundError) Error() string { return "dataset not found: " + e.path }

// ErrDatasetNotFound constructs a datasetNotFoundError.
func ErrDatasetNotFound(path string) error { return datasetNotFoundError{path: path} }

// IsDatasetNotFound reports whether err indicates a missing dataset file.
func IsDatasetNotFound(err error) bool {
	_, ok := err.(datasetNotFoundError)
	return ok
}

// datasetLoadFailedError signals a dataset that produced zero usable examples.
type datasetLoadFailedError struct{ reason string }

func (e datasetLoadFailedError) Error() string { return "dataset load failed: " + e.reason }

// ErrDatasetLoadFailed constructs a datasetLoadFailedError.
func ErrDatasetLoadFailed(reason string) error { return datasetLoadFailedError{reason: reason} }

// IsDatasetLoadFailed reports whether err indicates an unusable dataset.
func IsDatasetLoadFailed(err error) bool {
	_, ok := err.(datasetLoadFailedError)
	return ok
}

// scriptNotFoundError signals a missing training backend script.
type scriptNotFoundError struct{ path string }

func (e scriptNotFoundError) Error() string { return "training script not found: " + e.path }

// ErrScriptNotFound constructs a scriptNotFoundError.
func ErrScriptNotFound(path string) error { return scriptNotFoundError{path: path} }

// IsScriptNotFound reports whether err indicates a missing backend script.
func IsScriptNotFound(err error) bool {
	_, ok := err.(scriptNotFoundError)
	return ok
}

// processError signals a training subprocess failure, carrying the backend's
// own message or a stderr tail.
type processError struct{ msg string }

func (e processError) Error() string { return "training process failed: " + e.msg }

// ErrProcess constructs a processError.
func ErrProcess(msg string) error { return processError{msg: msg} }

// IsProcessError reports whether err is a subprocess failure.
func IsProcessError(err error) bool {
	if _, ok := err.(processError); ok {
		return true
	}
	_, ok := err.(oomError)
	return ok
}

// oomError is the out-of-memory sub-classification of a process failure; its
// message carries a concrete remediation suggestion.
type oomError struct {
	rank      int
	batchSize int
}

func (e oomError) Error() string {
	return fmt.Sprintf(
		"training ran out of memory; retry with rank %d and batch size %d",
		halved(e.rank), halved(e.batchSize))
}

func halved(n int) int {
	if n <= 1 {
		return 1
	}
	return n / 2
}

// ErrOutOfMemory constructs an oomError for the given job hyperparameters.
func ErrOutOfMemory(rank, batchSize int) error { return oomError{rank: rank, batchSize: batchSize} }

// IsOutOfMemory reports whether err is the OOM sub-classification.
func IsOutOfMemory(err error) bool {
	_, ok := err.(oomError)
	return ok
}

// cancelledError signals a job aborted by Cancel.
type cancelledError struct{}

func (cancelledError) Error() string { return "training cancelled" }

// ErrCancelled constructs a cancelledError.
func ErrCancelled() error { return cancelledError{} }

// IsCancelled reports whether err indicates a cancelled job.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledError)
	return ok
}

// jobActiveError signals a Start call while the single job slot is occupied.
type jobActiveError struct{ id string }

func (e jobActiveError) Error() string { return "a training job is already active: " + e.id }

// ErrJobActive constructs a jobActiveError.
func ErrJobActive(id string) error { return jobActiveError{id: id} }

// IsJobActive reports whether err indicates an occupied job slot.
func IsJobActive(err error) bool {
	_, ok := err.(jobActiveError)
	return ok
}

// noActiveJobError signals Cancel with nothing running.
type noActiveJobError struct{}

func (noActiveJobError) Error() string { return "no active training job" }

// ErrNoActiveJob constructs a noActiveJobError.
func ErrNoActiveJob() error { return noActiveJobError{} }

// IsNoActiveJob reports whether err indicates an idle trainer.
func IsNoActiveJob(err error) bool {
	_, ok := err.(noActiveJobError)
	return ok
}

// modelNotFoundError signals a model id with no file on disk.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}
