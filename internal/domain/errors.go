package domain

import "errors"

var (
	// ErrModelNotFound is returned when a model cannot be found in the database
	ErrModelNotFound = errors.New("model not found")

	// ErrModelNotClaimable is returned when a model is no longer SCHEDULED when a worker tries to claim it
	ErrModelNotClaimable = errors.New("model already claimed or not in SCHEDULED status")

	// ErrInvalidPayload is returned when a dispatch event or its payload is malformed
	ErrInvalidPayload = errors.New("invalid event payload")

	// ErrUnroutable is returned when no handler is registered for a routing key
	ErrUnroutable = errors.New("no handler registered for channel")

	// ErrTrainingThrottled is returned when a model was created too recently to schedule another
	ErrTrainingThrottled = errors.New("a model was scheduled too recently")

	// ErrInvalidHyperparameters is returned when a search space is empty or inverted
	ErrInvalidHyperparameters = errors.New("invalid hyperparameter search space")

	// ErrNoDataset is returned when the property export cannot be obtained
	ErrNoDataset = errors.New("dataset unavailable")

	// ErrEmptyDataset is returned when the dataset has too few usable rows to train on
	ErrEmptyDataset = errors.New("dataset has no usable rows")

	// ErrStoreUnavailable is returned when the store gave up on a statement
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidListing is returned when a listing cannot be encoded with a model's encoders
	ErrInvalidListing = errors.New("invalid listing")

	// ErrDispatchFailed is returned when a dispatch event could not be published
	ErrDispatchFailed = errors.New("failed to dispatch training event")
)
