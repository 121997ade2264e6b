package drift

import "errors"

// Sentinel errors returned by Fit, FromSnapshot, and Update.
var (
	// ErrEmptyBaseline is returned when Fit is given no baseline samples.
	ErrEmptyBaseline = errors.New("drift: empty baseline")

	// ErrInsufficientData is returned when the baseline is too small to
	// fill even one bin at the configured minimum bin mass.
	ErrInsufficientData = errors.New("drift: insufficient baseline data for minimum bin mass")

	// ErrInvalidConfig is returned by Fit for a non-positive window size,
	// bin count, or threshold, or a confidence level outside (0, 1).
	ErrInvalidConfig = errors.New("drift: invalid configuration")

	// ErrInvalidObservation is returned by Update for NaN or infinite
	// input. The window is not mutated when this error is returned.
	ErrInvalidObservation = errors.New("drift: observation is not a finite number")
)
