package robust

import "errors"

// Sentinel errors returned by estimator methods. Callers should test with
// errors.Is; wrapped variants carry detail about the offending value.
var (
	// ErrInvalidSetting is returned by setters when a value is outside its
	// allowed range. The previous value is left untouched.
	ErrInvalidSetting = errors.New("robust: invalid setting")

	// ErrNotReady is returned by Estimate when required data is missing or
	// inconsistent (no correspondences, too few for a minimal sample, or
	// quality scores absent for a method that needs them).
	ErrNotReady = errors.New("robust: estimator not ready")

	// ErrLocked is returned by any mutator, and by a reentrant Estimate,
	// while an estimation is in progress.
	ErrLocked = errors.New("robust: estimator locked")

	// ErrEstimationFailed is returned when no valid candidate model could
	// be found (for example, every drawn sample was degenerate) or when
	// refinement of the best candidate did not converge.
	ErrEstimationFailed = errors.New("robust: estimation failed")

	// ErrDegenerateSample is the adapter-side signal that a minimal sample
	// does not determine a model (collinear points, repeated
	// correspondences, rank-deficient design). The engine retries with a
	// fresh sample instead of aborting.
	ErrDegenerateSample = errors.New("robust: degenerate sample")
)
