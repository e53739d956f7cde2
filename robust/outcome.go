package robust

import "gonum.org/v1/gonum/mat"

// Outcome is the result of one successful Estimate call.
type Outcome[M any] struct {
	// Model is the best (optionally refined) model found.
	Model M

	// Inliers holds the indices of the consensus set, ascending. Nil
	// unless KeepInliers is set.
	Inliers []int

	// Residuals holds the per-correspondence residuals of the best
	// pre-refinement model. Nil unless KeepResiduals is set.
	Residuals []float64

	// Covariance is the refined model's parameter covariance. Nil unless
	// refinement ran, KeepCovariance is set and the adapter produced one.
	Covariance *mat.SymDense

	// Iterations is the number of completed sampling iterations.
	Iterations int

	// NumInliers is the consensus set size, available regardless of
	// KeepInliers.
	NumInliers int
}
