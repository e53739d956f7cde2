package robust

import "gonum.org/v1/gonum/mat"

// Adapter connects the generic engine to one geometric model family.
// M is the model type (circle, plane, homography, ...), C the
// correspondence type the model is fit against (a point, a point pair).
//
// Fit receives a minimal sample of SampleSize correspondences and returns
// the candidate models it determines. A sample that does not determine a
// model must return ErrDegenerateSample (wrapped or bare); the engine then
// retries with a fresh sample. Some solvers legitimately produce more than
// one candidate per sample; each is scored independently.
//
// Residual must be a pure function returning a non-negative scalar.
type Adapter[M, C any] interface {
	SampleSize() int
	Fit(sample []C) ([]M, error)
	Residual(model M, c C) float64
}

// Refiner is implemented by adapters that support local nonlinear
// refinement of the best model over its consensus set. weights is parallel
// to inliers and carries quality scores when the estimator has them, or
// uniform 1.0 weights otherwise. The returned covariance may be nil when
// the solver has no meaningful estimate for it.
type Refiner[M, C any] interface {
	Refine(model M, data []C, inliers []int, weights []float64) (M, *mat.SymDense, error)
}

// SuggestionRefiner extends Refiner for adapters that can bias refinement
// toward externally suggested parameter values. suggestionWeight scales the
// penalty for deviating from the suggestion; the engine sweeps it between
// the configured min and max suggestion weights.
type SuggestionRefiner[M, C any] interface {
	Refiner[M, C]
	RefineWithSuggestion(model M, data []C, inliers []int, weights []float64, suggestionWeight float64) (M, *mat.SymDense, error)
}
