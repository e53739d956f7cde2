package fit

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// degenerateRatio is the singular-value ratio below which a design matrix
// is treated as rank-deficient.
const degenerateRatio = 1e-10

var errRankDeficient = errors.New("fit: rank-deficient design")

// nullSpaceVector returns the right singular vector of a belonging to its
// smallest singular value, i.e. the unit solution of a·v ≈ 0. It fails
// when the second-smallest singular value is also (relatively) zero, which
// means the null space has dimension greater than one and the sample does
// not determine a unique model.
func nullSpaceVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return nil, errRankDeficient
	}

	_, cols := a.Dims()
	s := svd.Values(nil)
	// A unique (up to scale) null vector requires rank n-1: the
	// second-smallest singular value σ_{n-1} must be well away from zero.
	// σ_n itself is near zero for consistent data and is not a rank guard.
	if len(s) < cols-1 || s[0] == 0 || s[cols-2]/s[0] < degenerateRatio {
		return nil, errRankDeficient
	}

	var v mat.Dense
	svd.VTo(&v)
	out := make([]float64, cols)
	for i := range out {
		out[i] = v.At(i, cols-1)
	}
	return out, nil
}

// solveNormal solves the weighted normal equations (JᵀWJ)·x = rhs and, when
// requested, also returns (JᵀWJ)⁻¹ scaled by sigma2 as the parameter
// covariance.
func solveNormal(jtj *mat.SymDense, rhs []float64, sigma2 float64, wantCov bool) ([]float64, *mat.SymDense, error) {
	n := jtj.SymmetricDim()

	var chol mat.Cholesky
	if !chol.Factorize(jtj) {
		return nil, nil, errRankDeficient
	}

	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(n, rhs)); err != nil {
		return nil, nil, err
	}
	sol := make([]float64, n)
	copy(sol, x.RawVector().Data)

	if !wantCov {
		return sol, nil, nil
	}
	cov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return sol, nil, nil
	}
	cov.ScaleSym(sigma2, cov)
	return sol, cov, nil
}
