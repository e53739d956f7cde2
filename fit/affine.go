package fit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Affine2D is a 2D affine transform:
//
//	x' = A·x + B·y + Tx
//	y' = C·x + D·y + Ty
type Affine2D struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns the identity transform.
func Identity() Affine2D {
	return Affine2D{A: 1, D: 1}
}

// Apply transforms p.
func (m Affine2D) Apply(p orb.Point) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.Tx,
		m.C*p[0] + m.D*p[1] + m.Ty,
	}
}

// Residual returns the transfer distance between the mapped source and the
// destination of a correspondence.
func (m Affine2D) Residual(pair Pair) float64 {
	return Distance(m.Apply(pair.Src), pair.Dst)
}

// AffineAdapter fits full affine transforms from three point pairs and
// refines with weighted least squares. The parameter covariance over
// (A, B, Tx, C, D, Ty) is block diagonal since the x' and y' rows share
// the same design.
type AffineAdapter struct{}

func (AffineAdapter) SampleSize() int { return 3 }

func (AffineAdapter) Fit(sample []Pair) ([]Affine2D, error) {
	m, err := solveAffine(sample, nil, nil)
	if err != nil {
		return nil, err
	}
	return []Affine2D{m}, nil
}

func (AffineAdapter) Residual(m Affine2D, pair Pair) float64 {
	return m.Residual(pair)
}

// Refine solves the weighted least-squares affine over the inliers.
func (AffineAdapter) Refine(model Affine2D, data []Pair, inliers []int, weights []float64) (Affine2D, *mat.SymDense, error) {
	if len(inliers) < 3 {
		return model, nil, fmt.Errorf("need at least 3 inliers, got %d", len(inliers))
	}
	refined, err := solveAffine(data, inliers, weights)
	if err != nil {
		return model, nil, err
	}
	cov := affineCovariance(refined, data, inliers, weights)
	return refined, cov, nil
}

// solveAffine computes the (weighted) least-squares affine transform over
// the selected pairs by solving the 3x3 normal equations once for the x'
// row and once for the y' row. With inliers nil the whole slice is used
// with unit weights.
func solveAffine(data []Pair, inliers []int, weights []float64) (Affine2D, error) {
	var sumW, sumX, sumY, sumXX, sumXY, sumYY float64
	var sumXp, sumYp, sumXXp, sumXYp, sumYXp, sumYYp float64

	each(data, inliers, weights, func(p Pair, w float64) {
		x, y := p.Src[0], p.Src[1]
		xp, yp := p.Dst[0], p.Dst[1]

		sumW += w
		sumX += w * x
		sumY += w * y
		sumXX += w * x * x
		sumXY += w * x * y
		sumYY += w * y * y
		sumXp += w * xp
		sumYp += w * yp
		sumXXp += w * x * xp
		sumXYp += w * x * yp
		sumYXp += w * y * xp
		sumYYp += w * y * yp
	})

	// Normal matrix [[sumXX, sumXY, sumX], [sumXY, sumYY, sumY],
	// [sumX, sumY, sumW]], shared by both rows; solved by Cramer's rule.
	det := sumXX*(sumYY*sumW-sumY*sumY) - sumXY*(sumXY*sumW-sumY*sumX) + sumX*(sumXY*sumY-sumYY*sumX)
	if math.Abs(det) < 1e-10 {
		return Affine2D{}, fmt.Errorf("%w: collinear affine sample", robust.ErrDegenerateSample)
	}
	invDet := 1.0 / det

	detA := sumXXp*(sumYY*sumW-sumY*sumY) - sumXY*(sumYXp*sumW-sumY*sumXp) + sumX*(sumYXp*sumY-sumYY*sumXp)
	detB := sumXX*(sumYXp*sumW-sumY*sumXp) - sumXXp*(sumXY*sumW-sumY*sumX) + sumX*(sumXY*sumXp-sumYXp*sumX)
	detTx := sumXX*(sumYY*sumXp-sumYXp*sumY) - sumXY*(sumXY*sumXp-sumYXp*sumX) + sumXXp*(sumXY*sumY-sumYY*sumX)

	detC := sumXYp*(sumYY*sumW-sumY*sumY) - sumXY*(sumYYp*sumW-sumY*sumYp) + sumX*(sumYYp*sumY-sumYY*sumYp)
	detD := sumXX*(sumYYp*sumW-sumY*sumYp) - sumXYp*(sumXY*sumW-sumY*sumX) + sumX*(sumXY*sumYp-sumYYp*sumX)
	detTy := sumXX*(sumYY*sumYp-sumYYp*sumY) - sumXY*(sumXY*sumYp-sumYYp*sumX) + sumXYp*(sumXY*sumY-sumYY*sumX)

	return Affine2D{
		A: detA * invDet, B: detB * invDet, Tx: detTx * invDet,
		C: detC * invDet, D: detD * invDet, Ty: detTy * invDet,
	}, nil
}

// affineCovariance estimates σ²(JᵀWJ)⁻¹ per coordinate row and assembles
// a block-diagonal 6x6 covariance over (A, B, Tx, C, D, Ty).
func affineCovariance(m Affine2D, data []Pair, inliers []int, weights []float64) *mat.SymDense {
	jtj := mat.NewSymDense(3, nil)
	var rssX, rssY float64

	each(data, inliers, weights, func(p Pair, w float64) {
		x, y := p.Src[0], p.Src[1]
		j := [3]float64{x, y, 1}
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				jtj.SetSym(r, c, jtj.At(r, c)+w*j[r]*j[c])
			}
		}
		mapped := m.Apply(p.Src)
		ex := mapped[0] - p.Dst[0]
		ey := mapped[1] - p.Dst[1]
		rssX += w * ex * ex
		rssY += w * ey * ey
	})

	dof := len(inliers) - 3
	if dof < 1 {
		return nil
	}

	var chol mat.Cholesky
	if !chol.Factorize(jtj) {
		return nil
	}
	inv := mat.NewSymDense(3, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil
	}

	cov := mat.NewSymDense(6, nil)
	for r := 0; r < 3; r++ {
		for c := r; c < 3; c++ {
			cov.SetSym(r, c, inv.At(r, c)*rssX/float64(dof))
			cov.SetSym(r+3, c+3, inv.At(r, c)*rssY/float64(dof))
		}
	}
	return cov
}

// each visits the selected pairs with their weights. inliers nil means all
// pairs with unit weight.
func each(data []Pair, inliers []int, weights []float64, fn func(Pair, float64)) {
	if inliers == nil {
		for _, p := range data {
			fn(p, 1)
		}
		return
	}
	for i, idx := range inliers {
		fn(data[idx], weights[i])
	}
}

// SimilarityAdapter fits similarity transforms (rotation + uniform scale +
// translation) from two point pairs, expressed as a constrained Affine2D.
// Refinement solves the weighted linear least squares over (a, b, tx, ty)
// with the matrix [[a, -b], [b, a]].
type SimilarityAdapter struct{}

func (SimilarityAdapter) SampleSize() int { return 2 }

func (SimilarityAdapter) Fit(sample []Pair) ([]Affine2D, error) {
	sx := sample[1].Src[0] - sample[0].Src[0]
	sy := sample[1].Src[1] - sample[0].Src[1]
	srcLen := math.Hypot(sx, sy)

	tx := sample[1].Dst[0] - sample[0].Dst[0]
	ty := sample[1].Dst[1] - sample[0].Dst[1]
	tgtLen := math.Hypot(tx, ty)

	if srcLen < 1e-10 || tgtLen < 1e-10 {
		return nil, fmt.Errorf("%w: coincident similarity sample", robust.ErrDegenerateSample)
	}

	scale := tgtLen / srcLen
	angle := math.Atan2(ty, tx) - math.Atan2(sy, sx)
	cos := math.Cos(angle)
	sin := math.Sin(angle)

	a := scale * cos
	b := -scale * sin
	c := scale * sin
	d := scale * cos

	return []Affine2D{{
		A: a, B: b, Tx: sample[0].Dst[0] - (a*sample[0].Src[0] + b*sample[0].Src[1]),
		C: c, D: d, Ty: sample[0].Dst[1] - (c*sample[0].Src[0] + d*sample[0].Src[1]),
	}}, nil
}

func (SimilarityAdapter) Residual(m Affine2D, pair Pair) float64 {
	return m.Residual(pair)
}

// Refine solves the weighted least-squares similarity over the inliers and
// returns the covariance over (a, b, tx, ty).
func (SimilarityAdapter) Refine(model Affine2D, data []Pair, inliers []int, weights []float64) (Affine2D, *mat.SymDense, error) {
	if len(inliers) < 2 {
		return model, nil, fmt.Errorf("need at least 2 inliers, got %d", len(inliers))
	}

	// Rows per pair: [x, -y, 1, 0 | x'] and [y, x, 0, 1 | y'].
	jtj := mat.NewSymDense(4, nil)
	rhs := make([]float64, 4)
	for i, idx := range inliers {
		w := weights[i]
		x, y := data[idx].Src[0], data[idx].Src[1]
		xp, yp := data[idx].Dst[0], data[idx].Dst[1]
		rows := [2][4]float64{
			{x, -y, 1, 0},
			{y, x, 0, 1},
		}
		targets := [2]float64{xp, yp}
		for rIdx, row := range rows {
			for r := 0; r < 4; r++ {
				for c := r; c < 4; c++ {
					jtj.SetSym(r, c, jtj.At(r, c)+w*row[r]*row[c])
				}
				rhs[r] += w * row[r] * targets[rIdx]
			}
		}
	}

	var rss float64
	sol, _, err := solveNormal(jtj, rhs, 0, false)
	if err != nil {
		return model, nil, err
	}
	refined := Affine2D{
		A: sol[0], B: -sol[1], Tx: sol[2],
		C: sol[1], D: sol[0], Ty: sol[3],
	}
	for i, idx := range inliers {
		r := refined.Residual(data[idx])
		rss += weights[i] * r * r
	}

	dof := 2*len(inliers) - 4
	var cov *mat.SymDense
	if dof > 0 {
		_, cov, _ = solveNormal(jtj, rhs, rss/float64(dof), true)
	}
	return refined, cov, nil
}
