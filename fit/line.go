package fit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Line is a 2D line in Hessian normal form: Nx·x + Ny·y + C = 0 with
// (Nx, Ny) a unit normal.
type Line struct {
	Nx, Ny, C float64
}

// Residual returns the perpendicular distance from p to the line.
func (l Line) Residual(p orb.Point) float64 {
	return math.Abs(l.Nx*p[0] + l.Ny*p[1] + l.C)
}

// LineAdapter fits lines through two points and refines with weighted
// total least squares over the inlier set.
type LineAdapter struct{}

func (LineAdapter) SampleSize() int { return 2 }

func (LineAdapter) Fit(sample []orb.Point) ([]Line, error) {
	dx := sample[1][0] - sample[0][0]
	dy := sample[1][1] - sample[0][1]
	length := math.Hypot(dx, dy)
	if length < 1e-12 {
		return nil, fmt.Errorf("%w: coincident line sample", robust.ErrDegenerateSample)
	}

	nx := -dy / length
	ny := dx / length
	return []Line{{Nx: nx, Ny: ny, C: -(nx*sample[0][0] + ny*sample[0][1])}}, nil
}

func (LineAdapter) Residual(l Line, p orb.Point) float64 {
	return l.Residual(p)
}

// Refine computes the weighted total-least-squares line over the inliers:
// the normal is the eigenvector of the smallest eigenvalue of the weighted
// scatter matrix about the weighted centroid. No parameter covariance is
// produced.
func (LineAdapter) Refine(model Line, data []orb.Point, inliers []int, weights []float64) (Line, *mat.SymDense, error) {
	if len(inliers) < 2 {
		return model, nil, fmt.Errorf("need at least 2 inliers, got %d", len(inliers))
	}

	var wsum, mx, my float64
	for i, idx := range inliers {
		w := weights[i]
		wsum += w
		mx += w * data[idx][0]
		my += w * data[idx][1]
	}
	if wsum <= 0 {
		return model, nil, fmt.Errorf("non-positive weight sum")
	}
	mx /= wsum
	my /= wsum

	scatter := mat.NewSymDense(2, nil)
	for i, idx := range inliers {
		w := weights[i]
		dx := data[idx][0] - mx
		dy := data[idx][1] - my
		scatter.SetSym(0, 0, scatter.At(0, 0)+w*dx*dx)
		scatter.SetSym(0, 1, scatter.At(0, 1)+w*dx*dy)
		scatter.SetSym(1, 1, scatter.At(1, 1)+w*dy*dy)
	}

	var eig mat.EigenSym
	if !eig.Factorize(scatter, true) {
		return model, nil, fmt.Errorf("scatter factorization failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back ascending; the first eigenvector is the
	// direction of least spread, i.e. the line normal.
	nx := vecs.At(0, 0)
	ny := vecs.At(1, 0)
	norm := math.Hypot(nx, ny)
	if norm < 1e-12 {
		return model, nil, fmt.Errorf("degenerate scatter")
	}
	nx /= norm
	ny /= norm

	return Line{Nx: nx, Ny: ny, C: -(nx*mx + ny*my)}, nil, nil
}
