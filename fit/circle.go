package fit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Circle is a circle in the plane.
type Circle struct {
	Center orb.Point
	Radius float64
}

// Residual returns the absolute distance from p to the circle's locus.
func (c Circle) Residual(p orb.Point) float64 {
	return math.Abs(Distance(c.Center, p) - c.Radius)
}

// Contains reports whether p lies on the circle within tol.
func (c Circle) Contains(p orb.Point, tol float64) bool {
	return c.Residual(p) <= tol
}

// CircleAdapter fits circles through three points. It refines with
// weighted Gauss-Newton over (cx, cy, r) and supports biasing the radius
// toward a suggested value during refinement.
type CircleAdapter struct {
	// SuggestedRadius biases refinement toward a known radius when
	// HasSuggestion is set. The engine sweeps the bias weight.
	SuggestedRadius float64
	HasSuggestion   bool
}

func (CircleAdapter) SampleSize() int { return 3 }

// Fit returns the circumcircle of the three sample points, or
// ErrDegenerateSample when they are (near-)collinear.
func (CircleAdapter) Fit(sample []orb.Point) ([]Circle, error) {
	ax, ay := sample[0][0], sample[0][1]
	bx, by := sample[1][0], sample[1][1]
	cx, cy := sample[2][0], sample[2][1]

	d := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	if math.Abs(d) < 1e-12 {
		return nil, fmt.Errorf("%w: collinear circle sample", robust.ErrDegenerateSample)
	}

	a2 := ax*ax + ay*ay
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (a2*(by-cy) + b2*(cy-ay) + c2*(ay-by)) / d
	uy := (a2*(cx-bx) + b2*(ax-cx) + c2*(bx-ax)) / d

	center := orb.Point{ux, uy}
	return []Circle{{Center: center, Radius: Distance(center, sample[0])}}, nil
}

func (CircleAdapter) Residual(c Circle, p orb.Point) float64 {
	return c.Residual(p)
}

// Refine runs weighted Gauss-Newton over the inlier set, returning the
// refined circle and its parameter covariance over (cx, cy, r).
func (a CircleAdapter) Refine(model Circle, data []orb.Point, inliers []int, weights []float64) (Circle, *mat.SymDense, error) {
	return a.refine(model, data, inliers, weights, 0)
}

// RefineWithSuggestion adds a penalty row pulling the radius toward the
// suggested value, scaled by suggestionWeight. Without a suggestion it
// behaves like Refine.
func (a CircleAdapter) RefineWithSuggestion(model Circle, data []orb.Point, inliers []int, weights []float64, suggestionWeight float64) (Circle, *mat.SymDense, error) {
	if !a.HasSuggestion {
		suggestionWeight = 0
	}
	return a.refine(model, data, inliers, weights, suggestionWeight)
}

const (
	circleRefineIterations = 20
	circleRefineTol        = 1e-12
)

func (a CircleAdapter) refine(model Circle, data []orb.Point, inliers []int, weights []float64, suggestionWeight float64) (Circle, *mat.SymDense, error) {
	if len(inliers) < 3 {
		return model, nil, fmt.Errorf("need at least 3 inliers, got %d", len(inliers))
	}

	cx, cy, r := model.Center[0], model.Center[1], model.Radius
	var cov *mat.SymDense

	for iter := 0; iter < circleRefineIterations; iter++ {
		jtj := mat.NewSymDense(3, nil)
		rhs := make([]float64, 3)
		var rss, wsum float64

		for i, idx := range inliers {
			p := data[idx]
			dx := p[0] - cx
			dy := p[1] - cy
			dist := math.Hypot(dx, dy)
			if dist < 1e-12 {
				continue
			}
			// Residual dist-r with Jacobian row (-dx/dist, -dy/dist, -1).
			res := dist - r
			j := [3]float64{-dx / dist, -dy / dist, -1}
			w := weights[i]
			for m := 0; m < 3; m++ {
				for n := m; n < 3; n++ {
					jtj.SetSym(m, n, jtj.At(m, n)+w*j[m]*j[n])
				}
				rhs[m] -= w * j[m] * res
			}
			rss += w * res * res
			wsum += w
		}

		if a.HasSuggestion && suggestionWeight > 0 {
			// Penalty row (0, 0, 1) with residual r - suggested.
			res := r - a.SuggestedRadius
			jtj.SetSym(2, 2, jtj.At(2, 2)+suggestionWeight)
			rhs[2] -= suggestionWeight * res
		}

		dof := len(inliers) - 3
		sigma2 := 0.0
		if dof > 0 && wsum > 0 {
			sigma2 = rss / float64(dof)
		}
		delta, c, err := solveNormal(jtj, rhs, sigma2, true)
		if err != nil {
			return model, nil, err
		}
		cov = c
		cx += delta[0]
		cy += delta[1]
		r += delta[2]

		if delta[0]*delta[0]+delta[1]*delta[1]+delta[2]*delta[2] < circleRefineTol*circleRefineTol {
			break
		}
	}

	if r <= 0 || math.IsNaN(r) {
		return model, nil, fmt.Errorf("refinement collapsed to radius %v", r)
	}
	return Circle{Center: orb.Point{cx, cy}, Radius: r}, cov, nil
}
