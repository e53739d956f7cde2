package fit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Conic is a conic section A·x² + B·xy + C·y² + D·x + E·y + F = 0 with
// coefficients stored as a unit vector (A, B, C, D, E, F).
type Conic [6]float64

// Eval returns the algebraic value of the conic polynomial at p.
func (c Conic) Eval(p orb.Point) float64 {
	x, y := p[0], p[1]
	return c[0]*x*x + c[1]*x*y + c[2]*y*y + c[3]*x + c[4]*y + c[5]
}

// Residual returns the gradient-normalized algebraic distance from p to
// the conic's locus (first-order geometric distance approximation).
func (c Conic) Residual(p orb.Point) float64 {
	x, y := p[0], p[1]
	gx := 2*c[0]*x + c[1]*y + c[3]
	gy := c[1]*x + 2*c[2]*y + c[4]
	grad := math.Hypot(gx, gy)
	if grad < 1e-15 {
		return math.Abs(c.Eval(p))
	}
	return math.Abs(c.Eval(p)) / grad
}

// ConicAdapter fits conics through five points via the null space of the
// [x² xy y² x y 1] design and refines with a weighted fit over the
// inlier set. No parameter covariance is produced.
type ConicAdapter struct{}

func (ConicAdapter) SampleSize() int { return 5 }

func (ConicAdapter) Fit(sample []orb.Point) ([]Conic, error) {
	c, err := solveConic(sample, nil, nil)
	if err != nil {
		return nil, err
	}
	return []Conic{c}, nil
}

func (ConicAdapter) Residual(c Conic, p orb.Point) float64 {
	return c.Residual(p)
}

// Refine re-solves the conic over all inliers with quality weights.
func (ConicAdapter) Refine(model Conic, data []orb.Point, inliers []int, weights []float64) (Conic, *mat.SymDense, error) {
	if len(inliers) < 5 {
		return model, nil, fmt.Errorf("need at least 5 inliers, got %d", len(inliers))
	}
	c, err := solveConic(data, inliers, weights)
	if err != nil {
		return model, nil, err
	}
	return c, nil, nil
}

func solveConic(data []orb.Point, inliers []int, weights []float64) (Conic, error) {
	count := len(data)
	if inliers != nil {
		count = len(inliers)
	}

	a := mat.NewDense(count, 6, nil)
	set := func(row int, p orb.Point, w float64) {
		sw := math.Sqrt(w)
		x, y := p[0], p[1]
		a.SetRow(row, []float64{
			sw * x * x, sw * x * y, sw * y * y, sw * x, sw * y, sw,
		})
	}
	if inliers == nil {
		for i, p := range data {
			set(i, p, 1)
		}
	} else {
		for i, idx := range inliers {
			set(i, data[idx], weights[i])
		}
	}

	v, err := nullSpaceVector(a)
	if err != nil {
		return Conic{}, fmt.Errorf("%w: conic sample", robust.ErrDegenerateSample)
	}

	var c Conic
	copy(c[:], v)
	return c, nil
}
