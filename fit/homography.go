package fit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Homography is a projective transform of the plane, stored row-major as
//
//	| H0 H1 H2 |
//	| H3 H4 H5 |
//	| H6 H7 H8 |
type Homography [9]float64

// Apply maps p through the homography. Points mapped to the line at
// infinity come back as (+Inf, +Inf).
func (h Homography) Apply(p orb.Point) orb.Point {
	w := h[6]*p[0] + h[7]*p[1] + h[8]
	if math.Abs(w) < 1e-15 {
		return orb.Point{math.Inf(1), math.Inf(1)}
	}
	return orb.Point{
		(h[0]*p[0] + h[1]*p[1] + h[2]) / w,
		(h[3]*p[0] + h[4]*p[1] + h[5]) / w,
	}
}

// Residual returns the forward transfer distance of a correspondence.
func (h Homography) Residual(pair Pair) float64 {
	mapped := h.Apply(pair.Src)
	if math.IsInf(mapped[0], 0) {
		return math.MaxFloat64
	}
	return Distance(mapped, pair.Dst)
}

// HomographyAdapter fits homographies from four point pairs using the
// Hartley-normalized direct linear transform and refines with a weighted
// DLT over the inlier set. No parameter covariance is produced.
type HomographyAdapter struct{}

func (HomographyAdapter) SampleSize() int { return 4 }

func (HomographyAdapter) Fit(sample []Pair) ([]Homography, error) {
	h, err := solveDLT(sample, nil, nil)
	if err != nil {
		return nil, err
	}
	return []Homography{h}, nil
}

func (HomographyAdapter) Residual(h Homography, pair Pair) float64 {
	return h.Residual(pair)
}

// Refine re-solves the DLT over all inliers with quality weights.
func (HomographyAdapter) Refine(model Homography, data []Pair, inliers []int, weights []float64) (Homography, *mat.SymDense, error) {
	if len(inliers) < 4 {
		return model, nil, fmt.Errorf("need at least 4 inliers, got %d", len(inliers))
	}
	h, err := solveDLT(data, inliers, weights)
	if err != nil {
		return model, nil, err
	}
	return h, nil, nil
}

// normalization is a Hartley conditioning transform: translate the
// centroid to the origin and scale the mean distance to sqrt(2).
type normalization struct {
	cx, cy, s float64
}

func normalizePoints(data []Pair, inliers []int, src bool) normalization {
	var cx, cy float64
	var n int
	visit := func(p orb.Point) {
		cx += p[0]
		cy += p[1]
		n++
	}
	eachPoint(data, inliers, src, visit)
	cx /= float64(n)
	cy /= float64(n)

	var meanDist float64
	eachPoint(data, inliers, src, func(p orb.Point) {
		meanDist += math.Hypot(p[0]-cx, p[1]-cy)
	})
	meanDist /= float64(n)

	s := 1.0
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}
	return normalization{cx: cx, cy: cy, s: s}
}

func (t normalization) apply(p orb.Point) orb.Point {
	return orb.Point{t.s * (p[0] - t.cx), t.s * (p[1] - t.cy)}
}

func eachPoint(data []Pair, inliers []int, src bool, fn func(orb.Point)) {
	pick := func(p Pair) orb.Point {
		if src {
			return p.Src
		}
		return p.Dst
	}
	if inliers == nil {
		for _, p := range data {
			fn(pick(p))
		}
		return
	}
	for _, idx := range inliers {
		fn(pick(data[idx]))
	}
}

// solveDLT builds the 2-rows-per-pair design on Hartley-normalized
// coordinates, takes its null-space vector and denormalizes. Weights scale
// the rows; nil inliers means all pairs, unit weights.
func solveDLT(data []Pair, inliers []int, weights []float64) (Homography, error) {
	count := len(data)
	if inliers != nil {
		count = len(inliers)
	}

	tSrc := normalizePoints(data, inliers, true)
	tDst := normalizePoints(data, inliers, false)

	a := mat.NewDense(2*count, 9, nil)
	row := 0
	visit := func(p Pair, w float64) {
		sw := math.Sqrt(w)
		s := tSrc.apply(p.Src)
		d := tDst.apply(p.Dst)
		x, y := s[0], s[1]
		xp, yp := d[0], d[1]

		a.SetRow(row, []float64{
			sw * x, sw * y, sw, 0, 0, 0, -sw * x * xp, -sw * y * xp, -sw * xp,
		})
		a.SetRow(row+1, []float64{
			0, 0, 0, sw * x, sw * y, sw, -sw * x * yp, -sw * y * yp, -sw * yp,
		})
		row += 2
	}
	if inliers == nil {
		for _, p := range data {
			visit(p, 1)
		}
	} else {
		for i, idx := range inliers {
			visit(data[idx], weights[i])
		}
	}

	hn, err := nullSpaceVector(a)
	if err != nil {
		return Homography{}, fmt.Errorf("%w: homography sample", robust.ErrDegenerateSample)
	}

	// Denormalize: H = T_dst⁻¹ · Hn · T_src.
	var h Homography
	copy(h[:], hn)
	h = h.compose(tSrc, tDst)

	if math.Abs(h[8]) > 1e-12 {
		for i := range h {
			h[i] /= h[8]
		}
	}
	return h, nil
}

// compose applies the conditioning transforms around the normalized
// solution: T_dst⁻¹ · h · T_src.
func (h Homography) compose(tSrc, tDst normalization) Homography {
	src := [9]float64{
		tSrc.s, 0, -tSrc.s * tSrc.cx,
		0, tSrc.s, -tSrc.s * tSrc.cy,
		0, 0, 1,
	}
	invDst := [9]float64{
		1 / tDst.s, 0, tDst.cx,
		0, 1 / tDst.s, tDst.cy,
		0, 0, 1,
	}
	return mul3(mul3(invDst, [9]float64(h)), src)
}

func mul3(a, b [9]float64) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[3*r+k] * b[3*k+c]
			}
			out[3*r+c] = sum
		}
	}
	return out
}
