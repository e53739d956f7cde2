package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kwv/robustfit/robust"
)

// Plane is a plane in Hessian normal form: Nx·x + Ny·y + Nz·z + D = 0
// with (Nx, Ny, Nz) a unit normal.
type Plane struct {
	Nx, Ny, Nz, D float64
}

// Residual returns the absolute distance from p to the plane.
func (pl Plane) Residual(p Point3) float64 {
	return math.Abs(pl.Nx*p.X + pl.Ny*p.Y + pl.Nz*p.Z + pl.D)
}

// PlaneAdapter fits planes through three points and refines with weighted
// total least squares over the inlier set.
type PlaneAdapter struct{}

func (PlaneAdapter) SampleSize() int { return 3 }

func (PlaneAdapter) Fit(sample []Point3) ([]Plane, error) {
	ux := sample[1].X - sample[0].X
	uy := sample[1].Y - sample[0].Y
	uz := sample[1].Z - sample[0].Z
	vx := sample[2].X - sample[0].X
	vy := sample[2].Y - sample[0].Y
	vz := sample[2].Z - sample[0].Z

	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx
	norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if norm < 1e-12 {
		return nil, fmt.Errorf("%w: collinear plane sample", robust.ErrDegenerateSample)
	}

	nx /= norm
	ny /= norm
	nz /= norm
	return []Plane{{
		Nx: nx, Ny: ny, Nz: nz,
		D: -(nx*sample[0].X + ny*sample[0].Y + nz*sample[0].Z),
	}}, nil
}

func (PlaneAdapter) Residual(pl Plane, p Point3) float64 {
	return pl.Residual(p)
}

// Refine computes the weighted total-least-squares plane over the inliers
// via the smallest eigenvector of the weighted scatter matrix about the
// weighted centroid. No parameter covariance is produced.
func (PlaneAdapter) Refine(model Plane, data []Point3, inliers []int, weights []float64) (Plane, *mat.SymDense, error) {
	if len(inliers) < 3 {
		return model, nil, fmt.Errorf("need at least 3 inliers, got %d", len(inliers))
	}

	var wsum, mx, my, mz float64
	for i, idx := range inliers {
		w := weights[i]
		wsum += w
		mx += w * data[idx].X
		my += w * data[idx].Y
		mz += w * data[idx].Z
	}
	if wsum <= 0 {
		return model, nil, fmt.Errorf("non-positive weight sum")
	}
	mx /= wsum
	my /= wsum
	mz /= wsum

	scatter := mat.NewSymDense(3, nil)
	for i, idx := range inliers {
		w := weights[i]
		d := [3]float64{data[idx].X - mx, data[idx].Y - my, data[idx].Z - mz}
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				scatter.SetSym(r, c, scatter.At(r, c)+w*d[r]*d[c])
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(scatter, true) {
		return model, nil, fmt.Errorf("scatter factorization failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	nx := vecs.At(0, 0)
	ny := vecs.At(1, 0)
	nz := vecs.At(2, 0)
	norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if norm < 1e-12 {
		return model, nil, fmt.Errorf("degenerate scatter")
	}
	nx /= norm
	ny /= norm
	nz /= norm

	return Plane{Nx: nx, Ny: ny, Nz: nz, D: -(nx*mx + ny*my + nz*mz)}, nil, nil
}
