// Package fit provides concrete model adapters for the robust estimation
// engine: circles, 2D lines, planes, 2D affine/similarity transforms,
// homographies and conics. Each adapter supplies the minimal-sample solver
// and residual function for its model family; most also implement local
// refinement over the consensus set.
package fit

import (
	"math"

	"github.com/paulmach/orb"
)

// Pair is a point correspondence between two coordinate frames: Src in the
// frame being mapped, Dst in the frame being mapped to.
type Pair struct {
	Src orb.Point
	Dst orb.Point
}

// Point3 is a point in 3D space.
type Point3 struct {
	X, Y, Z float64
}

// Distance returns the Euclidean distance between two 2D points.
func Distance(a, b orb.Point) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	return math.Sqrt(dx*dx + dy*dy)
}

// Distance3 returns the Euclidean distance between two 3D points.
func Distance3(a, b Point3) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
