package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/robustfit/robust"
)

const epsilon = 1e-9

func affineAlmostEqual(t *testing.T, want, got Affine2D, tol float64) {
	t.Helper()
	assert.InDelta(t, want.A, got.A, tol)
	assert.InDelta(t, want.B, got.B, tol)
	assert.InDelta(t, want.Tx, got.Tx, tol)
	assert.InDelta(t, want.C, got.C, tol)
	assert.InDelta(t, want.D, got.D, tol)
	assert.InDelta(t, want.Ty, got.Ty, tol)
}

func pairsThrough(m Affine2D, src []orb.Point) []Pair {
	pairs := make([]Pair, len(src))
	for i, p := range src {
		pairs[i] = Pair{Src: p, Dst: m.Apply(p)}
	}
	return pairs
}

func TestIdentity(t *testing.T) {
	p := orb.Point{3.5, -2}
	assert.Equal(t, p, Identity().Apply(p))
}

func TestAffineFitExact(t *testing.T) {
	truth := Affine2D{A: 1.2, B: -0.3, Tx: 5, C: 0.4, D: 0.9, Ty: -7}
	pairs := pairsThrough(truth, []orb.Point{{0, 0}, {4, 1}, {-2, 3}})

	models, err := AffineAdapter{}.Fit(pairs)
	require.NoError(t, err)
	require.Len(t, models, 1)
	affineAlmostEqual(t, truth, models[0], epsilon)
}

func TestAffineFitCollinear(t *testing.T) {
	pairs := []Pair{
		{Src: orb.Point{0, 0}, Dst: orb.Point{1, 1}},
		{Src: orb.Point{1, 1}, Dst: orb.Point{2, 2}},
		{Src: orb.Point{2, 2}, Dst: orb.Point{3, 3}},
	}
	_, err := AffineAdapter{}.Fit(pairs)
	require.ErrorIs(t, err, robust.ErrDegenerateSample)
}

func TestSimilarityFitExact(t *testing.T) {
	// Rotation by 30 degrees, scale 2, translation (3, -1).
	angle := math.Pi / 6
	scale := 2.0
	truth := Affine2D{
		A: scale * math.Cos(angle), B: -scale * math.Sin(angle), Tx: 3,
		C: scale * math.Sin(angle), D: scale * math.Cos(angle), Ty: -1,
	}
	pairs := pairsThrough(truth, []orb.Point{{1, 2}, {-3, 0.5}})

	models, err := SimilarityAdapter{}.Fit(pairs)
	require.NoError(t, err)
	require.Len(t, models, 1)
	affineAlmostEqual(t, truth, models[0], epsilon)
}

func TestSimilarityFitCoincident(t *testing.T) {
	pairs := []Pair{
		{Src: orb.Point{1, 1}, Dst: orb.Point{2, 2}},
		{Src: orb.Point{1, 1}, Dst: orb.Point{5, 5}},
	}
	_, err := SimilarityAdapter{}.Fit(pairs)
	require.ErrorIs(t, err, robust.ErrDegenerateSample)
}

func TestAffineRANSACWithOutlierPairs(t *testing.T) {
	truth := Affine2D{A: 0.9, B: 0.2, Tx: -4, C: -0.1, D: 1.1, Ty: 6}
	rng := rand.New(rand.NewSource(17))

	var pairs []Pair
	for i := 0; i < 90; i++ {
		src := orb.Point{rng.Float64() * 20, rng.Float64() * 20}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
	}
	// Mismatched correspondences.
	for i := 0; i < 30; i++ {
		pairs = append(pairs, Pair{
			Src: orb.Point{rng.Float64() * 20, rng.Float64() * 20},
			Dst: orb.Point{rng.Float64() * 40, rng.Float64() * 40},
		})
	}

	settings := robust.DefaultSettings()
	settings.Threshold = 1e-8
	settings.KeepInliers = true
	settings.Refine = true
	settings.KeepCovariance = true

	est, err := robust.New[Affine2D, Pair](robust.RANSAC, AffineAdapter{},
		robust.WithSettings(settings), robust.WithRand(rng))
	require.NoError(t, err)
	require.NoError(t, est.SetData(pairs))

	outcome, err := est.Estimate()
	require.NoError(t, err)
	affineAlmostEqual(t, truth, outcome.Model, 1e-7)
	assert.GreaterOrEqual(t, outcome.NumInliers, 90)
	require.NotNil(t, outcome.Covariance)
	assert.Equal(t, 6, outcome.Covariance.SymmetricDim())
}

func TestSimilarityRefine(t *testing.T) {
	angle := -math.Pi / 4
	scale := 0.5
	truth := Affine2D{
		A: scale * math.Cos(angle), B: -scale * math.Sin(angle), Tx: 1,
		C: scale * math.Sin(angle), D: scale * math.Cos(angle), Ty: 2,
	}

	var pairs []Pair
	for i := 0; i < 40; i++ {
		src := orb.Point{float64(i%8) * 3, float64(i/8) * 2}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
	}
	inliers := make([]int, len(pairs))
	weights := make([]float64, len(pairs))
	for i := range inliers {
		inliers[i] = i
		weights[i] = 1
	}

	rough := Identity()
	refined, cov, err := SimilarityAdapter{}.Refine(rough, pairs, inliers, weights)
	require.NoError(t, err)
	affineAlmostEqual(t, truth, refined, 1e-9)
	require.NotNil(t, cov)
	assert.Equal(t, 4, cov.SymmetricDim())
}

func TestAffineResidual(t *testing.T) {
	m := Affine2D{A: 1, D: 1, Tx: 3, Ty: 4}
	pair := Pair{Src: orb.Point{0, 0}, Dst: orb.Point{3, 4}}
	assert.InDelta(t, 0.0, m.Residual(pair), 1e-15)

	off := Pair{Src: orb.Point{0, 0}, Dst: orb.Point{6, 8}}
	assert.InDelta(t, 5.0, m.Residual(off), 1e-12)
}
