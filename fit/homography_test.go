package fit

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/robustfit/robust"
)

func TestHomographyApply(t *testing.T) {
	// Pure translation by (2, 3).
	h := Homography{1, 0, 2, 0, 1, 3, 0, 0, 1}
	got := h.Apply(orb.Point{1, 1})
	assert.InDelta(t, 3.0, got[0], 1e-12)
	assert.InDelta(t, 4.0, got[1], 1e-12)
}

func TestHomographyFitExact(t *testing.T) {
	// A genuinely projective transform (non-zero h6, h7).
	truth := Homography{1.1, 0.2, 3, -0.1, 0.9, -2, 0.001, 0.002, 1}

	src := []orb.Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	pairs := make([]Pair, len(src))
	for i, p := range src {
		pairs[i] = Pair{Src: p, Dst: truth.Apply(p)}
	}

	models, err := HomographyAdapter{}.Fit(pairs)
	require.NoError(t, err)
	require.Len(t, models, 1)

	// Compare through action on independent points rather than raw
	// coefficients (the scale is only fixed by normalization).
	h := models[0]
	for _, p := range []orb.Point{{3, 7}, {-5, 2}, {8, 8}} {
		want := truth.Apply(p)
		got := h.Apply(p)
		assert.InDelta(t, want[0], got[0], 1e-8)
		assert.InDelta(t, want[1], got[1], 1e-8)
	}
}

func TestHomographyFitDegenerate(t *testing.T) {
	// Three of the four source points are collinear.
	pairs := []Pair{
		{Src: orb.Point{0, 0}, Dst: orb.Point{0, 0}},
		{Src: orb.Point{1, 1}, Dst: orb.Point{1, 1}},
		{Src: orb.Point{2, 2}, Dst: orb.Point{2, 2}},
		{Src: orb.Point{5, 1}, Dst: orb.Point{5, 1}},
	}
	_, err := HomographyAdapter{}.Fit(pairs)
	require.ErrorIs(t, err, robust.ErrDegenerateSample)
}

func TestHomographyPROSACWithOutliers(t *testing.T) {
	truth := Homography{0.9, 0.1, 5, -0.2, 1.2, -3, 0.0005, 0.001, 1}
	rng := rand.New(rand.NewSource(23))

	var pairs []Pair
	var quality []float64
	for i := 0; i < 100; i++ {
		src := orb.Point{rng.Float64() * 50, rng.Float64() * 50}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
		quality = append(quality, 0.7+0.3*rng.Float64())
	}
	for i := 0; i < 30; i++ {
		pairs = append(pairs, Pair{
			Src: orb.Point{rng.Float64() * 50, rng.Float64() * 50},
			Dst: orb.Point{rng.Float64() * 100, rng.Float64() * 100},
		})
		quality = append(quality, 0.3*rng.Float64())
	}

	settings := robust.DefaultSettings()
	settings.Threshold = 1e-6
	settings.KeepInliers = true

	est, err := robust.New[Homography, Pair](robust.PROSAC, HomographyAdapter{},
		robust.WithSettings(settings), robust.WithRand(rng))
	require.NoError(t, err)
	require.NoError(t, est.SetData(pairs))
	require.NoError(t, est.SetQualityScores(quality))

	outcome, err := est.Estimate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, outcome.NumInliers, 100)

	for i := 0; i < 100; i++ {
		assert.Less(t, outcome.Model.Residual(pairs[i]), 1e-5)
	}
}

func TestHomographyRefine(t *testing.T) {
	truth := Homography{1, 0.05, 2, -0.05, 1, 1, 0.0002, 0.0001, 1}
	rng := rand.New(rand.NewSource(2))

	var pairs []Pair
	for i := 0; i < 50; i++ {
		src := orb.Point{rng.Float64() * 30, rng.Float64() * 30}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
	}
	inliers := make([]int, len(pairs))
	weights := make([]float64, len(pairs))
	for i := range inliers {
		inliers[i] = i
		weights[i] = 1
	}

	rough := Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
	refined, cov, err := HomographyAdapter{}.Refine(rough, pairs, inliers, weights)
	require.NoError(t, err)
	assert.Nil(t, cov)

	for _, pair := range pairs {
		assert.Less(t, refined.Residual(pair), 1e-7)
	}
}
